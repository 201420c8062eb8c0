package config

import "testing"

func TestEnvOverrides(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Paths.ConfigPath = "/tmp/config" // avoid creation

	t.Setenv("MURMUR_BACKEND", "OpenAI")
	t.Setenv("MURMUR_OPENAI_API_KEY", "sk-test")
	t.Setenv("MURMUR_METRICS_ADDR", "1.2.3.4:9999")
	t.Setenv("MURMUR_LOG_LEVEL", "debug")
	t.Setenv("MURMUR_LOG_FORMAT", "json")
	t.Setenv("MURMUR_WS_SERVER_PORT", "9001")

	applyEnvOverrides(cfg)

	if cfg.Backend.Mode != "openai" {
		t.Fatalf("backend override failed: %q", cfg.Backend.Mode)
	}
	if cfg.Backend.OpenAI.APIKey != "sk-test" {
		t.Fatalf("api key override failed")
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != "1.2.3.4:9999" {
		t.Fatalf("metrics override failed: %+v", cfg.Metrics)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("logging overrides failed: %+v", cfg.Logging)
	}
	if !cfg.WebSocket.ServerEnabled || cfg.WebSocket.ServerPort != 9001 {
		t.Fatalf("ws server override failed: %+v", cfg.WebSocket)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.toml"

	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Segmentation.Mode = ModeVAD
	cfg.Segmentation.VADThreshold = 0.7
	cfg.Backend.Mode = BackendElevenLabs

	if err := Save(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Segmentation.Mode != ModeVAD || loaded.Segmentation.VADThreshold != 0.7 {
		t.Fatalf("segmentation did not persist: %+v", loaded.Segmentation)
	}
	if loaded.Backend.Mode != BackendElevenLabs {
		t.Fatalf("backend mode did not persist: %q", loaded.Backend.Mode)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"sample rate", func(c *Config) { c.Audio.SampleRate = 44100 }},
		{"channels", func(c *Config) { c.Audio.Channels = 2 }},
		{"frame ms", func(c *Config) { c.Audio.FrameMS = 25 }},
		{"segmentation mode", func(c *Config) { c.Segmentation.Mode = "auto" }},
		{"vad threshold", func(c *Config) { c.Segmentation.Mode = ModeVAD; c.Segmentation.VADThreshold = 1.5 }},
		{"backend mode", func(c *Config) { c.Backend.Mode = "azure" }},
		{"concurrency", func(c *Config) { c.Dispatch.Concurrency = 0 }},
		{"output format", func(c *Config) { c.Output.Format = "xml" }},
	}
	for _, tc := range cases {
		cfg, _ := Default()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
	cfg, _ := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}
