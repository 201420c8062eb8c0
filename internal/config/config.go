package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultStateDirLinux = ".local/state/murmur"
	defaultConfigDir     = ".config/murmur"

	// Segmentation strategy names.
	ModeLegacy = "legacy"
	ModeVAD    = "vad"

	// Backend names.
	BackendLocal      = "local"
	BackendOpenAI     = "openai"
	BackendElevenLabs = "elevenlabs"
)

// Config holds user configuration loaded from TOML.
type Config struct {
	Audio struct {
		DeviceName string `toml:"device_name"`
		SampleRate int    `toml:"sample_rate"`
		Channels   int    `toml:"channels"`
		FrameMS    int    `toml:"frame_ms"`
		QueueSize  int    `toml:"queue_size"`
	} `toml:"audio"`

	Segmentation struct {
		Mode string `toml:"mode"` // legacy, vad

		// Legacy (energy/silence) strategy.
		MinBufferMS        int     `toml:"min_buffer_ms"`
		SilenceThresholdDB float64 `toml:"silence_threshold_db"`
		SilenceDurationMS  int     `toml:"silence_duration_ms"`
		MaxBufferMS        int     `toml:"max_buffer_ms"`

		// VAD strategy.
		VADThreshold      float64 `toml:"vad_threshold"`
		VADMinSilenceMS   int     `toml:"vad_min_silence_ms"`
		VADMinSpeechMS    int     `toml:"vad_min_speech_ms"`
		VADAggressiveness int     `toml:"vad_aggressiveness"`
	} `toml:"segmentation"`

	Backend struct {
		Mode     string `toml:"mode"` // local, openai, elevenlabs
		Language string `toml:"language"`

		Local struct {
			ModelPath string `toml:"model_path"`
		} `toml:"local"`

		OpenAI struct {
			APIKey  string `toml:"api_key"`
			Model   string `toml:"model"`
			BaseURL string `toml:"base_url"`
		} `toml:"openai"`

		ElevenLabs struct {
			APIKey  string `toml:"api_key"`
			ModelID string `toml:"model_id"`
			BaseURL string `toml:"base_url"`
		} `toml:"elevenlabs"`
	} `toml:"backend"`

	Dispatch struct {
		Concurrency       int `toml:"concurrency"`
		QueueSize         int `toml:"queue_size"`
		RetryMax          int `toml:"retry_max"`
		RetryBaseMS       int `toml:"retry_base_ms"`
		RequestTimeoutSec int `toml:"request_timeout_sec"`
	} `toml:"dispatch"`

	Rules struct {
		FilterPath           string `toml:"filter_path"`
		FilterPathElevenLabs string `toml:"filter_path_elevenlabs"`
		ReplacementsPath     string `toml:"replacements_path"`
		FilterParentheses    bool   `toml:"filter_parentheses"`
		Watch                bool   `toml:"watch"`
	} `toml:"rules"`

	WebSocket struct {
		ServerEnabled bool   `toml:"server_enabled"`
		ServerPort    int    `toml:"server_port"`
		SinkEnabled   bool   `toml:"sink_enabled"`
		SinkURL       string `toml:"sink_url"`
		STTPrefix     string `toml:"stt_prefix"`
	} `toml:"websocket"`

	Command struct {
		Enabled    bool    `toml:"enabled"`
		Command    string  `toml:"command"`
		Args       string  `toml:"args"`
		TimeoutSec float64 `toml:"timeout_sec"`
	} `toml:"command"`

	Output struct {
		Enabled bool   `toml:"enabled"`
		Path    string `toml:"path"`
		Format  string `toml:"format"` // txt, json
	} `toml:"output"`

	Logging struct {
		Level  string `toml:"level"`  // debug, info, warn, error
		Format string `toml:"format"` // text, json
		Stdout bool   `toml:"stdout"`
	} `toml:"logging"`

	Paths struct {
		StateDir   string `toml:"state_dir"`
		LogPath    string `toml:"log_path"`
		SocketPath string `toml:"socket_path"`
		PidPath    string `toml:"pid_path"`
		ConfigPath string `toml:"-"`
	} `toml:"paths"`

	UI struct {
		StatusTail int `toml:"status_tail"`
	} `toml:"ui"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"metrics"`
}

// Default returns Config populated with defaults.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	stateDir := filepath.Join(home, defaultStateDirLinux)
	if isMac() {
		stateDir = filepath.Join(home, "Library", "Application Support", "murmur")
	}

	cfg := &Config{}

	cfg.Audio.SampleRate = 16000
	cfg.Audio.Channels = 1
	cfg.Audio.FrameMS = 20
	cfg.Audio.QueueSize = 256

	cfg.Segmentation.Mode = ModeLegacy
	cfg.Segmentation.MinBufferMS = 1000
	cfg.Segmentation.SilenceThresholdDB = -40
	cfg.Segmentation.SilenceDurationMS = 2000
	cfg.Segmentation.MaxBufferMS = 30000
	cfg.Segmentation.VADThreshold = 0.55
	cfg.Segmentation.VADMinSilenceMS = 2500
	cfg.Segmentation.VADMinSpeechMS = 200
	cfg.Segmentation.VADAggressiveness = 2

	cfg.Backend.Mode = BackendLocal
	cfg.Backend.Local.ModelPath = filepath.Join(stateDir, "models", "ggml-base.bin")
	cfg.Backend.OpenAI.Model = "whisper-1"
	cfg.Backend.OpenAI.BaseURL = "https://api.openai.com/v1"
	cfg.Backend.ElevenLabs.ModelID = "scribe_v1"
	cfg.Backend.ElevenLabs.BaseURL = "https://api.elevenlabs.io/v1"

	cfg.Dispatch.Concurrency = 2
	cfg.Dispatch.QueueSize = 64
	cfg.Dispatch.RetryMax = 3
	cfg.Dispatch.RetryBaseMS = 500
	cfg.Dispatch.RequestTimeoutSec = 30

	cfg.Rules.FilterPath = filepath.Join(stateDir, "rules", "filter_patterns.txt")
	cfg.Rules.FilterPathElevenLabs = filepath.Join(stateDir, "rules", "filter_patterns_el.txt")
	cfg.Rules.ReplacementsPath = filepath.Join(stateDir, "rules", "replacements.json")
	cfg.Rules.FilterParentheses = true
	cfg.Rules.Watch = true

	cfg.WebSocket.ServerPort = 8765
	cfg.WebSocket.SinkURL = "ws://127.0.0.1:1337/"

	cfg.Command.TimeoutSec = 5

	cfg.Output.Enabled = true
	cfg.Output.Path = filepath.Join(stateDir, "transcripts.log")
	cfg.Output.Format = "txt"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.Paths.StateDir = stateDir
	cfg.Paths.LogPath = filepath.Join(stateDir, "murmur.log")
	cfg.Paths.SocketPath = filepath.Join(stateDir, "murmur.sock")
	cfg.Paths.PidPath = filepath.Join(stateDir, "murmur.pid")

	cfg.UI.StatusTail = 10

	cfg.Metrics.Enabled = false
	cfg.Metrics.Addr = "127.0.0.1:9343"

	return cfg, nil
}

// Load loads config from file, applying defaults. A missing file is not an
// error: the default config is written there as a template.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, defaultConfigDir, "config.toml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, err
			}
			if err := Save(cfg, path); err != nil {
				return nil, err
			}
			cfg.Paths.ConfigPath = path
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Paths.ConfigPath = path
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

// Validate checks values the pipeline cannot start without.
func (c *Config) Validate() error {
	switch c.Audio.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return fmt.Errorf("audio.sample_rate must be 8k/16k/32k/48k (got %d)", c.Audio.SampleRate)
	}
	if c.Audio.Channels != 1 {
		return fmt.Errorf("only mono input supported; set audio.channels = 1")
	}
	if c.Audio.FrameMS != 10 && c.Audio.FrameMS != 20 && c.Audio.FrameMS != 30 {
		return fmt.Errorf("audio.frame_ms must be 10, 20, or 30 (got %d)", c.Audio.FrameMS)
	}
	switch c.Segmentation.Mode {
	case ModeLegacy, ModeVAD:
	default:
		return fmt.Errorf("segmentation.mode must be %q or %q (got %q)", ModeLegacy, ModeVAD, c.Segmentation.Mode)
	}
	if c.Segmentation.Mode == ModeVAD {
		if c.Segmentation.VADThreshold <= 0 || c.Segmentation.VADThreshold > 1 {
			return fmt.Errorf("segmentation.vad_threshold must be in (0,1] (got %g)", c.Segmentation.VADThreshold)
		}
	}
	switch c.Backend.Mode {
	case BackendLocal, BackendOpenAI, BackendElevenLabs:
	default:
		return fmt.Errorf("backend.mode must be local, openai, or elevenlabs (got %q)", c.Backend.Mode)
	}
	if c.Dispatch.Concurrency < 1 {
		return fmt.Errorf("dispatch.concurrency must be >= 1 (got %d)", c.Dispatch.Concurrency)
	}
	switch c.Output.Format {
	case "txt", "json":
	default:
		return fmt.Errorf("output.format must be txt or json (got %q)", c.Output.Format)
	}
	return nil
}

func isMac() bool {
	return runtime.GOOS == "darwin"
}

// MustStatePaths ensures state dirs exist.
func MustStatePaths(cfg *Config) error {
	dirs := []string{
		cfg.Paths.StateDir,
		filepath.Dir(cfg.Paths.LogPath),
		filepath.Dir(cfg.Rules.FilterPath),
		filepath.Dir(cfg.Rules.ReplacementsPath),
	}
	if cfg.Output.Enabled && cfg.Output.Path != "" {
		dirs = append(dirs, filepath.Dir(cfg.Output.Path))
	}
	for _, p := range dirs {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MURMUR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MURMUR_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("MURMUR_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("MURMUR_BACKEND"); v != "" {
		cfg.Backend.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("MURMUR_OPENAI_API_KEY"); v != "" {
		cfg.Backend.OpenAI.APIKey = v
	}
	if v := os.Getenv("MURMUR_ELEVENLABS_API_KEY"); v != "" {
		cfg.Backend.ElevenLabs.APIKey = v
	}
	if v := os.Getenv("MURMUR_WS_SINK_URL"); v != "" {
		cfg.WebSocket.SinkURL = v
		cfg.WebSocket.SinkEnabled = true
	}
	if v := os.Getenv("MURMUR_WS_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port >= 1 && port <= 65535 {
			cfg.WebSocket.ServerPort = port
			cfg.WebSocket.ServerEnabled = true
		}
	}
}
