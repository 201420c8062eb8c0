package main

import (
	"fmt"
	"os"

	"murmur/internal/control"
	"murmur/internal/daemon"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root := &cobra.Command{
		Use:   "murmur",
		Short: "Murmur — real-time speech-to-text daemon",
		Long: `Murmur listens on your mic, cuts the stream into utterances (energy or
WebRTC VAD segmentation), transcribes each one (local whisper.cpp, OpenAI,
or ElevenLabs), cleans the text through filter/replacement rules, and
delivers it in order to your sinks: a WebSocket consumer, a command, an
output file.

Key commands:
  start|stop|restart      Daemon lifecycle
  status [--json]         Uptime, counters, last transcripts
  toggle                  Start/stop recording (also: WebSocket TOGGLE_RECORD)
  devices|set-device      Select input device
  doctor                  Check config, rules, backend, portaudio
  health|tail-log         Liveness, log tail
  test-text "..."         Run text through the rule pipeline
  add-replacement p r     Append a rewrite rule (persisted)

Notable flags/env:
  --metrics-addr <addr>   Enable /metrics (Prometheus text)
  --backend <name>        Override backend for this run
  Env overrides: MURMUR_BACKEND, MURMUR_OPENAI_API_KEY,
                 MURMUR_ELEVENLABS_API_KEY, MURMUR_METRICS_ADDR,
                 MURMUR_LOG_LEVEL/FORMAT, MURMUR_WS_SINK_URL,
                 MURMUR_WS_SERVER_PORT`,
		Example: `  murmur start --backend openai
  murmur devices
  murmur set-device "USB Microphone"
  murmur toggle
  murmur test-text "teh cat (coughs)"
  murmur health`,
		DisableFlagsInUseLine: true,
	}

	root.Version = version
	root.SetVersionTemplate("Murmur v{{.Version}}\n")

	cfgPath := root.PersistentFlags().StringP("config", "c", "", "Path to config file (TOML). Defaults to ~/.config/murmur/config.toml")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(daemon.NewStartCmd(cfgPath))
	root.AddCommand(daemon.NewStopCmd(cfgPath))
	root.AddCommand(daemon.NewRestartCmd(cfgPath))
	root.AddCommand(control.NewStatusCmd(cfgPath))
	root.AddCommand(control.NewHealthCmd(cfgPath))
	root.AddCommand(control.NewToggleCmd(cfgPath))
	root.AddCommand(control.NewDevicesCmd())
	root.AddCommand(control.NewSetDeviceCmd(cfgPath))
	root.AddCommand(control.NewTailLogCmd(cfgPath))
	root.AddCommand(control.NewTestTextCmd(cfgPath))
	root.AddCommand(control.NewAddReplacementCmd(cfgPath))
	root.AddCommand(control.NewDoctorCmd(cfgPath))

	// Hidden internal serve command used by start.
	root.AddCommand(daemon.NewServeCmd(cfgPath))

	return root.Execute()
}
