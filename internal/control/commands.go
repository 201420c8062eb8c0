package control

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"

	"murmur/internal/audio"
	"murmur/internal/config"
	"murmur/internal/doctor"

	"github.com/spf13/cobra"
)

func dialDaemon(cfg *config.Config) (net.Conn, error) {
	conn, err := net.Dial("unix", cfg.Paths.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon: %w", err)
	}
	return conn, nil
}

func roundTrip(cfg *config.Config, req Request, resp any) error {
	conn, err := dialDaemon(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return err
	}
	return json.NewDecoder(conn).Decode(resp)
}

// NewStatusCmd queries daemon status.
func NewStatusCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			var status Status
			if err := roundTrip(cfg, Request{Op: "status"}, &status); err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(status)
			}
			fmt.Printf("running: %v\nrecording: %v\nuptime: %.1fs\nmode: %s\nbackend: %s\n",
				status.Running, status.Recording, status.UptimeSec, status.Mode, status.Backend)
			fmt.Printf("segments: %d  results: %d  errors: %d  dropped frames: %d\n",
				status.Segments, status.Results, status.Errors, status.DroppedFrames)
			for _, t := range status.Transcripts {
				fmt.Printf("%s  %s\n", t.Timestamp.Format("15:04:05"), t.Text)
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

// NewHealthCmd pings the control socket.
func NewHealthCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check daemon liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			var resp SimpleResponse
			if err := roundTrip(cfg, Request{Op: "health"}, &resp); err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("daemon unhealthy: %s", resp.Message)
			}
			fmt.Println("ok")
			return nil
		},
	}
}

// NewToggleCmd flips recording on or off.
func NewToggleCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Toggle recording on/off",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			var resp SimpleResponse
			if err := roundTrip(cfg, Request{Op: "toggle"}, &resp); err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("toggle failed: %s", resp.Message)
			}
			fmt.Println(resp.Message)
			return nil
		},
	}
}

// NewTestTextCmd feeds sample text through the daemon's rule pipeline
// and sinks, as if it had been transcribed.
func NewTestTextCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "test-text \"some text\"",
		Short: "Send sample text through the filter/replacement pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			var resp SimpleResponse
			if err := roundTrip(cfg, Request{Op: "test-text", Text: args[0]}, &resp); err != nil {
				return err
			}
			if resp.Message == "" {
				fmt.Println("(filtered out)")
				return nil
			}
			fmt.Println(resp.Message)
			return nil
		},
	}
}

// NewAddReplacementCmd appends a rewrite rule to the daemon's replacement
// file. The rule is active immediately and persists across restarts.
func NewAddReplacementCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "add-replacement <pattern> <replacement>",
		Short: "Append a rewrite rule (regex) to the replacement file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			var resp SimpleResponse
			req := Request{Op: "add-replacement", Pattern: args[0], Replace: args[1]}
			if err := roundTrip(cfg, req, &resp); err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("add replacement failed: %s", resp.Message)
			}
			fmt.Println(resp.Message)
			return nil
		},
	}
}

// NewDevicesCmd lists input devices. Talks to PortAudio directly, no
// daemon needed.
func NewDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "devices",
		Aliases: []string{"mics", "list-mics"},
		Short:   "List available input devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := audio.ListDevices()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("no input devices found")
				return nil
			}
			for _, d := range devices {
				marker := " "
				if d.Default {
					marker = "*"
				}
				fmt.Printf("%s [%d] %s (%d ch)\n", marker, d.Index, d.Name, d.Channels)
			}
			return nil
		},
	}
}

// NewSetDeviceCmd stores the preferred input device in the config file.
func NewSetDeviceCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set-device <name>",
		Short: "Set input device name in config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			cfg.Audio.DeviceName = args[0]
			if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
				return err
			}
			fmt.Printf("device set to %q in %s\n", args[0], cfg.Paths.ConfigPath)
			return nil
		},
	}
}

// NewTailLogCmd tails the main log file (simple last N lines).
func NewTailLogCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tail-log",
		Short: "Show last 50 log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			return tailFile(cfg.Paths.LogPath, 50)
		},
	}
}

func tailFile(path string, n int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			fmt.Println(l)
		}
	}
	return nil
}

// NewDoctorCmd runs environment checks.
func NewDoctorCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check dependencies and config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			results := doctor.Run(cfg)
			exitCode := 0
			for _, r := range results {
				status := "ok"
				if !r.Pass {
					status = "fail"
					exitCode = 1
				}
				fmt.Printf("%-14s %-4s %s\n", r.Name, status, r.Detail)
			}
			if exitCode != 0 {
				return fmt.Errorf("doctor found issues")
			}
			return nil
		},
	}
}
