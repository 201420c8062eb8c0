// Package doctor runs environment checks so a broken setup is reported
// before the daemon fails mid-dictation.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"murmur/internal/config"
)

// Result represents a diagnostic check.
type Result struct {
	Name   string
	Pass   bool
	Detail string
}

// Run executes doctor checks.
func Run(cfg *config.Config) []Result {
	results := []Result{
		checkConfig(cfg),
		checkFile("config path", cfg.Paths.ConfigPath),
	}
	switch cfg.Backend.Mode {
	case config.BackendLocal:
		results = append(results, checkFile("model file", cfg.Backend.Local.ModelPath))
	case config.BackendOpenAI:
		results = append(results, checkKey("openai key", cfg.Backend.OpenAI.APIKey))
	case config.BackendElevenLabs:
		results = append(results, checkKey("elevenlabs key", cfg.Backend.ElevenLabs.APIKey))
	}
	results = append(results,
		checkFilterFile("filter rules", cfg.Rules.FilterPath),
		checkFilterFile("filter rules el", cfg.Rules.FilterPathElevenLabs),
		checkReplacements(cfg.Rules.ReplacementsPath),
	)
	if cfg.Command.Enabled {
		results = append(results, checkExecutable(cfg.Command.Command))
	}
	results = append(results, checkPortAudioPkgConfig())
	return results
}

func checkConfig(cfg *config.Config) Result {
	if err := cfg.Validate(); err != nil {
		return Result{Name: "config", Pass: false, Detail: err.Error()}
	}
	return Result{Name: "config", Pass: true, Detail: "valid"}
}

func checkFile(label, path string) Result {
	if path == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	if _, err := os.Stat(os.ExpandEnv(path)); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: path}
}

func checkKey(label, key string) Result {
	if strings.TrimSpace(key) == "" {
		return Result{Name: label, Pass: false, Detail: "api key not set"}
	}
	return Result{Name: label, Pass: true, Detail: "set"}
}

// checkFilterFile compiles every pattern line; a missing file passes
// since the daemon writes defaults on first run.
func checkFilterFile(label, path string) Result {
	if path == "" {
		return Result{Name: label, Pass: true, Detail: "disabled"}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: label, Pass: true, Detail: "missing (defaults written on first run)"}
		}
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	count := 0
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := regexp.Compile("(?i)" + line); err != nil {
			return Result{Name: label, Pass: false, Detail: fmt.Sprintf("line %d: %v", i+1, err)}
		}
		count++
	}
	return Result{Name: label, Pass: true, Detail: fmt.Sprintf("%d patterns", count)}
}

func checkReplacements(path string) Result {
	label := "replacements"
	if path == "" {
		return Result{Name: label, Pass: true, Detail: "disabled"}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: label, Pass: true, Detail: "missing (defaults written on first run)"}
		}
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	var rules []struct {
		Pattern string `json:"pattern"`
		Replace string `json:"replacement"`
	}
	if err := json.Unmarshal(data, &rules); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	for i, r := range rules {
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return Result{Name: label, Pass: false, Detail: fmt.Sprintf("rule %d: %v", i, err)}
		}
	}
	return Result{Name: label, Pass: true, Detail: fmt.Sprintf("%d rules", len(rules))}
}

func checkExecutable(cmd string) Result {
	label := "command.command"
	if cmd == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	path := os.ExpandEnv(cmd)
	// If contains a path separator, treat as explicit path.
	if strings.Contains(path, "/") || strings.Contains(path, "\\") {
		info, err := os.Stat(path)
		if err != nil {
			return Result{Name: label, Pass: false, Detail: err.Error()}
		}
		if info.IsDir() {
			return Result{Name: label, Pass: false, Detail: "is a directory; set command.command to an executable file"}
		}
		if info.Mode().Perm()&0o111 == 0 {
			return Result{Name: label, Pass: false, Detail: "not executable; chmod +x or choose another command"}
		}
		return Result{Name: label, Pass: true, Detail: path}
	}
	// Else search PATH.
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: resolved}
}

func checkPortAudioPkgConfig() Result {
	pkg, err := exec.LookPath("pkg-config")
	if err != nil {
		return Result{Name: "pkg-config", Pass: false, Detail: "pkg-config not found"}
	}
	cmd := exec.Command(pkg, "--exists", "portaudio-2.0")
	if err := cmd.Run(); err != nil {
		return Result{Name: "portaudio", Pass: false, Detail: "portaudio-2.0 not found (install portaudio)"}
	}
	versionCmd := exec.Command(pkg, "--modversion", "portaudio-2.0")
	if out, err := versionCmd.Output(); err == nil {
		return Result{Name: "portaudio", Pass: true, Detail: strings.TrimSpace(string(out))}
	}
	return Result{Name: "portaudio", Pass: true, Detail: "found via pkg-config"}
}
