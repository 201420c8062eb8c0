// Package sink delivers finished transcriptions to their destinations:
// an external command, an append-only output file, or both.
package sink

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"murmur/internal/config"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

// Sink consumes one cleaned transcription.
type Sink interface {
	Emit(ctx context.Context, text string) error
}

// Command runs a configured program for each transcription, the text as
// the last argument and in MURMUR_TEXT.
type Command struct {
	logger  *logrus.Logger
	command string
	args    []string
	timeout time.Duration

	mu sync.Mutex
}

// NewCommand parses cfg.Command.Args with shell-style word splitting.
func NewCommand(cfg *config.Config, logger *logrus.Logger) (*Command, error) {
	if strings.TrimSpace(cfg.Command.Command) == "" {
		return nil, fmt.Errorf("command sink enabled but command.command is empty")
	}
	args, err := shlex.Split(cfg.Command.Args)
	if err != nil {
		return nil, fmt.Errorf("parse command.args: %w", err)
	}
	return &Command{
		logger:  logger,
		command: cfg.Command.Command,
		args:    args,
		timeout: time.Duration(cfg.Command.TimeoutSec) * time.Second,
	}, nil
}

// Emit runs the command. Invocations are serialized so output handlers
// that type text into a focused window do not interleave.
func (c *Command) Emit(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	runCtx := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := append(append([]string{}, c.args...), text)
	cmd := exec.CommandContext(runCtx, c.command, args...)
	cmd.Env = append(os.Environ(), "MURMUR_TEXT="+text)

	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		c.logger.Infof("command output: %s", strings.TrimSpace(string(out)))
	}
	if err != nil {
		return fmt.Errorf("command sink: %w", err)
	}
	return nil
}
