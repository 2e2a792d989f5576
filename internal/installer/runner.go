// Package installer selects an install strategy for a staged download group
// and drives the platform package manager to install it.
package installer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/aurora-dl/internal/infrastructure"
)

// Runner executes a device command and returns its combined output
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands locally or through a prefix such as "adb shell"
type ExecRunner struct {
	prefix []string
	logger *zap.Logger
}

// NewExecRunner creates a runner. An empty prefix runs commands directly.
func NewExecRunner(prefix []string, logger *zap.Logger) *ExecRunner {
	return &ExecRunner{
		prefix: append([]string(nil), prefix...),
		logger: logger,
	}
}

// Run executes the command and returns its trimmed output
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	var cmd *exec.Cmd
	if len(r.prefix) == 0 {
		cmd = exec.CommandContext(ctx, name, args...)
	} else {
		// the remote shell receives one command line
		remote := append(append([]string(nil), r.prefix[1:]...), infrastructure.ShellJoin(name, args...))
		cmd = exec.CommandContext(ctx, r.prefix[0], remote...)
	}

	r.logger.Debug("Running device command",
		zap.String("command", infrastructure.ShellJoin(cmd.Args[0], cmd.Args[1:]...)))

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	output := strings.TrimSpace(out.String())
	if err != nil {
		if ctx.Err() != nil {
			return output, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return output, fmt.Errorf("%s failed: %w", name, err)
	}
	return output, nil
}
