package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/yourusername/aurora-dl/internal/domain"
	"github.com/yourusername/aurora-dl/internal/infrastructure"
)

var (
	failurePattern = regexp.MustCompile(`Failure \[([A-Z0-9_]+)(?::\s*([^\]]*))?\]`)
	sessionPattern = regexp.MustCompile(`\[(\d+)\]`)
)

// pmClient issues package manager commands for one strategy
type pmClient struct {
	runner   Runner
	su       bool
	strategy domain.InstallerKind
}

func (p *pmClient) exec(ctx context.Context, packageName string, args ...string) (string, error) {
	var (
		out string
		err error
	)
	if p.su {
		out, err = p.runner.Run(ctx, "su", "-c", infrastructure.ShellJoin("pm", args...))
	} else {
		out, err = p.runner.Run(ctx, "pm", args...)
	}

	if m := failurePattern.FindStringSubmatch(out); m != nil {
		return out, &domain.InstallerRejectedError{
			PackageName: packageName,
			Strategy:    p.strategy,
			Code:        m[1],
			Message:     strings.TrimSpace(m[2]),
			Err:         err,
		}
	}
	if err != nil {
		msg := out
		if msg == "" {
			msg = err.Error()
		}
		return out, &domain.InstallerRejectedError{
			PackageName: packageName,
			Strategy:    p.strategy,
			Message:     msg,
			Err:         err,
		}
	}
	return out, nil
}

func (p *pmClient) createSession(ctx context.Context, packageName string, totalSize int64) (string, error) {
	args := []string{"install-create", "-r"}
	if totalSize > 0 {
		args = append(args, "-S", strconv.FormatInt(totalSize, 10))
	}
	out, err := p.exec(ctx, packageName, args...)
	if err != nil {
		return "", err
	}
	m := sessionPattern.FindStringSubmatch(out)
	if m == nil {
		return "", &domain.InstallerRejectedError{
			PackageName: packageName,
			Strategy:    p.strategy,
			Message:     fmt.Sprintf("unexpected install-create output: %q", out),
		}
	}
	return m[1], nil
}

func (p *pmClient) writeSession(ctx context.Context, packageName, session string, index int, path string) error {
	args := []string{"install-write"}
	if info, err := os.Stat(path); err == nil {
		args = append(args, "-S", strconv.FormatInt(info.Size(), 10))
	}
	name := fmt.Sprintf("%d_%s", index, filepath.Base(path))
	args = append(args, session, name, path)
	_, err := p.exec(ctx, packageName, args...)
	return err
}

func (p *pmClient) commit(ctx context.Context, packageName, session string) error {
	_, err := p.exec(ctx, packageName, "install-commit", session)
	return err
}

func (p *pmClient) abandon(ctx context.Context, packageName, session string) {
	p.exec(ctx, packageName, "install-abandon", session)
}

func (p *pmClient) install(ctx context.Context, packageName, path string) error {
	_, err := p.exec(ctx, packageName, "install", "-r", path)
	return err
}

func totalSize(paths []string) int64 {
	var total int64
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return 0
		}
		total += info.Size()
	}
	return total
}
