// Package launcher hands vrchat:// URLs to the OS so the running client
// picks them up.
package launcher

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"go.uber.org/zap"
)

// Launcher opens URLs through the platform opener.
type Launcher struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Launcher {
	return &Launcher{logger: logger}
}

// Launch invokes the platform URL opener and waits for it to exit. The
// opener returns as soon as it has handed the URL off, not when the world
// has loaded, so this stays fast.
func (l *Launcher) Launch(ctx context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/c", "start", "", url)
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	}

	if l.logger != nil {
		l.logger.Info("launching url", zap.String("url", url))
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("open %s: %w: %s", url, err, out)
	}
	return nil
}
