// Package hook implements the hook-firing contract: split the command line
// on whitespace, require an absolute argv[0], run synchronously, log
// (never fail the pass) on non-zero exit.
//
// Grounded directly on the original rconfd Hooks::trigger
// (_examples/original_source/src/conf.rs).
package hook

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Kind names which of the two hook events fired.
type Kind string

const (
	Modified Kind = "modified"
	Ready    Kind = "ready"
)

// ErrRelativePath is returned (and logged, never propagated as fatal) when
// a hook's argv[0] doesn't start with '/'.
type ErrRelativePath struct {
	Cmdline string
}

func (e *ErrRelativePath) Error() string {
	return fmt.Sprintf("hook: %q must be absolute to be executed", e.Cmdline)
}

// Run fires the hook named by kind if cmdline is non-empty. It never
// returns an error the broker should treat as fatal; callers only need the
// return value for logging/testing, not control flow.
func Run(ctx context.Context, kind Kind, cmdline string, logger hclog.Logger) error {
	if cmdline == "" {
		return nil
	}
	args := strings.Fields(cmdline)
	if len(args) == 0 {
		return nil
	}
	if !strings.HasPrefix(args[0], "/") {
		err := &ErrRelativePath{Cmdline: cmdline}
		logger.Error("hook command must be absolute", "kind", kind, "cmdline", cmdline)
		return err
	}

	logger.Info("hook triggered", "kind", kind, "cmdline", cmdline)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		logger.Warn("hook exited with error", "kind", kind, "cmdline", cmdline, "error", err, "stderr", stderr.String())
		return err
	}
	return nil
}
