// Package materialize implements the template-materializer glue (C9):
// binds a job's declared secrets to the evaluator, writes the resulting
// files with mode/ownership applied, updates the checksum store, and fires
// the "modified" hook on change.
//
// Grounded on consul-template's Renderer.Render (diff-before-write, mode
// application) and the original rconfd's Conf::generate
// (original_source/src/conf.rs).
package materialize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hashicorp/go-hclog"

	"github.com/eburghar/rconfd/internal/backend"
	"github.com/eburghar/rconfd/internal/checksum"
	"github.com/eburghar/rconfd/internal/evalr"
	"github.com/eburghar/rconfd/internal/hook"
	"github.com/eburghar/rconfd/internal/registry"
	"github.com/eburghar/rconfd/internal/secret"
	"github.com/eburghar/rconfd/internal/secretval"
)

// MissingSecretError reports that a job's declared secret isn't in the
// store at materialization time. The broker is expected to guarantee this
// never happens (it only enqueues MaterializeTemplate once every declared
// secret is present), so this is a defensive, always-fatal check.
type MissingSecretError struct {
	TemplateRef string
	Path        string
}

func (e *MissingSecretError) Error() string {
	return fmt.Sprintf("materialize: %s: declared secret %q not in store", e.TemplateRef, e.Path)
}
func (e *MissingSecretError) Fatal() bool { return true }

// Outcome reports what a materialization pass observed, the inputs the
// broker needs to maintain its first_run/generated counters.
type Outcome struct {
	Changed        bool
	SawPreexisting bool
	HookFailed     bool
}

// Run evaluates job's template against store's current secret values,
// writes every produced file under job.OutputDir with job's mode/ownership
// applied, and fires the "modified" hook if any file's content changed and
// firstRun is false.
func Run(ctx context.Context, job registry.Job, store *secret.Store, eval evalr.Evaluator, checksums *checksum.Store, searchPaths []string, firstRun bool, logger hclog.Logger) (Outcome, error) {
	secrets := make(map[string]secretval.Value, len(job.DeclaredSecrets))
	for declaredPath, bindingName := range job.DeclaredSecrets {
		s, ok := store.Get(declaredPath)
		if !ok {
			return Outcome{}, &MissingSecretError{TemplateRef: job.TemplateRef, Path: declaredPath}
		}
		secrets[bindingName] = s.Value
	}

	rendered, err := eval.Evaluate(ctx, job.TemplateRef, searchPaths, secrets)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	for relPath, content := range rendered {
		fullPath := filepath.Join(job.OutputDir, relPath)

		if _, statErr := os.Stat(fullPath); statErr == nil {
			out.SawPreexisting = true
		}

		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return out, fmt.Errorf("materialize: %s: mkdir %s: %w", job.TemplateRef, filepath.Dir(fullPath), err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
			return out, fmt.Errorf("materialize: %s: write %s: %w", job.TemplateRef, fullPath, err)
		}

		applyMode(fullPath, job.FileMode, logger)
		applyOwnership(fullPath, job.OwnerUser, logger)

		changed, err := checksums.HashFile(fullPath)
		if err != nil {
			return out, fmt.Errorf("materialize: %s: checksum %s: %w", job.TemplateRef, fullPath, err)
		}
		if changed {
			out.Changed = true
		}
	}

	if out.Changed && !firstRun {
		if err := hook.Run(ctx, hook.Modified, job.Hooks.Modified, logger); err != nil {
			out.HookFailed = true
		}
	}

	return out, nil
}

// FireReady fires a job's "ready" hook, once per full pass after every
// registered job has materialized. Kept as a standalone entry point since
// the broker, not this call, knows when a full pass has completed. Reports
// whether the hook failed, so the caller can feed the
// rconfd_hook_failures_total counter.
func FireReady(ctx context.Context, job registry.Job, logger hclog.Logger) bool {
	return hook.Run(ctx, hook.Ready, job.Hooks.Ready, logger) != nil
}

func applyMode(path, octal string, logger hclog.Logger) {
	if octal == "" {
		return
	}
	mode, err := strconv.ParseUint(octal, 8, 32)
	if err != nil {
		logger.Warn("skipping invalid file mode", "path", path, "mode", octal, "error", err)
		return
	}
	if err := os.Chmod(path, os.FileMode(mode)); err != nil {
		logger.Warn("chmod failed", "path", path, "mode", octal, "error", err)
	}
}

func applyOwnership(path, owner string, logger hclog.Logger) {
	if owner == "" {
		return
	}
	uid, gid, err := backend.LookupUser(owner)
	if err != nil {
		logger.Warn("skipping ownership change: user lookup failed", "path", path, "user", owner, "error", err)
		return
	}
	if err := chown(path, uid, gid); err != nil {
		if os.Geteuid() != 0 {
			logger.Warn("chown failed (process unprivileged)", "path", path, "user", owner, "error", err)
		} else {
			logger.Warn("chown failed", "path", path, "user", owner, "error", err)
		}
	}
}
