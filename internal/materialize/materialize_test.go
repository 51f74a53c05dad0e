package materialize

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/eburghar/rconfd/internal/checksum"
	"github.com/eburghar/rconfd/internal/evalr"
	"github.com/eburghar/rconfd/internal/registry"
	"github.com/eburghar/rconfd/internal/secret"
	"github.com/eburghar/rconfd/internal/secretval"
)

func nullLogger() hclog.Logger { return hclog.NewNullLogger() }

func writeTemplate(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestRun_WritesFileAndDetectsFirstChange(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	tpl := writeTemplate(t, srcDir, "t1.jsonnet", `{ "out.txt": std.extVar("secrets")["foo"] + "\n" }`)

	store := secret.NewStore()
	store.Replace("env:str:FOO", secret.New(secretval.FromString("bar"), nil, false, time.Now()))

	job := registry.Job{
		TemplateRef:     tpl,
		OutputDir:       outDir,
		FileMode:        "0644",
		DeclaredSecrets: map[string]string{"env:str:FOO": "foo"},
	}

	out, err := Run(context.Background(), job, store, evalr.NewJsonnetEvaluator(), checksum.NewStore(), []string{srcDir}, false, nullLogger())
	require.NoError(t, err)
	require.True(t, out.Changed)
	require.False(t, out.SawPreexisting)

	content, err := os.ReadFile(filepath.Join(outDir, "out.txt"))
	require.NoError(t, err)
	require.Equal(t, "bar\n", string(content))
}

func TestRun_SecondPassWithSameContentNotChanged(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	tpl := writeTemplate(t, srcDir, "t1.jsonnet", `{ "out.txt": std.extVar("secrets")["foo"] }`)

	store := secret.NewStore()
	store.Replace("env:str:FOO", secret.New(secretval.FromString("bar"), nil, false, time.Now()))

	job := registry.Job{
		TemplateRef:     tpl,
		OutputDir:       outDir,
		DeclaredSecrets: map[string]string{"env:str:FOO": "foo"},
	}
	checksums := checksum.NewStore()
	eval := evalr.NewJsonnetEvaluator()

	_, err := Run(context.Background(), job, store, eval, checksums, []string{srcDir}, false, nullLogger())
	require.NoError(t, err)

	out, err := Run(context.Background(), job, store, eval, checksums, []string{srcDir}, false, nullLogger())
	require.NoError(t, err)
	require.False(t, out.Changed)
}

func TestRun_MissingDeclaredSecretIsFatalError(t *testing.T) {
	srcDir := t.TempDir()
	tpl := writeTemplate(t, srcDir, "t1.jsonnet", `{ "out.txt": "x" }`)

	job := registry.Job{
		TemplateRef:     tpl,
		OutputDir:       t.TempDir(),
		DeclaredSecrets: map[string]string{"env:str:FOO": "foo"},
	}

	_, err := Run(context.Background(), job, secret.NewStore(), evalr.NewJsonnetEvaluator(), checksum.NewStore(), []string{srcDir}, false, nullLogger())
	require.Error(t, err)
	var mse *MissingSecretError
	require.ErrorAs(t, err, &mse)
	require.True(t, mse.Fatal())
}

func TestRun_FirstRunSuppressesModifiedHook(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	tpl := writeTemplate(t, srcDir, "t1.jsonnet", `{ "out.txt": "x" }`)

	hookMarker := filepath.Join(t.TempDir(), "fired")
	job := registry.Job{
		TemplateRef:     tpl,
		OutputDir:       outDir,
		DeclaredSecrets: map[string]string{},
		Hooks:           registry.Hooks{Modified: "/usr/bin/touch " + hookMarker},
	}

	out, err := Run(context.Background(), job, secret.NewStore(), evalr.NewJsonnetEvaluator(), checksum.NewStore(), []string{srcDir}, true, nullLogger())
	require.NoError(t, err)
	require.True(t, out.Changed)

	_, statErr := os.Stat(hookMarker)
	require.True(t, os.IsNotExist(statErr), "modified hook must not fire on first run")
}
