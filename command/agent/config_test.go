package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eburghar/rconfd/internal/registry"
)

func writeJobFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadJobs_ParsesAndExpandsEnv(t *testing.T) {
	t.Setenv("OUTROOT", "/tmp/out")
	dir := t.TempDir()
	writeJobFile(t, dir, "10-app.json", `{
		"app.jsonnet": {
			"dir": "${OUTROOT}/app",
			"mode": "0640",
			"user": "",
			"secrets": { "env:str:FOO": "foo" },
			"hooks": { "modified": null, "ready": "/bin/true" }
		}
	}`)

	reg, err := LoadJobs(dir)
	require.NoError(t, err)
	require.Equal(t, 1, reg.Len())

	job, ok := reg.Get("app.jsonnet")
	require.True(t, ok)
	require.Equal(t, "/tmp/out/app", job.OutputDir)
	require.Equal(t, "0640", job.FileMode)
	require.Equal(t, "foo", job.DeclaredSecrets["env:str:FOO"])
	require.Equal(t, "", job.Hooks.Modified)
	require.Equal(t, "/bin/true", job.Hooks.Ready)
}

func TestLoadJobs_ExpandsSecretPathEnv(t *testing.T) {
	t.Setenv("VARNAME", "FOO")
	dir := t.TempDir()
	writeJobFile(t, dir, "10-app.json", `{
		"app.jsonnet": {
			"dir": "/tmp/out",
			"mode": "0640",
			"user": "",
			"secrets": { "env:str:${VARNAME}": "foo" },
			"hooks": { "modified": null, "ready": null }
		}
	}`)

	reg, err := LoadJobs(dir)
	require.NoError(t, err)
	job, _ := reg.Get("app.jsonnet")
	require.Equal(t, "foo", job.DeclaredSecrets["env:str:FOO"])
}

func TestLoadJobs_RejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	writeJobFile(t, dir, "10-app.json", `{
		"app.jsonnet": {
			"dir": "/tmp/out",
			"mode": "0640",
			"user": "",
			"secrets": {},
			"hooks": { "modified": null, "ready": null },
			"bogus_field": true
		}
	}`)

	_, err := LoadJobs(dir)
	require.Error(t, err)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	require.True(t, ce.Fatal())
}

func TestLoadJobs_ProcessesFilesInLexicographicOrder(t *testing.T) {
	dir := t.TempDir()
	writeJobFile(t, dir, "20-b.json", `{ "b.jsonnet": { "dir": "/tmp/b", "mode": "", "user": "", "secrets": {}, "hooks": {"modified": null, "ready": null} } }`)
	writeJobFile(t, dir, "10-a.json", `{ "a.jsonnet": { "dir": "/tmp/a", "mode": "", "user": "", "secrets": {}, "hooks": {"modified": null, "ready": null} } }`)
	writeJobFile(t, dir, "ignored.txt", `not json`)

	reg, err := LoadJobs(dir)
	require.NoError(t, err)
	require.Equal(t, 2, reg.Len())

	a, ok := reg.Get("a.jsonnet")
	require.True(t, ok)
	require.Equal(t, "/tmp/a", a.OutputDir)
	b, ok := reg.Get("b.jsonnet")
	require.True(t, ok)
	require.Equal(t, "/tmp/b", b.OutputDir)

	var order []string
	reg.All(func(j registry.Job) {
		order = append(order, j.TemplateRef)
	})
	require.Equal(t, []string{"a.jsonnet", "b.jsonnet"}, order)
}

func TestLoadJobs_MultipleTemplatesInOneFileAreSortedByTemplateRef(t *testing.T) {
	dir := t.TempDir()
	writeJobFile(t, dir, "10-all.json", `{
		"z.jsonnet": { "dir": "/tmp/z", "mode": "", "user": "", "secrets": {}, "hooks": {"modified": null, "ready": null} },
		"a.jsonnet": { "dir": "/tmp/a", "mode": "", "user": "", "secrets": {}, "hooks": {"modified": null, "ready": null} },
		"m.jsonnet": { "dir": "/tmp/m", "mode": "", "user": "", "secrets": {}, "hooks": {"modified": null, "ready": null} }
	}`)

	// Run several times: map iteration order is randomized per run, so a
	// single pass isn't enough to catch a regression back to range-order.
	for i := 0; i < 10; i++ {
		reg, err := LoadJobs(dir)
		require.NoError(t, err)

		var order []string
		reg.All(func(j registry.Job) {
			order = append(order, j.TemplateRef)
		})
		require.Equal(t, []string{"a.jsonnet", "m.jsonnet", "z.jsonnet"}, order)
	}
}
