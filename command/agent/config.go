package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/eburghar/rconfd/internal/registry"
	"github.com/eburghar/rconfd/internal/subst"
)

// ConfigError wraps a job-declaration load/decode failure, returned
// directly from startup and never reaching the broker.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config: %s: %v", e.Path, e.Err)
}
func (e *ConfigError) Unwrap() error { return e.Err }
func (e *ConfigError) Fatal() bool   { return true }

// jobSpec is the on-disk shape of a single template_ref -> TemplateJob
// entry.
type jobSpec struct {
	Dir     string            `json:"dir"`
	Mode    string            `json:"mode"`
	User    string            `json:"user"`
	Secrets map[string]string `json:"secrets"`
	Hooks   hooksSpec         `json:"hooks"`
}

type hooksSpec struct {
	Modified *string `json:"modified"`
	Ready    *string `json:"ready"`
}

// LoadJobs enumerates every ".json" entry directly under dir that is not a
// directory, in lexicographic path order, decodes each with
// DisallowUnknownFields (sidecred's UnmarshalConfig strictness idiom),
// expands "${ENV}" in dir and in each secret path key (mode and user are
// taken as written), and returns the populated registry.
func LoadJobs(dir string) (*registry.Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ConfigError{Path: dir, Err: err}
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	reg := registry.New()
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := loadJobFile(reg, path); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func loadJobFile(reg *registry.Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigError{Path: path, Err: err}
	}

	var specs map[string]jobSpec
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&specs); err != nil {
		return &ConfigError{Path: path, Err: err}
	}

	// Map iteration order is randomized per run; sort template refs so a
	// file declaring several templates still feeds the registry in a
	// deterministic order, matching the cross-file lexicographic sort above.
	refs := make([]string, 0, len(specs))
	for templateRef := range specs {
		refs = append(refs, templateRef)
	}
	sort.Strings(refs)

	for _, templateRef := range refs {
		job, err := normalizeJob(templateRef, specs[templateRef])
		if err != nil {
			return &ConfigError{Path: path, Err: err}
		}
		reg.Add(job)
	}
	return nil
}

func normalizeJob(templateRef string, spec jobSpec) (registry.Job, error) {
	outDir, err := subst.Expand(spec.Dir)
	if err != nil {
		return registry.Job{}, fmt.Errorf("template %q: dir: %w", templateRef, err)
	}

	declared := make(map[string]string, len(spec.Secrets))
	for rawPath, binding := range spec.Secrets {
		expanded, err := subst.Expand(rawPath)
		if err != nil {
			return registry.Job{}, fmt.Errorf("template %q: secret %q: %w", templateRef, rawPath, err)
		}
		declared[expanded] = binding
	}

	return registry.Job{
		TemplateRef:     templateRef,
		OutputDir:       outDir,
		FileMode:        spec.Mode,
		OwnerUser:       spec.User,
		DeclaredSecrets: declared,
		Hooks: registry.Hooks{
			Modified: derefOrEmpty(spec.Hooks.Modified),
			Ready:    derefOrEmpty(spec.Hooks.Ready),
		},
	}, nil
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
