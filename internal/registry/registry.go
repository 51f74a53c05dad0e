// Package registry implements the template-job registry (C5): an
// insert-only mapping of template identifier -> TemplateJob, plus the two
// higher-level sweep procedures the broker drives convergence with.
//
// materialize_for_path / materialize_all_ready are the direct Go ports of
// the original rconfd TemplateConfs::generate_templates /
// generate_all_templates (original_source/src/conf.rs).
package registry

import (
	"fmt"
	"time"

	"github.com/eburghar/rconfd/internal/secret"
)

// Hooks names the two event-triggered commands a template job may run.
type Hooks struct {
	Modified string // empty means "no hook"
	Ready    string
}

// Job is a per-template declaration.
type Job struct {
	TemplateRef     string
	OutputDir       string
	FileMode        string            // octal string, e.g. "0640"
	OwnerUser       string            // empty means "process default owner"
	DeclaredSecrets map[string]string // SecretPath-repr -> binding name
	Hooks           Hooks
}

// Registry is the insert-only template_ref -> Job mapping. Iteration order
// is deterministic: insertion order, fed by the lexicographic sort of
// config file paths performed by the caller at load time.
type Registry struct {
	jobs  map[string]Job
	order []string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{jobs: make(map[string]Job)}
}

// Add inserts a job. Re-adding the same template_ref overwrites it but does
// not change its position in iteration order.
func (r *Registry) Add(j Job) {
	if _, exists := r.jobs[j.TemplateRef]; !exists {
		r.order = append(r.order, j.TemplateRef)
	}
	r.jobs[j.TemplateRef] = j
}

// Get looks up a job by template ref.
func (r *Registry) Get(templateRef string) (Job, bool) {
	j, ok := r.jobs[templateRef]
	return j, ok
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int { return len(r.order) }

// All iterates jobs in insertion order.
func (r *Registry) All(yield func(Job)) {
	for _, ref := range r.order {
		yield(r.jobs[ref])
	}
}

// Enqueue is the callback signature the sweep procedures use to hand
// messages back to the broker, kept as a narrow interface instead of
// depending on the broker package directly (avoids an import cycle: broker
// depends on registry, not the reverse).
type Enqueue interface {
	FetchSecret(path string, triggerMaterialize bool)
	MaterializeTemplate(templateRef string)
}

// MaterializeForPath implements the first sweep: for every job whose
// declared_secrets contains path AND every declared secret of which
// is currently present in the store, refresh any stale/absent declared
// secret (without re-triggering materialize) then enqueue
// MaterializeTemplate for that job.
func (r *Registry) MaterializeForPath(store *secret.Store, path string, enqueue Enqueue) {
	for _, ref := range r.order {
		job := r.jobs[ref]
		if _, declares := job.DeclaredSecrets[path]; !declares {
			continue
		}
		if !allPresent(job, store) {
			continue
		}
		for declaredPath := range job.DeclaredSecrets {
			s, ok := store.Get(declaredPath)
			if !ok || !s.IsValid(time.Now()) {
				enqueue.FetchSecret(declaredPath, false)
			}
		}
		enqueue.MaterializeTemplate(ref)
	}
}

// MaterializeAllReady implements the second sweep: for every job whose
// declared secrets are all present, enqueue MaterializeTemplate;
// otherwise log-and-skip. logf may be nil.
func (r *Registry) MaterializeAllReady(store *secret.Store, enqueue Enqueue, logf func(format string, args ...interface{})) {
	for _, ref := range r.order {
		job := r.jobs[ref]
		if allPresent(job, store) {
			enqueue.MaterializeTemplate(ref)
		} else if logf != nil {
			logf("skipping template %q due to undefined secrets", ref)
		}
	}
}

func allPresent(job Job, store *secret.Store) bool {
	for declaredPath := range job.DeclaredSecrets {
		if _, ok := store.Get(declaredPath); !ok {
			return false
		}
	}
	return true
}

// ValidateDeclaredSecrets checks that every key of every job's
// declared_secrets parses as a valid SecretPath. Callers pass a parse
// function to avoid this package depending on secretpath directly (kept
// decoupled the same way Enqueue decouples registry from broker).
func (r *Registry) ValidateDeclaredSecrets(parse func(string) error) error {
	for _, ref := range r.order {
		job := r.jobs[ref]
		for p := range job.DeclaredSecrets {
			if err := parse(p); err != nil {
				return fmt.Errorf("registry: template %q: %w", ref, err)
			}
		}
	}
	return nil
}
