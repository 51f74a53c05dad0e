// Package evalr defines the template-evaluator contract, plus a concrete
// adapter over github.com/google/go-jsonnet — the idiomatic Go jsonnet
// engine, the direct analogue of the original rconfd's jrsonnet_evaluator
// (_examples/original_source/src/main.rs).
package evalr

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/go-jsonnet"

	"github.com/eburghar/rconfd/internal/secretval"
)

// Evaluator evaluates a template source file into a mapping of
// relative-path -> string contents, given a name->JSON-value binding bound
// under the external variable "secrets".
type Evaluator interface {
	Evaluate(ctx context.Context, templateRef string, searchPaths []string, secrets map[string]secretval.Value) (map[string]string, error)
}

// EvalError wraps an evaluator diagnostic, always fatal to the enclosing
// pass.
type EvalError struct {
	TemplateRef string
	Err         error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evalr: %s: %v", e.TemplateRef, e.Err)
}
func (e *EvalError) Unwrap() error { return e.Err }
func (e *EvalError) Fatal() bool   { return true }

// JsonnetEvaluator implements Evaluator over jsonnet templates. A template
// is expected to manifest as a JSON object whose top-level keys are
// relative output paths and whose values are the string contents to write
// (or JSON values, which are serialized), the Go analogue of the original's
// multi-file manifestation format.
type JsonnetEvaluator struct{}

// NewJsonnetEvaluator returns the default Evaluator implementation.
func NewJsonnetEvaluator() *JsonnetEvaluator { return &JsonnetEvaluator{} }

// Evaluate implements Evaluator.
func (e *JsonnetEvaluator) Evaluate(ctx context.Context, templateRef string, searchPaths []string, secrets map[string]secretval.Value) (map[string]string, error) {
	vm := jsonnet.MakeVM()
	vm.Importer(&jsonnet.FileImporter{JPaths: searchPaths})

	secretsJSON, err := marshalSecrets(secrets)
	if err != nil {
		return nil, &EvalError{TemplateRef: templateRef, Err: err}
	}
	vm.ExtCode("secrets", secretsJSON)

	out, err := vm.EvaluateFileMulti(templateRef)
	if err != nil {
		return nil, &EvalError{TemplateRef: templateRef, Err: err}
	}
	// Multi-file output manifests every value as JSON; string values are
	// unquoted so they are written verbatim, other values stay serialized.
	for name, content := range out {
		var s string
		if json.Unmarshal([]byte(content), &s) == nil {
			out[name] = s
		}
	}
	return out, nil
}

func marshalSecrets(secrets map[string]secretval.Value) (string, error) {
	// Decode every secret into a plain Go value and marshal the whole map
	// to JSON; JSON is valid jsonnet, so ExtCode parses it directly and a
	// key that isn't a valid identifier still works as a quoted field.
	obj := make(map[string]interface{}, len(secrets))
	for k, v := range secrets {
		var raw interface{}
		if err := v.Decode(&raw); err != nil {
			return "", fmt.Errorf("decode secret %q: %w", k, err)
		}
		obj[k] = raw
	}
	v, err := secretval.FromAny(obj)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}
