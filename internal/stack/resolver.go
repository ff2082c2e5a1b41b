package stack

import (
	ierr "github.com/flexprice/stripesync/internal/errors"
	"github.com/flexprice/stripesync/internal/manifest"
)

// FunctionResolver answers where a declared function receives webhook traffic.
type FunctionResolver interface {
	// ResolveWebhookRoute returns the HTTP POST route path of the named
	// function. It fails when the function is not declared or has no HTTP
	// POST trigger.
	ResolveWebhookRoute(functionName string) (string, error)
}

type manifestResolver struct {
	m *manifest.Manifest
}

// NewManifestResolver resolves function routes from the stack manifest's
// function definitions.
func NewManifestResolver(m *manifest.Manifest) FunctionResolver {
	return &manifestResolver{m: m}
}

func (r *manifestResolver) ResolveWebhookRoute(functionName string) (string, error) {
	fn, ok := r.m.FindFunction(functionName)
	if !ok {
		return "", ierr.NewError("webhook function is not defined in the stack").
			WithHintf("Function %s is referenced by a webhook but not declared under functions", functionName).
			WithReportableDetails(map[string]any{
				"functionName": functionName,
			}).
			Mark(ierr.ErrNotFound)
	}

	path, ok := fn.HTTPPostPath()
	if !ok {
		return "", ierr.NewError("webhook function has no HTTP POST trigger").
			WithHintf("Function %s must expose an httpApi event with method POST", functionName).
			WithReportableDetails(map[string]any{
				"functionName": functionName,
			}).
			Mark(ierr.ErrNotFound)
	}

	return path, nil
}
