package stack

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ierr "github.com/flexprice/stripesync/internal/errors"
	"github.com/joho/godotenv"
)

// EnvSink receives the provider-issued identifiers the reconcilers resolve:
// webhook signing secrets go to the owning function's environment, product,
// price and portal ids to the stack-wide shared environment.
type EnvSink interface {
	SetFunctionEnv(functionName, key, value string)
	SetSharedEnv(key, value string)
}

// EnvMap is the in-process EnvSink. It is safe for concurrent writers; the
// uniqueness invariants of the manifest guarantee distinct keys per writer.
type EnvMap struct {
	mu        sync.Mutex
	shared    map[string]string
	functions map[string]map[string]string
}

func NewEnvMap() *EnvMap {
	return &EnvMap{
		shared:    make(map[string]string),
		functions: make(map[string]map[string]string),
	}
}

func (e *EnvMap) SetFunctionEnv(functionName, key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn, ok := e.functions[functionName]
	if !ok {
		fn = make(map[string]string)
		e.functions[functionName] = fn
	}
	fn[key] = value
}

func (e *EnvMap) SetSharedEnv(key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shared[key] = value
}

// SharedEnv returns a copy of the shared environment.
func (e *EnvMap) SharedEnv() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyMap(e.shared)
}

// FunctionEnv returns the named function's environment: the shared entries
// overlaid with the function-scoped ones.
func (e *EnvMap) FunctionEnv(functionName string) map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	merged := copyMap(e.shared)
	for k, v := range e.functions[functionName] {
		merged[k] = v
	}
	return merged
}

// WriteFiles persists the collected environment under dir: stack.env holds
// the shared entries, {function}.env each function's merged view.
func (e *EnvMap) WriteFiles(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ierr.WithError(err).
			WithHintf("Could not create env output directory %s", dir).
			Mark(ierr.ErrSystem)
	}

	e.mu.Lock()
	shared := copyMap(e.shared)
	functionNames := make([]string, 0, len(e.functions))
	for name := range e.functions {
		functionNames = append(functionNames, name)
	}
	e.mu.Unlock()

	if err := godotenv.Write(shared, filepath.Join(dir, "stack.env")); err != nil {
		return ierr.WithError(err).
			WithHint("Could not write stack.env").
			Mark(ierr.ErrSystem)
	}

	for _, name := range functionNames {
		path := filepath.Join(dir, fmt.Sprintf("%s.env", name))
		if err := godotenv.Write(e.FunctionEnv(name), path); err != nil {
			return ierr.WithError(err).
				WithHintf("Could not write %s", path).
				Mark(ierr.ErrSystem)
		}
	}

	return nil
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
