// Package jschallenge computes the numeric proof of the IUAM arithmetic
// challenge.
//
// Architecture:
//   - Evaluator is the backend abstraction.  Backends register themselves
//     under a unique name at init time and are looked up with Get.
//   - "native" parses the obfuscated arithmetic directly and never executes
//     page script.  It is the default.
//   - "otto" and "goja" run the script inside an embedded pure-Go
//     JavaScript engine, seeded with the synthetic document produced by the
//     extractor package.
//
// All backends are stateless between calls and safe for concurrent use.
package jschallenge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/firasghr/GoChallengeEngine/challenge"
	"github.com/firasghr/GoChallengeEngine/extractor"
)

// Evaluator computes the answer string of a challenge script.
type Evaluator interface {
	// Name is the registry key of the backend.
	Name() string

	// Eval evaluates script within env and returns the value assigned to
	// the answer field, formatted exactly as the page would submit it.
	Eval(ctx context.Context, env extractor.Environment, script string) (string, error)
}

// SolveError reports a script the backend could not evaluate.  It unwraps to
// challenge.ErrSolve.
type SolveError struct {
	Backend string
	Reason  string
	Err     error
}

func (e *SolveError) Error() string {
	msg := e.Backend + ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns challenge.ErrSolve and the underlying cause.
func (e *SolveError) Unwrap() []error {
	if e.Err != nil {
		return []error{challenge.ErrSolve, e.Err}
	}
	return []error{challenge.ErrSolve}
}

func solveErrorf(backend string, format string, args ...any) *SolveError {
	return &SolveError{Backend: backend, Reason: fmt.Sprintf(format, args...)}
}

// UnknownEvaluatorError is returned by Get for an unregistered name.
type UnknownEvaluatorError struct {
	Name  string
	Known []string
}

func (e *UnknownEvaluatorError) Error() string {
	return fmt.Sprintf("unknown evaluator %q (registered: %s)", e.Name, strings.Join(e.Known, ", "))
}

// Unwrap returns challenge.ErrUnknownEvaluator.
func (e *UnknownEvaluatorError) Unwrap() error { return challenge.ErrUnknownEvaluator }

// ── Registry ────────────────────────────────────────────────────────────────

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Evaluator)
)

// Register makes an evaluator available by its name.  It panics when e is
// nil or when the name is already taken.
func Register(e Evaluator) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if e == nil {
		panic("jschallenge: Register evaluator is nil")
	}
	name := e.Name()
	if _, dup := registry[name]; dup {
		panic("jschallenge: Register called twice for evaluator " + name)
	}
	registry[name] = e
}

// Get returns the evaluator registered under name.
func Get(name string) (Evaluator, error) {
	registryMu.RLock()
	e, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, &UnknownEvaluatorError{Name: name, Known: Names()}
	}
	return e, nil
}

// Names returns the sorted names of all registered evaluators.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
