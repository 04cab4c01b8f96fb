package jschallenge

import (
	"context"
	"errors"

	"github.com/robertkrimen/otto"

	"github.com/firasghr/GoChallengeEngine/extractor"
)

// OttoName is the registry name of the otto backend.
const OttoName = "otto"

func init() { Register(NewOttoEvaluator("")) }

var errOttoHalt = errors.New("otto: evaluation halted")

// OttoEvaluator runs challenge scripts with the otto pure-Go JavaScript
// interpreter.  Every Eval gets a fresh VM, so one evaluator may be shared
// across goroutines.
type OttoEvaluator struct {
	userAgent string
}

// NewOttoEvaluator returns an evaluator exposing userAgent as
// navigator.userAgent.  An empty string selects DefaultUserAgent.
func NewOttoEvaluator(userAgent string) *OttoEvaluator {
	return &OttoEvaluator{userAgent: userAgent}
}

// Name implements Evaluator.
func (e *OttoEvaluator) Name() string { return OttoName }

// Eval implements Evaluator.  The VM is interrupted when ctx is done.
func (e *OttoEvaluator) Eval(ctx context.Context, env extractor.Environment, script string) (result string, err error) {
	ctx, cancel := withEvalTimeout(ctx)
	defer cancel()

	vm := otto.New()
	vm.Interrupt = make(chan func(), 1)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt <- func() { panic(errOttoHalt) }
		case <-done:
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			if r != errOttoHalt {
				panic(r)
			}
			result, err = "", &SolveError{Backend: OttoName, Reason: "evaluation interrupted", Err: ctx.Err()}
		}
	}()

	val, err := vm.Run(program(e.userAgent, env, script))
	if err != nil {
		return "", &SolveError{Backend: OttoName, Reason: "run script", Err: err}
	}
	out, err := val.ToString()
	if err != nil {
		return "", &SolveError{Backend: OttoName, Reason: "convert result", Err: err}
	}
	return checkAnswer(OttoName, out)
}
