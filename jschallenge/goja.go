package jschallenge

import (
	"context"

	"github.com/dop251/goja"

	"github.com/firasghr/GoChallengeEngine/extractor"
)

// GojaName is the registry name of the goja backend.
const GojaName = "goja"

func init() { Register(NewGojaEvaluator("")) }

// GojaEvaluator runs challenge scripts with the goja ECMAScript engine.  A
// fresh runtime is created per Eval.
type GojaEvaluator struct {
	userAgent string
}

// NewGojaEvaluator returns an evaluator exposing userAgent as
// navigator.userAgent.  An empty string selects DefaultUserAgent.
func NewGojaEvaluator(userAgent string) *GojaEvaluator {
	return &GojaEvaluator{userAgent: userAgent}
}

// Name implements Evaluator.
func (e *GojaEvaluator) Name() string { return GojaName }

// Eval implements Evaluator.  A watchdog interrupts the runtime when ctx is
// done.
func (e *GojaEvaluator) Eval(ctx context.Context, env extractor.Environment, script string) (string, error) {
	ctx, cancel := withEvalTimeout(ctx)
	defer cancel()

	vm := goja.New()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	val, err := vm.RunString(program(e.userAgent, env, script))
	if err != nil {
		if _, ok := err.(*goja.InterruptedError); ok {
			return "", &SolveError{Backend: GojaName, Reason: "evaluation interrupted", Err: ctx.Err()}
		}
		return "", &SolveError{Backend: GojaName, Reason: "run script", Err: err}
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return "", solveErrorf(GojaName, "script produced no value")
	}
	return checkAnswer(GojaName, val.String())
}
