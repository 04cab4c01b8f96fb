package jschallenge

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/firasghr/GoChallengeEngine/extractor"
)

// DefaultEvalTimeout bounds a single script engine evaluation when the
// caller's context has no deadline.
const DefaultEvalTimeout = 10 * time.Second

// DefaultUserAgent is exposed as navigator.userAgent by the engine backends.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// bootstrap seeds minimal browser globals so that challenge scripts do not
// throw on missing references.  The environment prelude runs after it and
// supplies document.
func bootstrap(userAgent string) string {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return fmt.Sprintf("var window = this;\nvar navigator = { userAgent: %q };\nvar location = { hash: \"\" };\n", userAgent)
}

// program joins the bootstrap, the environment prelude and the challenge
// script into one source.
func program(userAgent string, env extractor.Environment, script string) string {
	var b strings.Builder
	b.WriteString(bootstrap(userAgent))
	b.WriteString(env.Prelude())
	b.WriteString(script)
	return b.String()
}

func withEvalTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, DefaultEvalTimeout)
}

// checkAnswer accepts the engine result only when it is a finite number.
// The string itself is returned unchanged.
func checkAnswer(backend, result string) (string, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(result), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return "", solveErrorf(backend, "script produced non-numeric answer %q", result)
	}
	return result, nil
}
