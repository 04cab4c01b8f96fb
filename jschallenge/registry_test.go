package jschallenge_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firasghr/GoChallengeEngine/challenge"
	"github.com/firasghr/GoChallengeEngine/extractor"
	"github.com/firasghr/GoChallengeEngine/jschallenge"
)

type stubEvaluator struct{ name string }

func (s stubEvaluator) Name() string { return s.name }
func (s stubEvaluator) Eval(context.Context, extractor.Environment, string) (string, error) {
	return "1", nil
}

func TestNames_IncludesBuiltins(t *testing.T) {
	names := jschallenge.Names()
	for _, want := range []string{"goja", "native", "otto"} {
		assert.Contains(t, names, want)
	}
	assert.IsIncreasing(t, names)
}

func TestGet_Unknown(t *testing.T) {
	_, err := jschallenge.Get("v8")
	require.Error(t, err)
	assert.ErrorIs(t, err, challenge.ErrUnknownEvaluator)

	var ue *jschallenge.UnknownEvaluatorError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "v8", ue.Name)
	assert.Contains(t, ue.Known, "native")
	assert.Contains(t, err.Error(), "native")
}

func TestRegister_DuplicatePanics(t *testing.T) {
	jschallenge.Register(stubEvaluator{name: "stub-dup"})
	assert.Panics(t, func() { jschallenge.Register(stubEvaluator{name: "stub-dup"}) })
	assert.Panics(t, func() { jschallenge.Register(jschallenge.NativeEvaluator{}) })
	assert.Panics(t, func() { jschallenge.Register(nil) })

	ev, err := jschallenge.Get("stub-dup")
	require.NoError(t, err)
	assert.Equal(t, "stub-dup", ev.Name())
}
