package challenge_test

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/firasghr/GoChallengeEngine/challenge"
)

func TestError_UnwrapsSentinelAndCause(t *testing.T) {
	err := challenge.NewError(challenge.ErrExtraction, challenge.IuamV1, "extract form", io.ErrUnexpectedEOF)

	assert.ErrorIs(t, err, challenge.ErrExtraction)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, challenge.ErrSolve)
	assert.Equal(t, "challenge iuam_v1: extract form: challenge extraction failed: unexpected EOF", err.Error())

	var ce *challenge.Error
	wrapped := errors.Join(errors.New("outer"), err)
	if assert.ErrorAs(t, wrapped, &ce) {
		assert.Equal(t, challenge.IuamV1, ce.Kind)
		assert.Equal(t, "extract form", ce.Step)
	}
}

func TestError_NilCause(t *testing.T) {
	err := challenge.NewError(challenge.ErrLoopProtection, challenge.CaptchaV1, "", nil)
	assert.Equal(t, "challenge captcha_v1: challenge loop protection triggered", err.Error())
	assert.Len(t, err.Unwrap(), 1)
}
