package provider

import (
	"context"
	"errors"
)

func init() { Register(returnResponse{}) }

// ErrReturnResponse is returned by the return_response provider.  The
// coordinator recognises it and hands the challenge page back to the caller
// unsolved.
var ErrReturnResponse = errors.New("provider: return challenge response to caller")

// returnResponse claims every captcha type and never solves any.
type returnResponse struct{}

func (returnResponse) Name() string              { return ReturnResponse }
func (returnResponse) Supports(CaptchaType) bool { return true }

func (returnResponse) Solve(context.Context, Task, Params) (string, error) {
	return "", ErrReturnResponse
}
