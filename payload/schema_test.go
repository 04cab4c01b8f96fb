package payload_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/firasghr/GoChallengeEngine/payload"
)

var createTaskResponse = []byte(`{
	"errorId": 0,
	"taskId": 7654321,
	"status": "ready",
	"solution": {
		"gRecaptchaResponse": "03AGdBq2",
		"cookies": null
	},
	"extra": [1, 2]
}`)

func TestCheck_Match(t *testing.T) {
	mismatches, err := payload.Check(createTaskResponse, payload.Schema{
		"errorId":                     payload.TypeNumber,
		"status":                      payload.TypeString,
		"solution":                    payload.TypeObject,
		"solution.gRecaptchaResponse": payload.TypeString,
		"solution.cookies":            payload.TypeAny,
		"extra":                       payload.TypeArray,
	})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if len(mismatches) != 0 {
		t.Errorf("expected no mismatches, got:\n%s", payload.FormatMismatches(mismatches, "\n"))
	}
}

func TestCheck_MissingAndTypeChange(t *testing.T) {
	mismatches, err := payload.Check(createTaskResponse, payload.Schema{
		"taskId":         payload.TypeString,
		"solution.token": payload.TypeString,
	})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if len(mismatches) != 2 {
		t.Fatalf("expected 2 mismatches, got %d", len(mismatches))
	}
	// Sorted by field path.
	if m := mismatches[0]; m.Field != "solution.token" || m.Kind != payload.MismatchKindMissing {
		t.Errorf("mismatch 0: got %+v", m)
	}
	if m := mismatches[1]; m.Field != "taskId" || m.Kind != payload.MismatchKindTypeChange || m.Actual != payload.TypeNumber {
		t.Errorf("mismatch 1: got %+v", m)
	}
}

func TestCheck_InvalidJSON(t *testing.T) {
	if _, err := payload.Check([]byte("OK|123"), payload.Schema{}); err == nil {
		t.Error("expected error for non-JSON body")
	}
	if _, err := payload.Check([]byte(`[1,2]`), payload.Schema{}); err == nil {
		t.Error("expected error for JSON array")
	}
}

func TestRequire_DriftError(t *testing.T) {
	err := payload.Require([]byte(`{"status":1,"request":42}`), payload.Schema{
		"status":  payload.TypeNumber,
		"request": payload.TypeString,
	})
	var de *payload.DriftError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DriftError, got %v", err)
	}
	if !strings.Contains(err.Error(), `field "request" is number, want string`) {
		t.Errorf("unexpected message: %v", err)
	}

	if err := payload.Require([]byte(`{"status":1}`), payload.Schema{"status": payload.TypeNumber}); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
