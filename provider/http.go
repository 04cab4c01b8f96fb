package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/firasghr/GoChallengeEngine/challenge"
	"github.com/firasghr/GoChallengeEngine/payload"
)

// maxResponseBytes bounds how much of a provider response is read.
const maxResponseBytes = 1 << 20

// ServiceUnavailableError reports an HTTP 500/502 from the provider.
type ServiceUnavailableError struct {
	Provider string
	Status   int
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("provider %s: service unavailable (HTTP %d)", e.Provider, e.Status)
}

// Unwrap returns challenge.ErrServiceUnavailable.
func (e *ServiceUnavailableError) Unwrap() error { return challenge.ErrServiceUnavailable }

func (s settings) endpoint(path string) string {
	return strings.TrimRight(s.baseURL, "/") + path
}

func (s settings) postJSON(ctx context.Context, name, path string, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("provider %s: encode request: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(path), bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("provider %s: build request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return s.do(name, req)
}

func (s settings) postForm(ctx context.Context, name, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(path), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("provider %s: build request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(name, req)
}

func (s settings) get(ctx context.Context, name, path string, query url.Values) ([]byte, error) {
	u := s.endpoint(path)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("provider %s: build request: %w", name, err)
	}
	return s.do(name, req)
}

func (s settings) do(name string, req *http.Request) ([]byte, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %s %s: %w", name, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusInternalServerError, http.StatusBadGateway:
		return nil, &ServiceUnavailableError{Provider: name, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("provider %s: read response: %w", name, err)
	}
	if resp.StatusCode >= 300 {
		return nil, &APIError{Provider: name, Code: fmt.Sprintf("HTTP_%d", resp.StatusCode), Message: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// decode checks data against want and unmarshals it into out.  Schema drift
// becomes an *APIError with code SCHEMA_DRIFT.
func decode(name string, data []byte, want payload.Schema, out any) error {
	if err := payload.Require(data, want); err != nil {
		var de *payload.DriftError
		if errors.As(err, &de) {
			return &APIError{Provider: name, Code: "SCHEMA_DRIFT", Message: payload.FormatMismatches(de.Mismatches, "; ")}
		}
		return &APIError{Provider: name, Code: "BAD_RESPONSE", Message: err.Error()}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &APIError{Provider: name, Code: "BAD_RESPONSE", Message: err.Error()}
	}
	return nil
}
