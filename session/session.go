// Package session provides the Session type: one browser-like identity with
// its own cookie jar, fingerprint and proxy, whose requests run through the
// challenge coordinator.
package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/firasghr/GoChallengeEngine/client"
	"github.com/firasghr/GoChallengeEngine/config"
	"github.com/firasghr/GoChallengeEngine/coordinator"
	"github.com/firasghr/GoChallengeEngine/fingerprint"
	"github.com/firasghr/GoChallengeEngine/proxy"
)

// Lifecycle states.
const (
	StateIdle   = "idle"
	StateActive = "active"
	StateClosed = "closed"
)

// Options carries the collaborators shared by every session of an engine.
type Options struct {
	// Logger receives session and pipeline events.  Nil disables logging.
	Logger *zap.Logger

	// Observer is passed to the coordinator, typically *metrics.Metrics.
	Observer coordinator.Observer
}

// Session represents one independent identity.
//
// Client and noFollow share a transport and a cookie jar, so the clearance
// cookie obtained while solving is sent on every later request.  A
// sync.RWMutex guards Headers, State and LastActivity.
type Session struct {
	ID int

	// Client follows redirects.  It must not be replaced after construction.
	Client *http.Client

	CookieJar http.CookieJar

	// Proxy is the normalised proxy URL, or empty for direct connections.
	Proxy string

	Profile *fingerprint.Profile

	// Headers are set on every request, overriding the profile.
	Headers map[string]string

	State        string
	CreatedAt    time.Time
	LastActivity time.Time

	noFollow *http.Client
	coord    *coordinator.Coordinator
	log      *zap.Logger

	serializeHosts bool
	hosts          hostLock

	mu sync.RWMutex
}

// NewSession builds a session for proxyURL (empty for direct connections).
func NewSession(id int, proxyURL string, cfg *config.Config, opts Options) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("session %d: config must not be nil", id)
	}
	if proxyURL != "" {
		p, err := proxy.Normalize(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("session %d: %w", id, err)
		}
		proxyURL = p
	}

	profile, err := fingerprint.ByName(cfg.Profile)
	if err != nil {
		return nil, fmt.Errorf("session %d: %w", id, err)
	}

	jar, err := client.NewCookieJar()
	if err != nil {
		return nil, fmt.Errorf("session %d: cookie jar: %w", id, err)
	}
	ccfg := cfg.ClientConfig(proxyURL)
	ccfg.Jar = jar
	profile.ApplyToConfig(&ccfg, cfg.TLSFingerprint)

	c, err := client.New(ccfg)
	if err != nil {
		return nil, fmt.Errorf("session %d: create HTTP client: %w", id, err)
	}
	noFollow := *c
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.Int("session", id))

	copts, err := cfg.CoordinatorOptions(log, opts.Observer)
	if err != nil {
		return nil, fmt.Errorf("session %d: %w", id, err)
	}
	if cfg.Captcha.UseSessionProxy && proxyURL != "" && copts.Provider != nil {
		pc, err := proxy.ForProvider(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("session %d: captcha proxy: %w", id, err)
		}
		p := *copts.Provider
		p.Proxy = pc
		copts.Provider = &p
	}
	coord, err := coordinator.New(copts)
	if err != nil {
		return nil, fmt.Errorf("session %d: %w", id, err)
	}

	now := time.Now()
	return &Session{
		ID:           id,
		Client:       c,
		CookieJar:    jar,
		Proxy:        proxyURL,
		Profile:      profile,
		Headers:      make(map[string]string),
		State:        StateIdle,
		CreatedAt:    now,
		LastActivity: now,
		noFollow:     &noFollow,
		coord:        coord,
		log:          log,

		serializeHosts: cfg.SerializeHosts,
	}, nil
}

// Coordinator returns the challenge coordinator of the session.
func (s *Session) Coordinator() *coordinator.Coordinator { return s.coord }

// SetHeader sets a header sent on every request of the session.
func (s *Session) SetHeader(key, value string) {
	s.mu.Lock()
	s.Headers[key] = value
	s.mu.Unlock()
}

// ExecuteRequest sends a request and resolves any challenge it meets.  The
// returned response has a decoded body, which the caller must close.
//
// body is read fully up front so that the request can be replayed after a
// challenge.
func (s *Session) ExecuteRequest(ctx context.Context, method, targetURL string, body io.Reader) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("session %d: read request body: %w", s.ID, err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, targetURL, rd)
	if err != nil {
		return nil, fmt.Errorf("session %d: build request: %w", s.ID, err)
	}
	return s.Do(ctx, req)
}

// Do runs req through the challenge pipeline with a fresh retry state.
//
// With serialize_hosts set, requests of the session to one host run one at
// a time, so a clearance obtained by one request is reused by the next
// instead of the challenge being solved twice.
func (s *Session) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if s.serializeHosts {
		unlock, err := s.hosts.lock(ctx, req.URL.Host)
		if err != nil {
			return nil, fmt.Errorf("session %d: wait for %s: %w", s.ID, req.URL.Host, err)
		}
		defer unlock()
	}

	s.mu.RLock()
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}
	s.mu.RUnlock()

	resp, err := s.coord.Do(ctx, req, s.coord.NewRetryState(), s.submit)
	s.UpdateLastActivity()
	if err != nil {
		return nil, fmt.Errorf("session %d: %s %s: %w", s.ID, req.Method, req.URL.Redacted(), err)
	}
	// The profile asks for compressed content explicitly, so net/http leaves
	// the body encoded.
	if err := client.StreamResponse(resp); err != nil {
		s.log.Debug("response body left encoded", zap.Error(err))
	}
	return resp, nil
}

func (s *Session) submit(ctx context.Context, req *http.Request, opts coordinator.RequestOptions) (*http.Response, error) {
	s.Profile.ApplyHeaders(req.Header)
	c := s.noFollow
	if opts.FollowRedirects {
		c = s.Client
	}
	return c.Do(req.WithContext(ctx))
}

// UpdateLastActivity records the current time as the session's last activity
// timestamp.
func (s *Session) UpdateLastActivity() {
	s.mu.Lock()
	s.LastActivity = time.Now()
	s.mu.Unlock()
}

// GetState returns the lifecycle state.
func (s *Session) GetState() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State
}

// Close transitions the session to the "closed" state and closes its idle
// connections.  After Close returns the session must not be used.
func (s *Session) Close() {
	s.mu.Lock()
	s.State = StateClosed
	s.mu.Unlock()
	s.Client.CloseIdleConnections()
}
