package coordinator_test

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/firasghr/GoChallengeEngine/challenge"
	"github.com/firasghr/GoChallengeEngine/coordinator"
	"github.com/firasghr/GoChallengeEngine/provider"
)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("..", "testdata", name))
	require.NoError(t, err)
	return b
}

// call is one request seen by fakeTransport.
type call struct {
	Method string
	URL    string
	Body   string
	Header http.Header
	Opts   coordinator.RequestOptions
}

// fakeTransport answers coordinator requests from a handler and records
// them.
type fakeTransport struct {
	t       *testing.T
	mu      sync.Mutex
	calls   []call
	handler func(n int, req *http.Request) *http.Response
}

func newTransport(t *testing.T, h func(n int, req *http.Request) *http.Response) *fakeTransport {
	return &fakeTransport{t: t, handler: h}
}

func (f *fakeTransport) Submit(_ context.Context, req *http.Request, opts coordinator.RequestOptions) (*http.Response, error) {
	var body string
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		require.NoError(f.t, err)
		body = string(b)
	}
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, call{
		Method: req.Method,
		URL:    req.URL.String(),
		Body:   body,
		Header: req.Header.Clone(),
		Opts:   opts,
	})
	f.mu.Unlock()

	resp := f.handler(n, req)
	resp.Request = req
	return resp, nil
}

func (f *fakeTransport) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func response(status int, body []byte, kv ...string) *http.Response {
	h := make(http.Header)
	for i := 0; i+1 < len(kv); i += 2 {
		h.Add(kv[i], kv[i+1])
	}
	return &http.Response{
		StatusCode:    status,
		Header:        h,
		Body:          io.NopCloser(strings.NewReader(string(body))),
		ContentLength: int64(len(body)),
	}
}

// vendorPage is a response as the vendor's edge serves it.
func vendorPage(status int, body []byte) *http.Response {
	return response(status, body, "Server", "cloudflare", "Content-Type", "text/html; charset=UTF-8")
}

func okPage(body string) *http.Response {
	return response(http.StatusOK, []byte(body), "Server", "cloudflare")
}

func redirect(status int, location string) *http.Response {
	return response(status, nil, "Server", "cloudflare", "Location", location)
}

func getRequest(t *testing.T, raw string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, raw, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "coordinator-test/1.0")
	return req
}

func noDelay() *time.Duration {
	d := time.Duration(0)
	return &d
}

func newCoordinator(t *testing.T, mutate func(*coordinator.Options)) *coordinator.Coordinator {
	t.Helper()
	opts := coordinator.DefaultOptions()
	opts.Delay = noDelay()
	opts.DoubleDown = false
	if mutate != nil {
		mutate(&opts)
	}
	c, err := coordinator.New(opts)
	require.NoError(t, err)
	return c
}

// recordingObserver counts observer callbacks.
type recordingObserver struct {
	mu       sync.Mutex
	detected []challenge.Kind
	solved   []challenge.Kind
	failed   []error
}

func (o *recordingObserver) ChallengeDetected(k challenge.Kind) {
	o.mu.Lock()
	o.detected = append(o.detected, k)
	o.mu.Unlock()
}

func (o *recordingObserver) ChallengeSolved(k challenge.Kind, _ time.Duration) {
	o.mu.Lock()
	o.solved = append(o.solved, k)
	o.mu.Unlock()
}

func (o *recordingObserver) ChallengeFailed(_ challenge.Kind, err error) {
	o.mu.Lock()
	o.failed = append(o.failed, err)
	o.mu.Unlock()
}

// stubProvider returns a fixed token and records the tasks it was given.
type stubProvider struct {
	name  string
	token string
	err   error

	mu    sync.Mutex
	tasks []provider.Task
}

func (p *stubProvider) Name() string                       { return p.name }
func (p *stubProvider) Supports(provider.CaptchaType) bool { return true }

func (p *stubProvider) Solve(_ context.Context, task provider.Task, _ provider.Params) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, task)
	return p.token, p.err
}

func (p *stubProvider) Tasks() []provider.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]provider.Task(nil), p.tasks...)
}

var (
	stubsMu sync.Mutex
	stubs   = make(map[string]*stubProvider)
)

// stub registers (once per process) and resets the stub provider name.
func stub(name, token string, err error) *stubProvider {
	stubsMu.Lock()
	defer stubsMu.Unlock()
	p, ok := stubs[name]
	if !ok {
		p = &stubProvider{name: name}
		provider.Register(p)
		stubs[name] = p
	}
	p.mu.Lock()
	p.token, p.err, p.tasks = token, err, nil
	p.mu.Unlock()
	return p
}
