package session_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/firasghr/GoChallengeEngine/challenge"
	"github.com/firasghr/GoChallengeEngine/client"
	"github.com/firasghr/GoChallengeEngine/config"
	"github.com/firasghr/GoChallengeEngine/session"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Delay = "0s"
	cfg.DoubleDown = false
	return cfg
}

func iuamPage(t *testing.T) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("..", "testdata", "iuam_v1.html"))
	require.NoError(t, err)
	return b
}

func TestNewSession_Basic(t *testing.T) {
	s, err := session.NewSession(1, "", testConfig(), session.Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, s.ID)
	assert.Equal(t, session.StateIdle, s.GetState())
	assert.NotNil(t, s.Client)
	assert.NotNil(t, s.CookieJar)
	assert.Equal(t, "chrome", s.Profile.Name)
	assert.NotNil(t, s.Coordinator())
}

func TestNewSession_NilConfig(t *testing.T) {
	_, err := session.NewSession(1, "", nil, session.Options{})
	assert.Error(t, err)
}

func TestNewSession_InvalidProxy(t *testing.T) {
	_, err := session.NewSession(1, "://bad proxy", testConfig(), session.Options{})
	assert.Error(t, err)
}

func TestNewSession_NormalisesProxy(t *testing.T) {
	s, err := session.NewSession(1, "127.0.0.1:8080", testConfig(), session.Options{})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080", s.Proxy)
}

func TestNewSession_CaptchaUsesSessionProxy(t *testing.T) {
	cfg := testConfig()
	cfg.Captcha.Provider = "2captcha"
	cfg.Captcha.Credentials = map[string]string{"api_key": "k"}
	cfg.Captcha.UseSessionProxy = true

	s, err := session.NewSession(1, "socks5h://u:p@10.1.2.3:1080", cfg, session.Options{})
	require.NoError(t, err)

	p := s.Coordinator().Options().Provider
	require.NotNil(t, p)
	require.NotNil(t, p.Proxy)
	assert.Equal(t, "socks5", p.Proxy.Type)
	assert.Equal(t, "10.1.2.3", p.Proxy.Host)
	assert.Equal(t, "1080", p.Proxy.Port)
	assert.Equal(t, "u", p.Proxy.Login)

	// Other sessions built from the same config are unaffected.
	direct, err := session.NewSession(2, "", cfg, session.Options{})
	require.NoError(t, err)
	assert.Nil(t, direct.Coordinator().Options().Provider.Proxy)
}

func TestExecuteRequest_InvalidURL(t *testing.T) {
	s, err := session.NewSession(1, "", testConfig(), session.Options{})
	require.NoError(t, err)
	_, err = s.ExecuteRequest(context.Background(), http.MethodGet, "://bad", nil)
	assert.Error(t, err)
}

func TestExecuteRequest_PassThroughAppliesHeaders(t *testing.T) {
	var got http.Header
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = io.WriteString(w, "hello")
	}))
	defer ts.Close()

	s, err := session.NewSession(1, "", testConfig(), session.Options{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	s.SetHeader("X-Trace", "abc")
	s.SetHeader("Accept-Language", "de-DE")

	resp, err := s.ExecuteRequest(context.Background(), http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, client.ChromeUserAgent, got.Get("User-Agent"))
	assert.Equal(t, "abc", got.Get("X-Trace"))
	assert.Equal(t, []string{"de-DE"}, got.Values("Accept-Language"))
	assert.Equal(t, "navigate", got.Get("Sec-Fetch-Mode"))
}

// Large compressed downloads are decoded while read, in full.
func TestExecuteRequest_DecodesLargeBody(t *testing.T) {
	plain := strings.Repeat("0123456789abcdef", 2<<20+1024)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		_, _ = io.WriteString(zw, plain)
		_ = zw.Close()
	}))
	defer ts.Close()

	s, err := session.NewSession(1, "", testConfig(), session.Options{})
	require.NoError(t, err)

	resp, err := s.ExecuteRequest(context.Background(), http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Empty(t, resp.Header.Get("Content-Encoding"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, len(plain), len(body))
	assert.Equal(t, plain, string(body))
}

// The server challenges until the clearance cookie is present, and the
// session must end with the protected page.
func TestExecuteRequest_SolvesIUAM(t *testing.T) {
	page := iuamPage(t)
	var submissions atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/protected", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		if ck, err := r.Cookie("cf_clearance"); err == nil && ck.Value == "ok" {
			_, _ = io.WriteString(w, "welcome "+r.Method)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write(page)
	})
	mux.HandleFunc("/cdn-cgi/l/chk_jschl", func(w http.ResponseWriter, r *http.Request) {
		submissions.Add(1)
		w.Header().Set("Server", "cloudflare")
		if r.Method != http.MethodPost || r.FormValue("jschl_answer") == "" || r.FormValue("jschl_vc") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "cf_clearance", Value: "ok", Path: "/"})
		http.Redirect(w, r, "/protected", http.StatusFound)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	s, err := session.NewSession(1, "", testConfig(), session.Options{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	resp, err := s.ExecuteRequest(context.Background(), http.MethodGet, ts.URL+"/protected", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "welcome GET", string(body))
	assert.Equal(t, int32(1), submissions.Load())

	// The cookie is kept, so a second request goes straight through.
	resp, err = s.ExecuteRequest(context.Background(), http.MethodGet, ts.URL+"/protected", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(1), submissions.Load())
}

func TestExecuteRequest_ReplaysPostBody(t *testing.T) {
	page := iuamPage(t)
	var cleared atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("/form", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		if cleared.Load() {
			b, _ := io.ReadAll(r.Body)
			_, _ = io.WriteString(w, r.Method+" "+string(b))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write(page)
	})
	mux.HandleFunc("/cdn-cgi/l/chk_jschl", func(w http.ResponseWriter, r *http.Request) {
		cleared.Store(true)
		http.Redirect(w, r, "/form", http.StatusFound)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	s, err := session.NewSession(1, "", testConfig(), session.Options{})
	require.NoError(t, err)

	resp, err := s.ExecuteRequest(context.Background(), http.MethodPost, ts.URL+"/form", strings.NewReader("a=1&b=2"))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "POST a=1&b=2", string(body))
}

func TestExecuteRequest_LoopProtection(t *testing.T) {
	page := iuamPage(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write(page)
	})
	mux.HandleFunc("/cdn-cgi/l/chk_jschl", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusFound)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cfg := testConfig()
	cfg.SolveDepth = 2
	s, err := session.NewSession(1, "", cfg, session.Options{})
	require.NoError(t, err)

	_, err = s.ExecuteRequest(context.Background(), http.MethodGet, ts.URL+"/", nil)
	require.ErrorIs(t, err, challenge.ErrLoopProtection)
	assert.Contains(t, err.Error(), "session 1")
}

func TestClose(t *testing.T) {
	s, err := session.NewSession(1, "", testConfig(), session.Options{})
	require.NoError(t, err)
	s.Close()
	assert.Equal(t, session.StateClosed, s.GetState())
}

func TestExecuteRequest_SerializeHosts(t *testing.T) {
	var inFlight, peak atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		_, _ = io.WriteString(w, "ok")
	}))
	defer ts.Close()

	cfg := testConfig()
	cfg.SerializeHosts = true
	s, err := session.NewSession(1, "", cfg, session.Options{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := s.ExecuteRequest(context.Background(), http.MethodGet, ts.URL, nil)
			if assert.NoError(t, err) {
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
}
