package provider

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// settings is the per-backend configuration shared by every provider.
type settings struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	timeout      time.Duration
	logger       *zap.Logger
}

// Option customises a provider backend.
type Option func(*settings)

// WithBaseURL points the backend at another API root, e.g. a test server.
func WithBaseURL(u string) Option { return func(s *settings) { s.baseURL = u } }

// WithHTTPClient sets the client used for API calls.
func WithHTTPClient(c *http.Client) Option { return func(s *settings) { s.httpClient = c } }

// WithPollInterval sets the fixed delay between result polls.
func WithPollInterval(d time.Duration) Option { return func(s *settings) { s.pollInterval = d } }

// WithTimeout sets the overall deadline for one job.
func WithTimeout(d time.Duration) Option { return func(s *settings) { s.timeout = d } }

// WithLogger sets the logger used for job progress.
func WithLogger(l *zap.Logger) Option { return func(s *settings) { s.logger = l } }

func newSettings(baseURL string, interval, timeout time.Duration, opts []Option) settings {
	s := settings{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: interval,
		timeout:      timeout,
		logger:       zap.NewNop(),
	}
	for _, o := range opts {
		o(&s)
	}
	return s
}
