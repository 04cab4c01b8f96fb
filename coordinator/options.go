package coordinator

import (
	"time"

	"go.uber.org/zap"

	"github.com/firasghr/GoChallengeEngine/challenge"
	"github.com/firasghr/GoChallengeEngine/jschallenge"
	"github.com/firasghr/GoChallengeEngine/provider"
)

// DefaultSolveDepth is the number of consecutive challenges solved before
// loop protection fires.
const DefaultSolveDepth = 3

// Options configures a Coordinator.
type Options struct {
	// SolveDepth is the loop protection ceiling.  Must be at least 1.
	SolveDepth int

	// Delay, when set, replaces the wait extracted from IUAM pages.  A zero
	// value submits immediately, which the vendor usually rejects.
	Delay *time.Duration

	// Evaluator names the registered jschallenge backend used for IUAM
	// pages.  Empty means "native".
	Evaluator string

	// Provider selects the proof provider for captcha and Turnstile pages.
	// Nil means captchas fail with challenge.ErrMissingProviderConfig and
	// Turnstile with challenge.ErrUnsupported.
	Provider *provider.Params

	// DoubleDown repeats the original request once before trusting a
	// captcha classification.  Some sites only serve the captcha until the
	// first cookies are set.
	DoubleDown bool

	// Logger receives pipeline events.  Nil disables logging.
	Logger *zap.Logger

	// Observer is notified of challenge outcomes.  Nil disables it.
	Observer Observer
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		SolveDepth: DefaultSolveDepth,
		Evaluator:  jschallenge.NativeName,
		DoubleDown: true,
	}
}

// Observer receives challenge outcomes, e.g. for metrics.  Implementations
// must be safe for concurrent use when a Coordinator is shared.
type Observer interface {
	// ChallengeDetected is called for every response classified as a
	// challenge, before any handling.
	ChallengeDetected(kind challenge.Kind)

	// ChallengeSolved is called once a proof has been computed or obtained
	// and is about to be submitted.
	ChallengeSolved(kind challenge.Kind, elapsed time.Duration)

	// ChallengeFailed is called once per terminal failure.
	ChallengeFailed(kind challenge.Kind, err error)
}

type nopObserver struct{}

func (nopObserver) ChallengeDetected(challenge.Kind)              {}
func (nopObserver) ChallengeSolved(challenge.Kind, time.Duration) {}
func (nopObserver) ChallengeFailed(challenge.Kind, error)         {}
