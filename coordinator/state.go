package coordinator

import (
	"fmt"
	"time"

	"github.com/firasghr/GoChallengeEngine/challenge"
)

// RetryState is the per logical request state of the pipeline: the number of
// challenges solved in a row and the IUAM delay learned from the first page.
//
// A RetryState must not be shared by requests in flight at the same time;
// each concurrent request needs its own.
type RetryState struct {
	// Depth counts challenges handled since the last real response.
	Depth int

	// MaxDepth is the loop protection ceiling.
	MaxDepth int

	delay      time.Duration
	delayKnown bool
}

// NewRetryState returns a zeroed state with the given ceiling.
func NewRetryState(maxDepth int) *RetryState {
	return &RetryState{MaxDepth: maxDepth}
}

// Reset zeroes the depth counter.  The cached delay is kept.
func (s *RetryState) Reset() { s.Depth = 0 }

// CachedDelay returns the IUAM delay extracted earlier, if any.
func (s *RetryState) CachedDelay() (time.Duration, bool) { return s.delay, s.delayKnown }

func (s *RetryState) cacheDelay(d time.Duration) {
	s.delay, s.delayKnown = d, true
}

// enter accounts for one more challenge.  When the ceiling has been reached
// the counter is reset, so a fresh top-level call may try again, and a
// loop protection error is returned.
func (s *RetryState) enter(kind challenge.Kind) error {
	if s.Depth >= s.MaxDepth {
		n := s.Depth
		s.Reset()
		return challenge.NewError(challenge.ErrLoopProtection, kind, "solve",
			fmt.Errorf("tried to solve %d time(s) in a row", n))
	}
	s.Depth++
	return nil
}
