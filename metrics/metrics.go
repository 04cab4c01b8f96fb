// Package metrics keeps lock-free request and challenge counters.
package metrics

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/firasghr/GoChallengeEngine/challenge"
)

// Metrics counts requests and challenge outcomes.  It implements
// coordinator.Observer and is safe for concurrent use.
type Metrics struct {
	TotalRequests atomic.Uint64
	Success       atomic.Uint64
	Failed        atomic.Uint64

	// Per challenge kind, indexed by challenge.Kind.
	detected [challenge.KindCount]atomic.Uint64
	solved   [challenge.KindCount]atomic.Uint64
	failed   [challenge.KindCount]atomic.Uint64

	loopProtection atomic.Uint64
	solveNanos     atomic.Int64

	startTime time.Time
}

// NewMetrics returns a Metrics whose rate clock starts now.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) IncrementTotal()   { m.TotalRequests.Add(1) }
func (m *Metrics) IncrementSuccess() { m.Success.Add(1) }
func (m *Metrics) IncrementFailed()  { m.Failed.Add(1) }

// ChallengeDetected implements coordinator.Observer.
func (m *Metrics) ChallengeDetected(kind challenge.Kind) {
	if i, ok := index(kind); ok {
		m.detected[i].Add(1)
	}
}

// ChallengeSolved implements coordinator.Observer.
func (m *Metrics) ChallengeSolved(kind challenge.Kind, elapsed time.Duration) {
	if i, ok := index(kind); ok {
		m.solved[i].Add(1)
	}
	m.solveNanos.Add(int64(elapsed))
}

// ChallengeFailed implements coordinator.Observer.
func (m *Metrics) ChallengeFailed(kind challenge.Kind, err error) {
	if i, ok := index(kind); ok {
		m.failed[i].Add(1)
	}
	if errors.Is(err, challenge.ErrLoopProtection) {
		m.loopProtection.Add(1)
	}
}

func index(kind challenge.Kind) (int, bool) {
	i := int(kind)
	return i, i >= 0 && i < challenge.KindCount
}

// RequestsPerSecond returns the average request rate since creation.
func (m *Metrics) RequestsPerSecond() float64 {
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.TotalRequests.Load()) / elapsed
}

// Snapshot returns the request counters.  The three loads are not atomic as
// a group.
func (m *Metrics) Snapshot() (total, success, failed uint64) {
	return m.TotalRequests.Load(), m.Success.Load(), m.Failed.Load()
}

// ChallengeCounts is a point-in-time copy of the counters of one kind.
type ChallengeCounts struct {
	Detected, Solved, Failed uint64
}

// Challenges returns the counters of every kind that has been detected at
// least once.
func (m *Metrics) Challenges() map[challenge.Kind]ChallengeCounts {
	out := make(map[challenge.Kind]ChallengeCounts)
	for _, k := range challenge.Kinds {
		c := ChallengeCounts{
			Detected: m.detected[k].Load(),
			Solved:   m.solved[k].Load(),
			Failed:   m.failed[k].Load(),
		}
		if c.Detected > 0 {
			out[k] = c
		}
	}
	return out
}

// LoopProtections returns how many requests were abandoned by loop
// protection.
func (m *Metrics) LoopProtections() uint64 { return m.loopProtection.Load() }

// AverageSolveTime is the mean time between detection and proof over all
// solved challenges.
func (m *Metrics) AverageSolveTime() time.Duration {
	var n uint64
	for i := range m.solved {
		n += m.solved[i].Load()
	}
	if n == 0 {
		return 0
	}
	return time.Duration(m.solveNanos.Load() / int64(n))
}
