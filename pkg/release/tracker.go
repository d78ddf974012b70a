package release

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/bioetl/pkg/errors"
	"github.com/ajitpratap0/bioetl/pkg/metrics"
)

// Outcome is the result of one Discover call.
type Outcome string

const (
	// OutcomeSkipped means no handshake ran (disabled or no capability)
	OutcomeSkipped Outcome = "skipped"
	// OutcomeCaptured means a non-empty release was stored
	OutcomeCaptured Outcome = "captured"
	// OutcomeUnchanged means a handshake ran but the cache was kept
	OutcomeUnchanged Outcome = "unchanged"
)

// Request describes one discovery attempt.
type Request struct {
	Endpoint  string
	Fallbacks []string
	Enabled   bool
	// Timeout bounds each handshake call
	Timeout time.Duration
	// Budget bounds the whole attempt including fallbacks
	Budget time.Duration
}

// Tracker caches the release discovered for a run. It is safe for
// concurrent use; only one handshake runs at a time.
type Tracker struct {
	handshaker Handshaker
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	release string
	last    *HandshakeResult
}

// NewTracker creates a tracker around hs. A nil hs behaves like NoHandshake.
func NewTracker(hs Handshaker, logger *zap.Logger) *Tracker {
	if hs == nil {
		hs = NoHandshake{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		handshaker: hs,
		logger:     logger.With(zap.String("component", "release_tracker")),
		now:        time.Now,
	}
}

// Release returns the cached release, "" if none has been captured.
func (t *Tracker) Release() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.release
}

// Last returns the most recent handshake result, nil if no handshake succeeded.
func (t *Tracker) Last() *HandshakeResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Seed sets the cached release without probing, e.g. from a previous run's
// metadata. Empty values are ignored.
func (t *Tracker) Seed(release string) {
	if release == "" {
		return
	}
	t.mu.Lock()
	t.release = release
	t.mu.Unlock()
}

// Discover tries req.Endpoint and then each fallback until one yields a
// release. Handshake failures are logged and never returned: the cached release
// is kept and the run proceeds. The returned release is the cache after the
// attempt.
func (t *Tracker) Discover(ctx context.Context, req Request) (string, Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, none := t.handshaker.(NoHandshake); none || !req.Enabled {
		t.logger.Debug("handshake skipped",
			zap.Bool("enabled", req.Enabled),
			zap.String("release", t.release))
		metrics.HandshakeAttempts.WithLabelValues(string(OutcomeSkipped)).Inc()
		return t.release, OutcomeSkipped
	}

	if req.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Budget)
		defer cancel()
	}

	endpoints := append([]string{req.Endpoint}, req.Fallbacks...)
	for _, endpoint := range endpoints {
		if endpoint == "" {
			continue
		}
		if ctx.Err() != nil {
			t.logger.Warn("handshake budget exhausted", zap.String("endpoint", endpoint))
			break
		}

		result, err := t.handshakeOnce(ctx, endpoint, req.Timeout)
		if err != nil {
			metrics.HandshakeAttempts.WithLabelValues("error").Inc()
			t.logger.Warn("handshake failed",
				zap.String("endpoint", endpoint),
				zap.Error(err))
			continue
		}
		if result == nil {
			continue
		}
		t.last = result

		found := result.Release
		if found == "" {
			if r, ok := t.handshaker.(Reporter); ok {
				found = r.Release()
			}
		}
		if found == "" {
			t.logger.Warn("handshake payload has no release field",
				zap.String("endpoint", endpoint),
				zap.Strings("candidates", CandidateKeys))
			continue
		}

		if found != t.release {
			t.logger.Info("release captured",
				zap.String("endpoint", endpoint),
				zap.String("release", found),
				zap.String("previous", t.release))
		}
		t.release = found
		metrics.HandshakeAttempts.WithLabelValues(string(OutcomeCaptured)).Inc()
		return t.release, OutcomeCaptured
	}

	metrics.HandshakeAttempts.WithLabelValues(string(OutcomeUnchanged)).Inc()
	return t.release, OutcomeUnchanged
}

func (t *Tracker) handshakeOnce(ctx context.Context, endpoint string, timeout time.Duration) (result *HandshakeResult, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = errors.Newf(errors.ErrorTypeHandshake, "handshake panicked: %v", r)
		}
	}()

	result, err = t.handshaker.Handshake(ctx, endpoint, true)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeHandshake, "handshake failed").
			WithDetail("endpoint", endpoint)
	}
	return result, nil
}
