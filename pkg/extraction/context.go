package extraction

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/bioetl/pkg/config"
	"github.com/ajitpratap0/bioetl/pkg/release"
)

// ReleaseSource discovers and caches the upstream release.
// *release.Tracker satisfies it.
type ReleaseSource interface {
	Release() string
	Discover(ctx context.Context, req release.Request) (string, release.Outcome)
}

var _ ReleaseSource = (*release.Tracker)(nil)

func handshakeRequest(h config.EffectiveHandshake) release.Request {
	return release.Request{
		Endpoint:  h.Endpoint,
		Fallbacks: h.Fallbacks,
		Enabled:   h.Enabled,
		Timeout:   h.Timeout,
		Budget:    h.Budget,
	}
}

// Context is the per-run state handed to hooks and post-processors.
type Context struct {
	Descriptor *Descriptor
	Source     *config.Effective
	Client     Client
	Fields     []string
	Release    string
	Runtime    config.RuntimeConfig
	Logger     *zap.Logger
	// Metadata is free-form per-run state shared between hooks.
	Metadata map[string]interface{}
	Stats    *BatchExtractionStats
}

// Policy is the invariant policy for this run.
func (c *Context) Policy() config.InvariantPolicy {
	return c.Runtime.Policy()
}

// BatchExtractionStats summarizes one extraction call.
type BatchExtractionStats struct {
	Mode      string        `json:"mode" yaml:"mode"`
	Batches   int           `json:"batches" yaml:"batches"`
	Pages     int           `json:"pages" yaml:"pages"`
	APICalls  int           `json:"api_calls" yaml:"api_calls"`
	CacheHits int           `json:"cache_hits" yaml:"cache_hits"`
	Failures  int           `json:"failures" yaml:"failures"`
	Rows      int           `json:"rows" yaml:"rows"`
	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Fields renders the stats as log fields.
func (s *BatchExtractionStats) Fields() []zap.Field {
	return []zap.Field{
		zap.String("mode", s.Mode),
		zap.Int("batches", s.Batches),
		zap.Int("pages", s.Pages),
		zap.Int("api_calls", s.APICalls),
		zap.Int("cache_hits", s.CacheHits),
		zap.Int("failures", s.Failures),
		zap.Int("rows", s.Rows),
		zap.Duration("elapsed", s.Elapsed),
	}
}
