package release

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	jsonpool "github.com/ajitpratap0/bioetl/pkg/json"
)

// scriptedHandshaker returns its responses in order and records endpoints.
type scriptedHandshaker struct {
	responses []func(endpoint string) (*HandshakeResult, error)
	calls     []string
}

func (s *scriptedHandshaker) Handshake(_ context.Context, endpoint string, _ bool) (*HandshakeResult, error) {
	s.calls = append(s.calls, endpoint)
	if len(s.responses) == 0 {
		return nil, fmt.Errorf("no scripted response")
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next(endpoint)
}

func payload(kv ...interface{}) func(string) (*HandshakeResult, error) {
	return func(endpoint string) (*HandshakeResult, error) {
		m := map[string]interface{}{}
		for i := 0; i+1 < len(kv); i += 2 {
			m[kv[i].(string)] = kv[i+1]
		}
		return NewHandshakeResult(endpoint, m, time.Now()), nil
	}
}

func failing(msg string) func(string) (*HandshakeResult, error) {
	return func(string) (*HandshakeResult, error) { return nil, fmt.Errorf("%s", msg) }
}

func TestExtractRelease(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]interface{}
		want    string
	}{
		{"most specific wins", map[string]interface{}{"version": "v2", "chembl_db_version": "ChEMBL_34"}, "ChEMBL_34"},
		{"trimmed", map[string]interface{}{"release": "  CHEMBL_33 \n"}, "CHEMBL_33"},
		{"blank skipped", map[string]interface{}{"chembl_release": "  ", "api_version": "1.2"}, "1.2"},
		{"number", map[string]interface{}{"version": jsonpool.Number("34")}, "34"},
		{"none", map[string]interface{}{"status": "UP"}, ""},
		{"nil value", map[string]interface{}{"release": nil}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractRelease(tt.payload))
		})
	}
}

func TestDiscoverCapturesRelease(t *testing.T) {
	tr := NewTracker(FixedRelease{Value: "CHEMBL_34"}, nil)

	rel, outcome := tr.Discover(context.Background(), Request{Endpoint: "/status.json", Enabled: true})
	assert.Equal(t, "CHEMBL_34", rel)
	assert.Equal(t, OutcomeCaptured, outcome)
	require.NotNil(t, tr.Last())
	assert.Equal(t, time.UTC, tr.Last().IssuedAt.Location())
}

func TestReleaseStableAfterFailure(t *testing.T) {
	handshake := &scriptedHandshaker{responses: []func(string) (*HandshakeResult, error){
		payload("chembl_release", "CHEMBL_34"),
		failing("connection reset"),
		payload("status", "UP"),
	}}
	tr := NewTracker(handshake, nil)
	req := Request{Endpoint: "/status.json", Enabled: true}

	rel, _ := tr.Discover(context.Background(), req)
	require.Equal(t, "CHEMBL_34", rel)

	rel, outcome := tr.Discover(context.Background(), req)
	assert.Equal(t, "CHEMBL_34", rel)
	assert.Equal(t, OutcomeUnchanged, outcome)

	rel, outcome = tr.Discover(context.Background(), req)
	assert.Equal(t, "CHEMBL_34", rel, "payload without release keeps the cache")
	assert.Equal(t, OutcomeUnchanged, outcome)
}

func TestDiscoverUpdatesOnDifferentRelease(t *testing.T) {
	handshake := &scriptedHandshaker{responses: []func(string) (*HandshakeResult, error){
		payload("chembl_release", "CHEMBL_34"),
		payload("chembl_release", "CHEMBL_35"),
	}}
	tr := NewTracker(handshake, nil)
	req := Request{Endpoint: "/status.json", Enabled: true}

	tr.Discover(context.Background(), req)
	rel, outcome := tr.Discover(context.Background(), req)
	assert.Equal(t, "CHEMBL_35", rel)
	assert.Equal(t, OutcomeCaptured, outcome)
}

func TestDiscoverSkipped(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		handshake := &scriptedHandshaker{}
		tr := NewTracker(handshake, nil)
		tr.Seed("CHEMBL_30")

		rel, outcome := tr.Discover(context.Background(), Request{Endpoint: "/status.json", Enabled: false})
		assert.Equal(t, "CHEMBL_30", rel)
		assert.Equal(t, OutcomeSkipped, outcome)
		assert.Empty(t, handshake.calls)
	})

	t.Run("no capability", func(t *testing.T) {
		tr := NewTracker(NoHandshake{}, nil)
		rel, outcome := tr.Discover(context.Background(), Request{Endpoint: "/status.json", Enabled: true})
		assert.Equal(t, "", rel)
		assert.Equal(t, OutcomeSkipped, outcome)
	})
}

func TestDiscoverEndpointOnlyHandshake(t *testing.T) {
	var seen string
	handshake := HandshakeFunc(func(_ context.Context, endpoint string) (*HandshakeResult, error) {
		seen = endpoint
		return NewHandshakeResult(endpoint, map[string]interface{}{"chembl_db_version": "ChEMBL_34"}, time.Now()), nil
	})
	tr := NewTracker(handshake, nil)

	rel, outcome := tr.Discover(context.Background(), Request{Endpoint: "/status", Enabled: true, Timeout: time.Second})
	assert.Equal(t, "ChEMBL_34", rel)
	assert.Equal(t, OutcomeCaptured, outcome)
	assert.Equal(t, "/status", seen)
}

func TestDiscoverFallbacks(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	handshake := &scriptedHandshaker{responses: []func(string) (*HandshakeResult, error){
		failing("404"),
		payload("release", "CHEMBL_34"),
	}}
	tr := NewTracker(handshake, zap.New(core))

	rel, outcome := tr.Discover(context.Background(), Request{
		Endpoint:  "/status.json",
		Fallbacks: []string{"/status"},
		Enabled:   true,
	})
	assert.Equal(t, "CHEMBL_34", rel)
	assert.Equal(t, OutcomeCaptured, outcome)
	assert.Equal(t, []string{"/status.json", "/status"}, handshake.calls)
	assert.Equal(t, 1, logs.FilterMessage("handshake failed").Len())
}

// reportingHandshaker returns payloads without a release but knows one.
type reportingHandshaker struct{}

func (reportingHandshaker) Handshake(_ context.Context, endpoint string, _ bool) (*HandshakeResult, error) {
	return NewHandshakeResult(endpoint, map[string]interface{}{"status": "UP"}, time.Now()), nil
}

func (reportingHandshaker) Release() string { return "CHEMBL_31" }

func TestDiscoverReporterFallback(t *testing.T) {
	tr := NewTracker(reportingHandshaker{}, nil)
	rel, outcome := tr.Discover(context.Background(), Request{Endpoint: "/status.json", Enabled: true})
	assert.Equal(t, "CHEMBL_31", rel)
	assert.Equal(t, OutcomeCaptured, outcome)
}

func TestDiscoverBudget(t *testing.T) {
	blocking := HandshakeFunc(func(ctx context.Context, _ string) (*HandshakeResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	tr := NewTracker(blocking, nil)
	tr.Seed("CHEMBL_29")

	start := time.Now()
	rel, outcome := tr.Discover(context.Background(), Request{
		Endpoint:  "/status.json",
		Fallbacks: []string{"/a", "/b", "/c"},
		Enabled:   true,
		Budget:    50 * time.Millisecond,
	})
	assert.Equal(t, "CHEMBL_29", rel)
	assert.Equal(t, OutcomeUnchanged, outcome)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDiscoverRecoversPanickingHandshake(t *testing.T) {
	panicky := HandshakeFunc(func(context.Context, string) (*HandshakeResult, error) {
		panic("bad handshake")
	})
	tr := NewTracker(panicky, nil)
	assert.NotPanics(t, func() {
		_, outcome := tr.Discover(context.Background(), Request{Endpoint: "/status.json", Enabled: true})
		assert.Equal(t, OutcomeUnchanged, outcome)
	})
}
