package release

import (
	"context"
	"time"
)

// NoHandshake is the capability of a transport without a version endpoint.
// Trackers built on it never handshake and keep their cached release.
type NoHandshake struct{}

// Handshake does nothing.
func (NoHandshake) Handshake(context.Context, string, bool) (*HandshakeResult, error) {
	return nil, nil
}

// HandshakeFunc adapts an endpoint-only function to Handshaker. The enabled
// flag is honoured by the adapter so the function never sees it.
type HandshakeFunc func(ctx context.Context, endpoint string) (*HandshakeResult, error)

// Handshake calls f when enabled.
func (f HandshakeFunc) Handshake(ctx context.Context, endpoint string, enabled bool) (*HandshakeResult, error) {
	if !enabled {
		return nil, nil
	}
	return f(ctx, endpoint)
}

// FixedRelease answers every handshake with a constant release. It is used for
// offline runs and in tests.
type FixedRelease struct {
	Value string
	// Err, when set, is returned by every handshake
	Err error
}

// Handshake returns a payload carrying Value under "chembl_release".
func (p FixedRelease) Handshake(_ context.Context, endpoint string, enabled bool) (*HandshakeResult, error) {
	if !enabled {
		return nil, nil
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return NewHandshakeResult(endpoint, map[string]interface{}{"chembl_release": p.Value}, time.Now()), nil
}

// Release implements Reporter.
func (p FixedRelease) Release() string {
	return p.Value
}
