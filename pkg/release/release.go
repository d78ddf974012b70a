// Package release discovers and caches the remote dataset release for one
// run.
//
// Discovery goes through the Handshaker capability: transports that can
// query a version endpoint implement it, transports that cannot use NoHandshake.
// A Tracker owns the cached release and guarantees that a captured value is
// never reverted by a later failed handshake.
package release

import (
	"context"
	"strings"
	"time"

	stringpool "github.com/ajitpratap0/bioetl/pkg/strings"
)

// CandidateKeys are the payload fields searched for a release, most
// specific first.
var CandidateKeys = []string{
	"chembl_release",
	"chembl_db_version",
	"release",
	"version",
	"api_version",
}

// HandshakeResult is the outcome of one handshake. It is not modified after
// construction.
type HandshakeResult struct {
	Endpoint string
	Payload  map[string]interface{}
	// Release is empty when the payload carried no recognised release field
	Release  string
	IssuedAt time.Time
}

// NewHandshakeResult builds a result from a decoded payload, extracting the
// release from it.
func NewHandshakeResult(endpoint string, payload map[string]interface{}, issuedAt time.Time) *HandshakeResult {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &HandshakeResult{
		Endpoint: endpoint,
		Payload:  payload,
		Release:  ExtractRelease(payload),
		IssuedAt: issuedAt.UTC(),
	}
}

// HasRelease reports whether a release was found.
func (r *HandshakeResult) HasRelease() bool {
	return r != nil && r.Release != ""
}

// Handshaker is implemented by transports able to query a version
// endpoint. A nil result with a nil error means the handshake did nothing.
type Handshaker interface {
	Handshake(ctx context.Context, endpoint string, enabled bool) (*HandshakeResult, error)
}

// Reporter is optionally implemented by a handshake that already knows the
// release, e.g. from a previous session. It is consulted when a handshake
// payload carries no release field.
type Reporter interface {
	Release() string
}

// ExtractRelease returns the first non-empty, trimmed candidate field of
// payload, or "" when none is present.
func ExtractRelease(payload map[string]interface{}) string {
	for _, key := range CandidateKeys {
		v, ok := payload[key]
		if !ok || v == nil {
			continue
		}
		s := strings.TrimSpace(stringpool.ValueToString(v))
		if s != "" {
			return s
		}
	}
	return ""
}
