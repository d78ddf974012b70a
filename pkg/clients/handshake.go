package clients

import (
	"context"
	"time"

	"github.com/ajitpratap0/bioetl/pkg/release"
)

// Handshake implements release.Handshaker by fetching the handshake endpoint
// once, without retries: a slow or failing status endpoint must not eat the
// run's handshake budget.
func (c *APIClient) Handshake(ctx context.Context, endpoint string, enabled bool) (*release.HandshakeResult, error) {
	if !enabled {
		return nil, nil
	}
	target, err := c.ResolveURL(endpoint, nil)
	if err != nil {
		return nil, err
	}
	issued := time.Now()
	payload, err := c.do(ctx, target)
	if err != nil {
		return nil, err
	}
	return release.NewHandshakeResult(endpoint, payload, issued), nil
}

var _ release.Handshaker = (*APIClient)(nil)
