// Package entitytest runs entity descriptors against a fake ChEMBL API.
package entitytest

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/bioetl/pkg/clients"
	"github.com/ajitpratap0/bioetl/pkg/config"
	"github.com/ajitpratap0/bioetl/pkg/extraction"
	"github.com/ajitpratap0/bioetl/pkg/release"
	"github.com/ajitpratap0/bioetl/pkg/testutil"
)

// Release is the version the fake status endpoint reports.
const Release = "CHEMBL_34"

// Harness wires a descriptor to a fake API through the real client.
type Harness struct {
	API *testutil.FakeAPI
	Env extraction.Env
}

// New starts a fake API that serves records for d.
func New(t *testing.T, d *extraction.Descriptor, runtime config.RuntimeConfig, records ...map[string]interface{}) *Harness {
	t.Helper()
	api := testutil.NewFakeAPI(t)
	api.AddCollection(d.Endpoint, d.ItemKeys[0], d.IDColumn, records...)
	api.SetStatus(http.StatusOK, map[string]interface{}{"chembl_db_version": Release})

	cfg := config.DefaultHTTPConfig()
	cfg.RetryAttempts = 0
	cfg.RateLimitPerSec = 0
	cfg.CircuitBreaker = false
	cfg.EnableHTTP2 = false
	log := zaptest.NewLogger(t)
	client, err := clients.NewAPIClient(api.URL(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return &Harness{
		API: api,
		Env: extraction.Env{
			Client:  client,
			Tracker: release.NewTracker(client, log),
			Runtime: runtime,
			Logger:  log,
		},
	}
}

// Source is a source section pointing at the fake API.
func (h *Harness) Source() config.SourceConfig {
	return config.SourceConfig{BaseURL: h.API.URL()}
}

// ByIDs runs a batch extraction of ids.
func (h *Harness) ByIDs(t *testing.T, d *extraction.Descriptor, ids ...string) *extraction.Result {
	t.Helper()
	engine, err := extraction.NewEngine(d, h.Env)
	require.NoError(t, err)
	res, err := engine.ExtractByIDs(context.Background(), h.Source(), ids)
	require.NoError(t, err)
	return res
}

// All runs a full paginated extraction.
func (h *Harness) All(t *testing.T, d *extraction.Descriptor) *extraction.Result {
	t.Helper()
	engine, err := extraction.NewEngine(d, h.Env)
	require.NoError(t, err)
	res, err := engine.ExtractAll(context.Background(), h.Source())
	require.NoError(t, err)
	return res
}
