package extraction

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/bioetl/pkg/clients"
	"github.com/ajitpratap0/bioetl/pkg/config"
	"github.com/ajitpratap0/bioetl/pkg/errors"
	"github.com/ajitpratap0/bioetl/pkg/models"
	"github.com/ajitpratap0/bioetl/pkg/release"
	"github.com/ajitpratap0/bioetl/pkg/testutil"
)

func documents(n int) []map[string]interface{} {
	out := make([]map[string]interface{}, n)
	for i := range out {
		out[i] = map[string]interface{}{
			"document_chembl_id": fmt.Sprintf("CHEMBL%d", i+1),
			"title":              fmt.Sprintf("title %d", i+1),
			"year":               2000 + i,
		}
	}
	return out
}

func testDescriptor() *Descriptor {
	return &Descriptor{
		Name:            "document",
		Source:          "chembl",
		Endpoint:        "document.json",
		FilterParam:     "document_chembl_id__in",
		ItemKeys:        []string{"documents"},
		IDColumn:        "document_chembl_id",
		MandatoryFields: []string{"document_chembl_id"},
		DefaultFields:   []string{"document_chembl_id", "title", "year"},
		SortBy:          []config.SortKey{{Column: "document_chembl_id"}},
		Defaults:        config.DefaultEntityDefaults(),
	}
}

type harness struct {
	api     *testutil.FakeAPI
	env     Env
	tracker *release.Tracker
}

func newHarness(t *testing.T, runtime config.RuntimeConfig) *harness {
	api := testutil.NewFakeAPI(t)
	api.AddCollection("document.json", "documents", "document_chembl_id", documents(6)...)
	api.SetStatus(http.StatusOK, map[string]interface{}{"chembl_db_version": "CHEMBL_34"})

	cfg := config.DefaultHTTPConfig()
	cfg.RetryAttempts = 0
	cfg.RateLimitPerSec = 0
	cfg.CircuitBreaker = false
	cfg.EnableHTTP2 = false
	log := zaptest.NewLogger(t)
	client, err := clients.NewAPIClient(api.URL(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	tracker := release.NewTracker(client, log)
	return &harness{
		api:     api,
		tracker: tracker,
		env:     Env{Client: client, Tracker: tracker, Runtime: runtime, Logger: log},
	}
}

func (h *harness) source() config.SourceConfig {
	return config.SourceConfig{BaseURL: h.api.URL(), BatchSize: 2, PageSize: 2}
}

func TestExtractByIDs(t *testing.T) {
	h := newHarness(t, config.RuntimeConfig{})
	engine, err := NewEngine(testDescriptor(), h.env)
	require.NoError(t, err)

	res, err := engine.ExtractByIDs(context.Background(), h.source(), []string{"CHEMBL5", "CHEMBL1", "CHEMBL3", "CHEMBL1"})
	require.NoError(t, err)

	assert.Equal(t, []interface{}{"CHEMBL1", "CHEMBL3", "CHEMBL5"}, res.Table.Column("document_chembl_id"))
	assert.Equal(t, "CHEMBL_34", res.Release)
	assert.Equal(t, 2, res.Stats.Batches)
	assert.Equal(t, 2, res.Stats.APICalls)
	assert.Equal(t, 3, res.Stats.Rows)
	assert.Equal(t, ModeBatch, res.Stats.Mode)
	assert.Equal(t, 2, h.api.CallCount("document.json"))
	assert.Equal(t, 1, h.api.CallCount("status.json"))

	calls := h.api.Calls()
	assert.Contains(t, calls[1], "document_chembl_id__in=CHEMBL1%2CCHEMBL3")
	assert.Contains(t, calls[2], "document_chembl_id__in=CHEMBL5")
}

func TestExtractByIDsUsesConfiguredIDs(t *testing.T) {
	h := newHarness(t, config.RuntimeConfig{})
	engine, err := NewEngine(testDescriptor(), h.env)
	require.NoError(t, err)

	src := h.source()
	src.IDs = []string{"CHEMBL2"}
	res, err := engine.ExtractByIDs(context.Background(), src, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Table.Len())
}

func TestExtractByIDsAbsorbsBatchFailure(t *testing.T) {
	h := newHarness(t, config.RuntimeConfig{})
	h.api.FailIDs(http.StatusBadRequest, "CHEMBL3")
	engine, err := NewEngine(testDescriptor(), h.env)
	require.NoError(t, err)

	res, err := engine.ExtractByIDs(context.Background(), h.source(), []string{"CHEMBL1", "CHEMBL3", "CHEMBL5"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"CHEMBL5"}, res.Table.Column("document_chembl_id"))
	assert.Equal(t, 1, res.Stats.Failures)
	assert.Equal(t, 2, res.Stats.Batches)
}

func TestExtractByIDsFailFast(t *testing.T) {
	h := newHarness(t, config.RuntimeConfig{FailFast: true})
	h.api.FailIDs(http.StatusBadRequest, "CHEMBL3")
	engine, err := NewEngine(testDescriptor(), h.env)
	require.NoError(t, err)

	_, err = engine.ExtractByIDs(context.Background(), h.source(), []string{"CHEMBL1", "CHEMBL3", "CHEMBL5"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeTransport))
	assert.Equal(t, 1, h.api.CallCount("document.json"))
}

func TestExtractAll(t *testing.T) {
	for _, absolute := range []bool{false, true} {
		t.Run(fmt.Sprintf("absolute=%v", absolute), func(t *testing.T) {
			h := newHarness(t, config.RuntimeConfig{})
			h.api.AbsoluteNext = absolute
			engine, err := NewEngine(testDescriptor(), h.env)
			require.NoError(t, err)

			res, err := engine.ExtractAll(context.Background(), h.source())
			require.NoError(t, err)
			assert.Equal(t, 6, res.Table.Len())
			assert.Equal(t, 3, h.api.CallCount("document.json"))
			assert.Equal(t, 3, res.Stats.Pages)
			assert.Equal(t, ModePagination, res.Stats.Mode)
		})
	}
}

func TestExtractAllLimit(t *testing.T) {
	h := newHarness(t, config.RuntimeConfig{Limit: 3})
	engine, err := NewEngine(testDescriptor(), h.env)
	require.NoError(t, err)

	res, err := engine.ExtractAll(context.Background(), h.source())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Table.Len())
	assert.Equal(t, 2, h.api.CallCount("document.json"))
}

func TestExtractByIDsLimit(t *testing.T) {
	h := newHarness(t, config.RuntimeConfig{Limit: 2})
	engine, err := NewEngine(testDescriptor(), h.env)
	require.NoError(t, err)

	res, err := engine.ExtractByIDs(context.Background(), h.source(), []string{"CHEMBL1", "CHEMBL2", "CHEMBL3", "CHEMBL4"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Table.Len())
	assert.Equal(t, 1, res.Stats.Batches)
}

func TestResponseCache(t *testing.T) {
	h := newHarness(t, config.RuntimeConfig{CacheSize: 16})
	engine, err := NewEngine(testDescriptor(), h.env)
	require.NoError(t, err)
	ids := []string{"CHEMBL1", "CHEMBL2", "CHEMBL4"}

	first, err := engine.ExtractByIDs(context.Background(), h.source(), ids)
	require.NoError(t, err)
	// mutating a returned row must not leak into the cache
	first.Table.Row(0)["title"] = "changed"

	second, err := engine.ExtractByIDs(context.Background(), h.source(), ids)
	require.NoError(t, err)

	assert.Equal(t, 0, second.Stats.APICalls)
	assert.Equal(t, 2, second.Stats.CacheHits)
	assert.Equal(t, 2, h.api.CallCount("document.json"))
	assert.Equal(t, "title 1", second.Table.Row(0)["title"])
}

func TestDisabledSourceReturnsEmptyFrame(t *testing.T) {
	h := newHarness(t, config.RuntimeConfig{})
	engine, err := NewEngine(testDescriptor(), h.env)
	require.NoError(t, err)

	src := h.source()
	src.Disabled = true
	res, err := engine.ExtractAll(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Table.Len())
	assert.Equal(t, []string{"document_chembl_id"}, res.Table.Columns())
	assert.Empty(t, h.api.Calls())
}

func stampingDescriptor() *Descriptor {
	d := testDescriptor()
	d.PostProcessors = []PostProcessor{
		NewPostProcessor("stamp", func(t *models.Table, c *Context) (*models.Table, error) {
			t.SetColumn("chembl_release", func(models.Record) interface{} { return c.Release })
			return t, nil
		}),
	}
	return d
}

func TestShortCircuitSkipsPostProcessors(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		h := newHarness(t, config.RuntimeConfig{})
		engine, err := NewEngine(stampingDescriptor(), h.env)
		require.NoError(t, err)

		src := h.source()
		src.Disabled = true
		res, err := engine.ExtractAll(context.Background(), src)
		require.NoError(t, err)
		assert.Equal(t, []string{"document_chembl_id"}, res.Table.Columns())
		assert.Empty(t, h.api.Calls())
	})

	t.Run("dry run", func(t *testing.T) {
		h := newHarness(t, config.RuntimeConfig{DryRun: true})
		engine, err := NewEngine(stampingDescriptor(), h.env)
		require.NoError(t, err)

		res, err := engine.ExtractByIDs(context.Background(), h.source(), []string{"CHEMBL1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"document_chembl_id"}, res.Table.Columns())
		assert.Equal(t, 0, res.Table.Len())
	})

	t.Run("fetch still post-processes", func(t *testing.T) {
		h := newHarness(t, config.RuntimeConfig{})
		engine, err := NewEngine(stampingDescriptor(), h.env)
		require.NoError(t, err)

		res, err := engine.ExtractByIDs(context.Background(), h.source(), []string{"CHEMBL1"})
		require.NoError(t, err)
		assert.True(t, res.Table.HasColumn("chembl_release"))
	})
}

type dryRunHooks struct {
	BaseHooks
}

func (dryRunHooks) DryRun(*Context) (*models.Table, error) {
	return models.NewTable("document_chembl_id", "title"), nil
}

func TestDryRunSkipsNetwork(t *testing.T) {
	h := newHarness(t, config.RuntimeConfig{DryRun: true})
	d := testDescriptor()
	d.Hooks = dryRunHooks{}
	engine, err := NewEngine(d, h.env)
	require.NoError(t, err)

	res, err := engine.ExtractByIDs(context.Background(), h.source(), []string{"CHEMBL1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"document_chembl_id", "title"}, res.Table.Columns())
	assert.Empty(t, h.api.Calls())
}

func TestConfigErrorBeforeNetwork(t *testing.T) {
	h := newHarness(t, config.RuntimeConfig{})
	engine, err := NewEngine(testDescriptor(), h.env)
	require.NoError(t, err)

	_, err = engine.ExtractAll(context.Background(), config.SourceConfig{BaseURL: "not a url"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Empty(t, h.api.Calls())
}

func TestHandshakeFailureKeepsRelease(t *testing.T) {
	h := newHarness(t, config.RuntimeConfig{})
	h.tracker.Seed("CHEMBL_33")
	h.api.SetStatus(http.StatusServiceUnavailable, map[string]interface{}{})
	engine, err := NewEngine(testDescriptor(), h.env)
	require.NoError(t, err)

	res, err := engine.ExtractByIDs(context.Background(), h.source(), []string{"CHEMBL1"})
	require.NoError(t, err)
	assert.Equal(t, "CHEMBL_33", res.Release)
	assert.Equal(t, 1, res.Table.Len())
}

type shoutingHooks struct {
	BaseHooks
}

func (shoutingHooks) TransformRecord(r models.Record, _ *Context) (models.Record, error) {
	if r["document_chembl_id"] == "CHEMBL2" {
		return nil, nil
	}
	if r["document_chembl_id"] == "CHEMBL4" {
		return nil, errors.New(errors.ErrorTypeData, "bad record")
	}
	r["title"] = strings.ToUpper(r["title"].(string))
	return r, nil
}

func (shoutingHooks) SummaryFields(*models.Table, *Context) []zap.Field {
	return []zap.Field{zap.String("shout", "yes")}
}

func TestHooksAndPostProcessors(t *testing.T) {
	h := newHarness(t, config.RuntimeConfig{})
	log, logs := testutil.ObservedLogger(zapcore.InfoLevel)
	h.env.Logger = log

	var order []string
	d := testDescriptor()
	d.Hooks = shoutingHooks{}
	d.PostProcessors = []PostProcessor{
		NewPostProcessor("first", func(tbl *models.Table, c *Context) (*models.Table, error) {
			order = append(order, "first")
			tbl.SetColumn("source", func(models.Record) interface{} { return "chembl" })
			return tbl, nil
		}),
		NewPostProcessor("second", func(tbl *models.Table, c *Context) (*models.Table, error) {
			order = append(order, "second")
			assert.True(t, tbl.HasColumn("source"))
			return tbl, nil
		}),
	}
	engine, err := NewEngine(d, h.env)
	require.NoError(t, err)

	res, err := engine.ExtractByIDs(context.Background(), h.source(), []string{"CHEMBL1", "CHEMBL2", "CHEMBL3", "CHEMBL4"})
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, []interface{}{"CHEMBL1", "CHEMBL3"}, res.Table.Column("document_chembl_id"))
	assert.Equal(t, "TITLE 1", res.Table.Row(0)["title"])

	summary := logs.FilterMessage("extraction complete").All()
	require.Len(t, summary, 1)
	assert.Equal(t, "yes", summary[0].ContextMap()["shout"])
	assert.Equal(t, "CHEMBL_34", summary[0].ContextMap()["release"])
}

func TestTransformFailureFailFastPolicy(t *testing.T) {
	h := newHarness(t, config.RuntimeConfig{InvariantPolicy: config.InvariantFailFast})
	d := testDescriptor()
	d.Hooks = shoutingHooks{}
	engine, err := NewEngine(d, h.env)
	require.NoError(t, err)

	_, err = engine.ExtractByIDs(context.Background(), h.source(), []string{"CHEMBL4"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestPostProcessorError(t *testing.T) {
	h := newHarness(t, config.RuntimeConfig{})
	d := testDescriptor()
	d.PostProcessors = []PostProcessor{
		NewPostProcessor("broken", func(*models.Table, *Context) (*models.Table, error) {
			return nil, errors.New(errors.ErrorTypeData, "invariant violated")
		}),
	}
	engine, err := NewEngine(d, h.env)
	require.NoError(t, err)

	_, err = engine.ExtractByIDs(context.Background(), h.source(), []string{"CHEMBL1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invariant violated")
}

func TestCancelledContext(t *testing.T) {
	h := newHarness(t, config.RuntimeConfig{})
	engine, err := NewEngine(testDescriptor(), h.env)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err = engine.ExtractByIDs(ctx, h.source(), []string{"CHEMBL1", "CHEMBL3", "CHEMBL5"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
}

func TestResolveFields(t *testing.T) {
	assert.Equal(t, []string{"title", "id", "year"}, ResolveFields([]string{"title", "id", "title"}, []string{"id", "year"}, nil))
	assert.Equal(t, []string{"a", "b", "id"}, ResolveFields(nil, []string{"id"}, []string{"a", "b"}))
	assert.Nil(t, ResolveFields(nil, nil, nil))
}

func TestDescriptorValidate(t *testing.T) {
	d := testDescriptor()
	d.Endpoint = ""
	assert.True(t, errors.IsType(d.Validate(), errors.ErrorTypeConfig))

	d = testDescriptor()
	noop := func(tbl *models.Table, c *Context) (*models.Table, error) { return tbl, nil }
	d.PostProcessors = []PostProcessor{NewPostProcessor("x", noop), NewPostProcessor("x", noop)}
	assert.Error(t, d.Validate())

	_, err := NewEngine(nil, Env{})
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testDescriptor()))

	err := r.Register(testDescriptor())
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	other := testDescriptor()
	other.Name = "assay"
	require.NoError(t, r.Register(other))
	assert.Equal(t, []string{"assay", "document"}, r.Names())

	d, err := r.Get("document")
	require.NoError(t, err)
	assert.Equal(t, "document.json", d.Endpoint)

	_, err = r.Get("molecule")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
