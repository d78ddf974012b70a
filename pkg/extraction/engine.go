package extraction

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/bioetl/pkg/config"
	"github.com/ajitpratap0/bioetl/pkg/determinism"
	"github.com/ajitpratap0/bioetl/pkg/errors"
	"github.com/ajitpratap0/bioetl/pkg/metrics"
	"github.com/ajitpratap0/bioetl/pkg/models"
	"github.com/ajitpratap0/bioetl/pkg/observability"
)

// Extraction modes, used as the stats mode and metric label.
const (
	ModePagination = "pagination"
	ModeBatch      = "batch"
)

// Result is the output of one extraction call.
type Result struct {
	Table   *models.Table
	Release string
	Stats   BatchExtractionStats
	Context *Context
}

// Engine runs the generic extraction algorithm for one descriptor. Failures
// of a single batch or page chain are logged and absorbed unless the runtime
// asks to fail fast; configuration errors always abort before any request.
type Engine struct {
	desc   *Descriptor
	env    Env
	cache  *ResponseCache
	tracer *observability.EntityTracer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithResponseCache shares cache between engines. A nil cache disables
// caching.
func WithResponseCache(cache *ResponseCache) EngineOption {
	return func(e *Engine) {
		e.cache = cache
	}
}

// NewEngine creates an engine for d. Unless overridden with
// WithResponseCache, responses are cached per engine when
// env.Runtime.CacheSize is positive.
func NewEngine(d *Descriptor, env Env, opts ...EngineOption) (*Engine, error) {
	if d == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "descriptor is required")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	cache, err := NewResponseCache(env.Runtime.CacheSize)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create response cache")
	}
	e := &Engine{
		desc:   d,
		env:    env,
		cache:  cache,
		tracer: observability.NewEntityTracer(d.Name),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Descriptor returns the engine's descriptor.
func (e *Engine) Descriptor() *Descriptor {
	return e.desc
}

// ExtractAll walks the whole collection by cursor pagination.
func (e *Engine) ExtractAll(ctx context.Context, src config.SourceConfig) (*Result, error) {
	return e.run(ctx, ModePagination, src, func(ctx context.Context, c *Context, client Client) ([]models.Record, error) {
		p := e.paginator(c, client)
		p.Limit = c.Runtime.Limit
		records, err := p.Fetch(ctx, e.desc.Endpoint, e.baseParams(c))
		if err != nil {
			if ferr := e.unitFailed(c, err, zap.String("endpoint", e.desc.Endpoint), zap.Int("partial_records", len(records))); ferr != nil {
				return nil, ferr
			}
		}
		return records, nil
	})
}

// ExtractByIDs fetches the records for ids in URL-bounded batches. Ids are
// trimmed, de-duplicated and sorted first. When ids is empty the configured
// source ids are used.
func (e *Engine) ExtractByIDs(ctx context.Context, src config.SourceConfig, ids []string) (*Result, error) {
	return e.run(ctx, ModeBatch, src, func(ctx context.Context, c *Context, client Client) ([]models.Record, error) {
		if len(ids) == 0 {
			ids = c.Source.IDs
		}
		ids = NormalizeIDs(ids)
		if len(ids) == 0 {
			c.Logger.Info("no identifiers to extract")
			return nil, nil
		}

		filter := e.desc.filterParam()
		batcher := Batcher{
			BatchSize:    c.Source.BatchSize,
			MaxURLLength: c.Source.MaxURLLength,
			Length:       FilterQueryLength(filter, c.Fields),
			Logger:       c.Logger,
		}
		batches := batcher.Chunk(ids)
		limit := c.Runtime.Limit

		var records []models.Record
		for i, batch := range batches {
			if limit > 0 && len(records) >= limit {
				break
			}
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "extraction cancelled")
			}

			params := e.baseParams(c)
			params.Set(filter, strings.Join(batch, ","))
			p := e.paginator(c, client)
			if limit > 0 {
				p.Limit = limit - len(records)
			}

			err := e.tracer.TraceBatch(ctx, len(batch), "batch", func(ctx context.Context) error {
				got, err := p.Fetch(ctx, e.desc.Endpoint, params)
				records = append(records, got...)
				return err
			})
			c.Stats.Batches++
			metrics.ObserveBatch(e.desc.Name, len(batch))
			if err != nil {
				if ferr := e.unitFailed(c, err, zap.Int("batch", i), zap.Strings("ids", batch)); ferr != nil {
					return nil, ferr
				}
			}
		}
		if limit > 0 && len(records) > limit {
			records = records[:limit]
		}
		return records, nil
	})
}

type fetchFunc func(ctx context.Context, c *Context, client Client) ([]models.Record, error)

func (e *Engine) run(ctx context.Context, mode string, src config.SourceConfig, fetch fetchFunc) (*Result, error) {
	timer := metrics.NewTimer()
	ctx, span := e.tracer.StartSpan(ctx, mode)
	stats := &BatchExtractionStats{Mode: mode}

	res, err := e.execute(ctx, src, stats, fetch)
	stats.Elapsed = timer.Stop()

	rows := 0
	if res != nil {
		rows = res.Table.Len()
		stats.Rows = rows
		res.Stats = *stats
		span.SetAttribute("bioetl.release", res.Release)
	}
	span.SetAttribute("bioetl.rows", rows)
	span.SetAttribute("bioetl.api_calls", stats.APICalls)
	span.Finish(err)
	metrics.ObserveExtraction(e.desc.Name, mode, stats.Elapsed, rows, err)
	if err != nil {
		return nil, err
	}

	e.summarize(res)
	return res, nil
}

func (e *Engine) execute(ctx context.Context, src config.SourceConfig, stats *BatchExtractionStats, fetch fetchFunc) (*Result, error) {
	hooks := e.desc.hooks()
	eff, err := hooks.ResolveConfig(src, e.desc)
	if err != nil {
		return nil, err
	}
	c, err := hooks.BuildContext(ctx, e.env, e.desc, eff)
	if err != nil {
		return nil, err
	}
	c.Stats = stats

	// Disabled and dry-run frames are returned as built: no post-processing
	// and no sort.
	switch {
	case eff.Disabled:
		c.Logger.Info("source disabled, returning empty table")
		return &Result{Table: e.emptyFrame(c), Release: c.Release, Context: c}, nil
	case c.Runtime.DryRun:
		c.Logger.Info("dry run, skipping fetch")
		if h, ok := hooks.(DryRunHandler); ok {
			table, err := h.DryRun(c)
			if err != nil {
				return nil, err
			}
			return &Result{Table: table, Release: c.Release, Context: c}, nil
		}
		return &Result{Table: e.emptyFrame(c), Release: c.Release, Context: c}, nil
	}

	client := &countingClient{next: c.Client, cache: e.cache, stats: stats}
	records, err := fetch(ctx, c, client)
	if err != nil {
		return nil, err
	}
	table, err := e.build(records, c)
	if err != nil {
		return nil, err
	}
	if table, err = e.postProcess(table, c); err != nil {
		return nil, err
	}
	e.sort(table, c)
	return &Result{Table: table, Release: c.Release, Context: c}, nil
}

func (e *Engine) build(records []models.Record, c *Context) (*models.Table, error) {
	if len(records) == 0 {
		return e.emptyFrame(c), nil
	}

	transformer, _ := e.desc.hooks().(RecordTransformer)
	table := models.NewTable(c.Fields...)
	seen := map[string]struct{}{}
	for _, r := range records {
		for k := range r {
			seen[k] = struct{}{}
		}
		if transformer != nil {
			out, err := transformer.TransformRecord(r, c)
			if err != nil {
				if c.Policy() == config.InvariantFailFast {
					return nil, errors.Wrap(err, errors.ErrorTypeData, "record transform failed").
						WithDetail("entity", e.desc.Name)
				}
				c.Logger.Warn("record transform failed, dropping record",
					zap.Any(e.desc.IDColumn, r[e.desc.IDColumn]),
					zap.Error(err))
				continue
			}
			if out == nil {
				continue
			}
			r = out
		}
		table.Append(r)
	}

	var missing []string
	for _, f := range c.Fields {
		if _, ok := seen[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		c.Logger.Warn("requested fields missing from response", zap.Strings("fields", missing))
	}

	if limit := c.Runtime.Limit; limit > 0 {
		table.Truncate(limit)
	}
	return table, nil
}

func (e *Engine) postProcess(table *models.Table, c *Context) (*models.Table, error) {
	for _, p := range e.desc.PostProcessors {
		out, err := p.Process(table, c)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "post-processor failed").
				WithDetail("processor", p.Name()).
				WithDetail("entity", e.desc.Name)
		}
		if out == nil {
			return nil, errors.Newf(errors.ErrorTypeInternal, "post-processor %q returned no table", p.Name())
		}
		table = out
	}
	return table, nil
}

func (e *Engine) sort(table *models.Table, c *Context) {
	if len(e.desc.SortBy) == 0 || table.Len() < 2 {
		return
	}
	for _, k := range e.desc.SortBy {
		if !table.HasColumn(k.Column) {
			c.Logger.Warn("sort column not in table, leaving fetch order", zap.String("column", k.Column))
			return
		}
	}
	determinism.SortRows(table.Rows(), e.desc.SortBy)
}

func (e *Engine) emptyFrame(c *Context) *models.Table {
	if f, ok := e.desc.hooks().(EmptyFrameFactory); ok {
		return f.EmptyFrame(c)
	}
	return models.NewTable(e.desc.IDColumn)
}

// unitFailed absorbs the failure of one batch or page chain, or returns it
// when the run is fail-fast.
func (e *Engine) unitFailed(c *Context, err error, fields ...zap.Field) error {
	c.Stats.Failures++
	metrics.UnitFailures.WithLabelValues(e.desc.Name, c.Stats.Mode).Inc()
	fields = append(fields, zap.Error(err), zap.Bool("retryable", errors.IsRetryable(err)))
	if c.Runtime.FailFast {
		c.Logger.Error("extraction unit failed", fields...)
		return err
	}
	c.Logger.Warn("extraction unit failed, continuing", fields...)
	return nil
}

func (e *Engine) paginator(c *Context, client Client) *Paginator {
	return &Paginator{
		Client:   client,
		BaseURL:  c.Source.BaseURL,
		ItemKeys: e.desc.ItemKeys,
		Logger:   c.Logger,
		OnPage: func(page, items int) {
			c.Stats.Pages++
			metrics.PagesFetched.WithLabelValues(e.desc.Name).Inc()
		},
	}
}

// baseParams are the query parameters shared by every first-page request:
// configured extras, the page size and the field selection.
func (e *Engine) baseParams(c *Context) url.Values {
	params := url.Values{}
	for k, v := range c.Source.Parameters {
		params.Set(k, v)
	}
	if c.Source.PageSize > 0 {
		params.Set("limit", strconv.Itoa(c.Source.PageSize))
	}
	if len(c.Fields) > 0 {
		params.Set("only", strings.Join(c.Fields, ","))
	}
	return params
}

func (e *Engine) summarize(res *Result) {
	c := res.Context
	fields := append([]zap.Field{
		zap.String("release", res.Release),
		zap.Strings("columns", res.Table.Columns()),
	}, res.Stats.Fields()...)
	if ext, ok := e.desc.hooks().(SummaryExtender); ok {
		fields = append(fields, ext.SummaryFields(res.Table, c)...)
	}
	c.Logger.Info("extraction complete", fields...)
}
