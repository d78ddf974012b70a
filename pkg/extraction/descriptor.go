package extraction

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/bioetl/pkg/config"
	"github.com/ajitpratap0/bioetl/pkg/errors"
	"github.com/ajitpratap0/bioetl/pkg/models"
)

// Descriptor declares how one entity is extracted. The engine holds no
// entity-specific logic; everything that varies lives here.
type Descriptor struct {
	Name   string
	Source string

	// Endpoint is the collection path relative to the base URL, e.g.
	// "document.json".
	Endpoint string
	// FilterParam is the identifier filter, e.g. "document_chembl_id__in".
	FilterParam string
	// ItemKeys are the payload keys holding the item list, tried in order.
	ItemKeys []string
	IDColumn string

	MandatoryFields []string
	DefaultFields   []string
	SortBy          []config.SortKey

	// MaxPageSize caps the effective page size for this entity; zero means
	// only the defaults cap applies.
	MaxPageSize int
	// Schema is the declared column set used for empty frames and output.
	Schema []string

	Defaults       config.EntityDefaults
	PostProcessors []PostProcessor
	Hooks          Hooks
}

// Validate checks the fields the engine relies on.
func (d *Descriptor) Validate() error {
	switch {
	case d.Name == "":
		return errors.New(errors.ErrorTypeConfig, "descriptor name is required")
	case d.Endpoint == "":
		return errors.Newf(errors.ErrorTypeConfig, "descriptor %q: endpoint is required", d.Name)
	case d.IDColumn == "":
		return errors.Newf(errors.ErrorTypeConfig, "descriptor %q: id column is required", d.Name)
	}
	seen := map[string]struct{}{}
	for _, p := range d.PostProcessors {
		if _, dup := seen[p.Name()]; dup {
			return errors.Newf(errors.ErrorTypeConfig, "descriptor %q: duplicate post-processor %q", d.Name, p.Name())
		}
		seen[p.Name()] = struct{}{}
	}
	return nil
}

func (d *Descriptor) hooks() Hooks {
	if d.Hooks == nil {
		return BaseHooks{}
	}
	return d.Hooks
}

func (d *Descriptor) filterParam() string {
	if d.FilterParam != "" {
		return d.FilterParam
	}
	return d.IDColumn + "__in"
}

// Env carries the shared services an extraction runs against.
type Env struct {
	Client  Client
	Tracker ReleaseSource
	Runtime config.RuntimeConfig
	Logger  *zap.Logger
}

func (e Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Hooks are the two required customization points of a descriptor.
type Hooks interface {
	// ResolveConfig turns the raw source section into effective settings.
	ResolveConfig(src config.SourceConfig, d *Descriptor) (*config.Effective, error)
	// BuildContext prepares the per-run context, including the release.
	BuildContext(ctx context.Context, env Env, d *Descriptor, eff *config.Effective) (*Context, error)
}

// RecordTransformer rewrites each record before it enters the table.
// Returning a nil record drops it.
type RecordTransformer interface {
	TransformRecord(r models.Record, c *Context) (models.Record, error)
}

// EmptyFrameFactory builds the table returned when nothing is fetched.
type EmptyFrameFactory interface {
	EmptyFrame(c *Context) *models.Table
}

// DryRunHandler builds the table returned for a dry run.
type DryRunHandler interface {
	DryRun(c *Context) (*models.Table, error)
}

// SummaryExtender adds entity-specific fields to the completion log.
type SummaryExtender interface {
	SummaryFields(t *models.Table, c *Context) []zap.Field
}

// PostProcessor is one named table-level transformation. Processors run in
// declaration order.
type PostProcessor interface {
	Name() string
	Process(t *models.Table, c *Context) (*models.Table, error)
}

type postProcessor struct {
	name string
	fn   func(*models.Table, *Context) (*models.Table, error)
}

func (p postProcessor) Name() string { return p.name }

func (p postProcessor) Process(t *models.Table, c *Context) (*models.Table, error) {
	return p.fn(t, c)
}

// NewPostProcessor names fn as a post-processor.
func NewPostProcessor(name string, fn func(*models.Table, *Context) (*models.Table, error)) PostProcessor {
	return postProcessor{name: name, fn: fn}
}

// BaseHooks resolves settings from the descriptor defaults and discovers the
// release through the environment's tracker. Entities embed it and override
// what they need.
type BaseHooks struct{}

// ResolveConfig applies d.Defaults to src.
func (BaseHooks) ResolveConfig(src config.SourceConfig, d *Descriptor) (*config.Effective, error) {
	eff, err := d.Defaults.Resolve(src, d.MaxPageSize)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to resolve source config").
			WithDetail("entity", d.Name)
	}
	return eff, nil
}

// BuildContext resolves fields and, outside dry runs, runs the handshake.
func (BaseHooks) BuildContext(ctx context.Context, env Env, d *Descriptor, eff *config.Effective) (*Context, error) {
	log := env.logger().With(zap.String("entity", d.Name))
	c := &Context{
		Descriptor: d,
		Source:     eff,
		Client:     env.Client,
		Fields:     ResolveFields(eff.Fields, d.MandatoryFields, d.DefaultFields),
		Runtime:    env.Runtime,
		Logger:     log,
		Metadata:   map[string]interface{}{},
	}
	if env.Tracker != nil {
		c.Release = env.Tracker.Release()
	}
	if env.Runtime.DryRun || eff.Disabled {
		return c, nil
	}
	if env.Client == nil {
		return nil, errors.Newf(errors.ErrorTypeConfig, "entity %q: no client configured", d.Name)
	}
	if env.Tracker != nil {
		rel, outcome := env.Tracker.Discover(ctx, handshakeRequest(eff.Handshake))
		c.Release = rel
		log.Info("handshake complete",
			zap.String("outcome", string(outcome)),
			zap.String("release", rel))
	}
	return c, nil
}

// ResolveFields merges requested with mandatory, keeping first-seen order and
// dropping duplicates. An empty request selects defaults.
func ResolveFields(requested, mandatory, defaults []string) []string {
	if len(requested) == 0 {
		requested = defaults
	}
	if len(requested) == 0 && len(mandatory) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(requested)+len(mandatory))
	out := make([]string, 0, len(requested)+len(mandatory))
	for _, list := range [][]string{requested, mandatory} {
		for _, f := range list {
			if f == "" {
				continue
			}
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}
