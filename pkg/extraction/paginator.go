package extraction

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/bioetl/pkg/errors"
	jsonpool "github.com/ajitpratap0/bioetl/pkg/json"
	"github.com/ajitpratap0/bioetl/pkg/models"
)

// Client issues a GET for path relative to the source base URL and decodes
// the JSON object body.
type Client interface {
	Get(ctx context.Context, path string, params url.Values) (map[string]interface{}, error)
}

// DefaultItemKeys are the list keys tried when a descriptor names none.
var DefaultItemKeys = []string{"data", "items", "results"}

const pageMetaKey = "page_meta"

// Paginator walks a cursor-paginated collection by following the
// page_meta.next pointer until it is absent or the limit is met.
type Paginator struct {
	Client   Client
	BaseURL  string
	ItemKeys []string
	Limit    int
	Logger   *zap.Logger

	// OnPage, when set, is called after every fetched page.
	OnPage func(page int, items int)
}

// Fetch returns the items of every page starting at endpoint with params.
// Later pages are requested from the normalized next pointer with no extra
// params. On error the records gathered so far are returned with it.
func (p *Paginator) Fetch(ctx context.Context, endpoint string, params url.Values) ([]models.Record, error) {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var records []models.Record
	visited := map[string]struct{}{}
	path, query := endpoint, params
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return records, errors.Wrap(err, errors.ErrorTypeTimeout, "pagination cancelled")
		}

		payload, err := p.Client.Get(ctx, path, query)
		if err != nil {
			return records, err
		}

		items := ExtractItems(payload, p.ItemKeys)
		if p.OnPage != nil {
			p.OnPage(page, len(items))
		}
		records = append(records, items...)
		if p.Limit > 0 && len(records) >= p.Limit {
			return records[:p.Limit], nil
		}

		next := NextPointer(payload)
		if next == "" {
			return records, nil
		}
		next = NormalizeNext(next, p.BaseURL)
		if _, seen := visited[next]; seen {
			log.Warn("pagination cursor repeated, stopping",
				zap.String("endpoint", endpoint),
				zap.String("next", next),
				zap.Int("page", page))
			return records, nil
		}
		visited[next] = struct{}{}
		path, query = next, nil
	}
}

// NextPointer returns page_meta.next, or "" when the payload has none.
func NextPointer(payload map[string]interface{}) string {
	meta, ok := payload[pageMetaKey].(map[string]interface{})
	if !ok {
		return ""
	}
	next, _ := meta["next"].(string)
	return strings.TrimSpace(next)
}

// NormalizeNext turns a next pointer into a request path for the client.
// Pointers under the base URL's path are made relative to it. Other links
// stay resolvable on their own: absolute URLs are returned unchanged and
// host-rooted paths are anchored to the base URL's origin. Relative pointers
// and query strings are kept as they are.
func NormalizeNext(next, baseURL string) string {
	u, err := url.Parse(next)
	if err != nil {
		return next
	}
	if !u.IsAbs() && !strings.HasPrefix(u.Path, "/") {
		return next
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		base = &url.URL{}
	}
	if u.IsAbs() && base.Host != "" && !strings.EqualFold(u.Host, base.Host) {
		return next
	}

	prefix := strings.TrimRight(base.Path, "/")
	if prefix != "" && u.Path != prefix && !strings.HasPrefix(u.Path, prefix+"/") {
		if u.IsAbs() || base.Host == "" {
			return next
		}
		origin := url.URL{Scheme: base.Scheme, Host: base.Host, Path: u.Path, RawQuery: u.RawQuery}
		return origin.String()
	}

	path := strings.TrimPrefix(strings.TrimPrefix(u.Path, prefix), "/")
	if u.RawQuery != "" {
		return path + "?" + u.RawQuery
	}
	return path
}

// ExtractItems pulls the item list from a page. keys are tried in order;
// if none holds a list, every non-metadata key is scanned in sorted order for
// the first list of objects. Non-object list entries are skipped.
func ExtractItems(payload map[string]interface{}, keys []string) []models.Record {
	if len(keys) == 0 {
		keys = DefaultItemKeys
	}
	for _, k := range keys {
		if list, ok := payload[k].([]interface{}); ok {
			return objects(list)
		}
	}

	names := make([]string, 0, len(payload))
	for k := range payload {
		if k != pageMetaKey {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	for _, k := range names {
		list, ok := payload[k].([]interface{})
		if !ok || len(list) == 0 {
			continue
		}
		if _, isObject := jsonpool.AsMap(list[0]); isObject {
			return objects(list)
		}
	}
	return nil
}

func objects(list []interface{}) []models.Record {
	out := make([]models.Record, 0, len(list))
	for _, item := range list {
		if m, ok := jsonpool.AsMap(item); ok {
			out = append(out, m)
		}
	}
	return out
}
