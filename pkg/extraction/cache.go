package extraction

import (
	"context"
	"net/url"

	lru "github.com/hashicorp/golang-lru/v2"

	jsonpool "github.com/ajitpratap0/bioetl/pkg/json"
	"github.com/ajitpratap0/bioetl/pkg/metrics"
)

// ResponseCache memoizes decoded GET responses by request path and query.
type ResponseCache struct {
	entries *lru.Cache[string, map[string]interface{}]
}

// NewResponseCache holds up to size responses. A size below one yields nil,
// which disables caching.
func NewResponseCache(size int) (*ResponseCache, error) {
	if size < 1 {
		return nil, nil
	}
	c, err := lru.New[string, map[string]interface{}](size)
	if err != nil {
		return nil, err
	}
	return &ResponseCache{entries: c}, nil
}

// Len is the number of cached responses.
func (c *ResponseCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// Purge drops every cached response.
func (c *ResponseCache) Purge() {
	if c != nil {
		c.entries.Purge()
	}
}

func cacheKey(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}

// countingClient wraps a client for the duration of one extraction call,
// counting calls into stats and consulting the cache. The wrapped client is
// never modified.
type countingClient struct {
	next  Client
	cache *ResponseCache
	stats *BatchExtractionStats
}

func (c *countingClient) Get(ctx context.Context, path string, params url.Values) (map[string]interface{}, error) {
	key := cacheKey(path, params)
	if c.cache != nil {
		if payload, ok := c.cache.entries.Get(key); ok {
			c.stats.CacheHits++
			metrics.ObserveCache(true)
			return cloneObject(payload), nil
		}
		metrics.ObserveCache(false)
	}

	c.stats.APICalls++
	payload, err := c.next.Get(ctx, path, params)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.entries.Add(key, cloneObject(payload))
	}
	return payload, nil
}

// cloneObject deep-copies a decoded JSON object so cached payloads are not
// shared with records that later stages mutate.
func cloneObject(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneObject(t)
	case *jsonpool.Object:
		pairs := make([]interface{}, 0, 2*len(t.Keys()))
		for _, k := range t.Keys() {
			pairs = append(pairs, k, cloneValue(t.Map()[k]))
		}
		return jsonpool.NewObject(pairs...)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
