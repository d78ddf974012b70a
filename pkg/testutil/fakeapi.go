package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	jsonpool "github.com/ajitpratap0/bioetl/pkg/json"
	stringpool "github.com/ajitpratap0/bioetl/pkg/strings"
)

// DefaultBasePath mirrors the ChEMBL REST prefix.
const DefaultBasePath = "/chembl/api/data"

// Collection is one paginated endpoint of a FakeAPI.
type Collection struct {
	ItemKey string
	IDField string
	Records []map[string]interface{}
}

// FakeAPI is an httptest server speaking the ChEMBL paging contract:
// limit/offset paging, page_meta.next links, "<field>__in" filters and
// "only" field selection.
type FakeAPI struct {
	Server   *httptest.Server
	BasePath string
	// AbsoluteNext makes next links absolute URLs instead of paths
	AbsoluteNext bool

	mu          sync.Mutex
	collections map[string]*Collection
	status      map[string]interface{}
	statusCode  int
	failIDs     map[string]int
	calls       []string
}

// NewFakeAPI starts a fake API that is closed when the test ends.
func NewFakeAPI(t testing.TB) *FakeAPI {
	f := &FakeAPI{
		BasePath:    DefaultBasePath,
		collections: map[string]*Collection{},
		failIDs:     map[string]int{},
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the base URL clients should be configured with.
func (f *FakeAPI) URL() string {
	return f.Server.URL + f.BasePath
}

// AddCollection serves records at endpoint (e.g. "document.json").
func (f *FakeAPI) AddCollection(endpoint, itemKey, idField string, records ...map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections[endpoint] = &Collection{ItemKey: itemKey, IDField: idField, Records: records}
}

// SetStatus serves payload at status.json. A non-200 code makes the
// endpoint fail instead.
func (f *FakeAPI) SetStatus(code int, payload map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCode = code
	f.status = payload
}

// FailIDs answers any filtered request naming one of ids with code.
func (f *FakeAPI) FailIDs(code int, ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.failIDs[id] = code
	}
}

// Calls returns the request URIs served so far.
func (f *FakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount counts requests whose path ends with endpoint.
func (f *FakeAPI) CallCount(endpoint string) int {
	n := 0
	for _, c := range f.Calls() {
		path := c
		if i := strings.IndexByte(c, '?'); i >= 0 {
			path = c[:i]
		}
		if strings.HasSuffix(path, "/"+endpoint) {
			n++
		}
	}
	return n
}

func (f *FakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.URL.RequestURI())

	endpoint := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, f.BasePath), "/")
	if endpoint == "status.json" {
		if f.status == nil {
			http.NotFound(w, r)
			return
		}
		if f.statusCode != 0 && f.statusCode != http.StatusOK {
			w.WriteHeader(f.statusCode)
			return
		}
		writeJSON(w, f.status)
		return
	}

	coll, ok := f.collections[endpoint]
	if !ok {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	filtered := coll.Records
	for key, values := range q {
		if !strings.HasSuffix(key, "__in") || len(values) == 0 {
			continue
		}
		field := strings.TrimSuffix(key, "__in")
		wanted := map[string]struct{}{}
		for _, id := range strings.Split(values[0], ",") {
			if code, fail := f.failIDs[id]; fail {
				w.WriteHeader(code)
				return
			}
			wanted[id] = struct{}{}
		}
		var keep []map[string]interface{}
		for _, rec := range filtered {
			if _, hit := wanted[stringpool.ValueToString(rec[field])]; hit {
				keep = append(keep, rec)
			}
		}
		filtered = keep
	}

	limit := atoiDefault(q.Get("limit"), 20)
	offset := atoiDefault(q.Get("offset"), 0)
	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	var page []map[string]interface{}
	if offset < len(filtered) {
		page = filtered[offset:end]
	}

	items := make([]interface{}, 0, len(page))
	for _, rec := range page {
		items = append(items, project(rec, q.Get("only")))
	}

	var next interface{}
	if end < len(filtered) {
		nq := url.Values{}
		for k, v := range q {
			nq[k] = v
		}
		nq.Set("limit", strconv.Itoa(limit))
		nq.Set("offset", strconv.Itoa(end))
		link := f.BasePath + "/" + endpoint + "?" + nq.Encode()
		if f.AbsoluteNext {
			link = f.Server.URL + link
		}
		next = link
	}

	writeJSON(w, map[string]interface{}{
		"page_meta": map[string]interface{}{
			"limit":       limit,
			"offset":      offset,
			"total_count": len(filtered),
			"next":        next,
		},
		coll.ItemKey: items,
	})
}

func project(rec map[string]interface{}, only string) map[string]interface{} {
	if only == "" {
		return rec
	}
	out := map[string]interface{}{}
	for _, f := range strings.Split(only, ",") {
		if v, ok := rec[f]; ok {
			out[f] = v
		}
	}
	return out
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	body, err := jsonpool.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
