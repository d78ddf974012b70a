package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/bioetl/pkg/config"
	"github.com/ajitpratap0/bioetl/pkg/errors"
	jsonpool "github.com/ajitpratap0/bioetl/pkg/json"
	"github.com/ajitpratap0/bioetl/pkg/release"
)

func testHTTPConfig() config.HTTPConfig {
	cfg := config.DefaultHTTPConfig()
	cfg.RetryAttempts = 2
	cfg.RetryDelay = time.Millisecond
	cfg.MaxRetryDelay = 5 * time.Millisecond
	cfg.RateLimitPerSec = 0
	cfg.EnableHTTP2 = false
	cfg.CircuitBreaker = false
	return cfg
}

func TestResolveURL(t *testing.T) {
	c, err := NewAPIClient("https://api.example.org/chembl/api/data/", testHTTPConfig(), nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		params url.Values
		want   string
	}{
		{"relative", "/document.json", nil, "https://api.example.org/chembl/api/data/document.json"},
		{"no slash", "document.json", url.Values{"limit": {"10"}}, "https://api.example.org/chembl/api/data/document.json?limit=10"},
		{"embedded query", "/document.json?offset=20&limit=20", nil, "https://api.example.org/chembl/api/data/document.json?offset=20&limit=20"},
		{"params replace query", "/document.json?limit=20", url.Values{"limit": {"5"}}, "https://api.example.org/chembl/api/data/document.json?limit=5"},
		{"absolute", "https://other.example.org/x.json?a=1", nil, "https://other.example.org/x.json?a=1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.ResolveURL(tt.path, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewAPIClientRejectsRelativeBase(t *testing.T) {
	_, err := NewAPIClient("/relative", testHTTPConfig(), nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestGetDecodesObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/document.json", r.URL.Path)
		assert.Equal(t, "CHEMBL1,CHEMBL2", r.URL.Query().Get("document_chembl_id__in"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"documents": [{"id": 1.50}], "page_meta": {"next": null}}`))
	}))
	defer srv.Close()

	cfg := testHTTPConfig()
	cfg.BearerToken = "secret"
	c, err := NewAPIClient(srv.URL+"/api", cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer c.Close()

	payload, err := c.Get(context.Background(), "/document.json", url.Values{"document_chembl_id__in": {"CHEMBL1,CHEMBL2"}})
	require.NoError(t, err)

	docs, ok := payload["documents"].([]interface{})
	require.True(t, ok)
	require.Len(t, docs, 1)
	doc, ok := jsonpool.AsMap(docs[0])
	require.True(t, ok)
	assert.Equal(t, jsonpool.Number("1.50"), doc["id"])
}

func TestGetUsesClientCredentials(t *testing.T) {
	var tokenCalls atomic.Int32
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "read", r.PostForm.Get("scope"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok123","token_type":"bearer","expires_in":3600}`))
	}))
	defer auth.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"documents": []}`))
	}))
	defer api.Close()

	cfg := testHTTPConfig()
	cfg.BearerToken = "ignored"
	cfg.OAuth2 = config.OAuth2Config{
		ClientID:     "bioetl",
		ClientSecret: "s3cret",
		TokenURL:     auth.URL + "/token",
		Scopes:       []string{"read"},
	}
	c, err := NewAPIClient(api.URL, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 2; i++ {
		_, err := c.Get(context.Background(), "/document.json", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), tokenCalls.Load(), "token is reused until it expires")
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	c, err := NewAPIClient(srv.URL, testHTTPConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	payload, err := c.Get(context.Background(), "/status.json", nil)
	require.NoError(t, err)
	assert.Equal(t, true, payload["ok"])
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewAPIClient(srv.URL, testHTTPConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/missing.json", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTransport))
	assert.False(t, errors.IsRetryable(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetRejectsNonObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[1, 2]`))
	}))
	defer srv.Close()

	c, err := NewAPIClient(srv.URL, testHTTPConfig(), nil)
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "/x.json", nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestCircuitBreaker(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute}, nil)
	cb.now = func() time.Time { return now }

	assert.True(t, cb.Allow())
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	now = now.Add(2 * time.Minute)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
}

func TestRetryPolicyStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Hour}

	var attempts int
	err := p.Execute(ctx, func() error {
		attempts++
		cancel()
		return errors.New(errors.ErrorTypeTransport, "boom").Retryable()
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
}

func TestHandshakeFeedsTracker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"chembl_db_version": "ChEMBL_34", "status": "UP"}`))
	}))
	defer srv.Close()

	c, err := NewAPIClient(srv.URL+"/api", testHTTPConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	tracker := release.NewTracker(c, zaptest.NewLogger(t))
	rel, outcome := tracker.Discover(context.Background(), release.Request{
		Endpoint:  "/missing.json",
		Fallbacks: []string{"/status.json"},
		Enabled:   true,
		Timeout:   time.Second,
	})
	assert.Equal(t, "ChEMBL_34", rel)
	assert.Equal(t, release.OutcomeCaptured, outcome)

	res, err := c.Handshake(context.Background(), "/status.json", false)
	assert.NoError(t, err)
	assert.Nil(t, res)
}
