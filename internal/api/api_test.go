package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asgardtech/pathsec/internal/audit"
	"github.com/asgardtech/pathsec/internal/web/auth"
	"github.com/asgardtech/pathsec/internal/web/cache"
	"github.com/asgardtech/pathsec/internal/web/ratelimit"
	"github.com/asgardtech/pathsec/internal/web/response"
	"github.com/asgardtech/pathsec/pkg/pathsec"
)

func newTestServer(t *testing.T, mutate func(*Options)) http.Handler {
	t.Helper()
	opts := Options{Engine: pathsec.Default(), Version: "test"}
	if mutate != nil {
		mutate(&opts)
	}
	return NewRouter(opts)
}

func post(t *testing.T, h http.Handler, path string, body interface{}, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	decodeJSON(t, rec, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "test", body.Version)
	assert.Equal(t, pathsec.PlatformPortable, body.Platform)
	assert.Equal(t, pathsec.Default().Fingerprint(), body.Fingerprint)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSingleEndpoints(t *testing.T) {
	h := newTestServer(t, nil)

	t.Run("validate-path", func(t *testing.T) {
		rec := post(t, h, "/v1/validate-path", map[string]string{"input": "../../etc/passwd"})
		require.Equal(t, http.StatusOK, rec.Code)
		var res pathsec.ValidationResult
		decodeJSON(t, rec, &res)
		assert.False(t, res.Valid)
		assert.Equal(t, pathsec.ReasonDotDot, res.Reason)
	})

	t.Run("validate-path empty input", func(t *testing.T) {
		rec := post(t, h, "/v1/validate-path", map[string]string{"input": ""})
		require.Equal(t, http.StatusOK, rec.Code)
		var res pathsec.ValidationResult
		decodeJSON(t, rec, &res)
		assert.Equal(t, pathsec.ReasonEmpty, res.Reason)
	})

	t.Run("detect-traversal", func(t *testing.T) {
		rec := post(t, h, "/v1/detect-traversal", map[string]string{"input": "%2e%2e%2fsecret"})
		require.Equal(t, http.StatusOK, rec.Code)
		var res pathsec.TraversalResult
		decodeJSON(t, rec, &res)
		assert.True(t, res.IsTraversal)
		assert.Equal(t, pathsec.ReasonEncodedDotDot, res.Reason)
	})

	t.Run("validate-filename", func(t *testing.T) {
		rec := post(t, h, "/v1/validate-filename", map[string]string{"input": "notes.txt:hidden"})
		require.Equal(t, http.StatusOK, rec.Code)
		var res pathsec.ValidationResult
		decodeJSON(t, rec, &res)
		assert.False(t, res.Valid)
		assert.Equal(t, pathsec.ReasonAlternateDataStream, res.Reason)
	})

	t.Run("sanitize-filename", func(t *testing.T) {
		rec := post(t, h, "/v1/sanitize-filename", map[string]string{"input": "file/name?with*bad|chars.txt"})
		require.Equal(t, http.StatusOK, rec.Code)
		var res pathsec.SanitizedResult
		decodeJSON(t, rec, &res)
		assert.Equal(t, "file_name_with_bad_chars.txt", res.Sanitized)
		assert.True(t, res.Changed)
	})

	t.Run("sanitize-path", func(t *testing.T) {
		rec := post(t, h, "/v1/sanitize-path", map[string]string{"input": "../../etc/passwd"})
		require.Equal(t, http.StatusOK, rec.Code)
		var res pathsec.SanitizedResult
		decodeJSON(t, rec, &res)
		assert.Equal(t, pathsec.SanitizePath("../../etc/passwd").Sanitized, res.Sanitized)
		assert.NotContains(t, res.Sanitized, "..")
	})

	t.Run("validate-project-name", func(t *testing.T) {
		rec := post(t, h, "/v1/validate-project-name", map[string]string{"input": "my-project"})
		require.Equal(t, http.StatusOK, rec.Code)
		var res pathsec.ValidationResult
		decodeJSON(t, rec, &res)
		assert.True(t, res.Valid)
	})

	t.Run("sanitize-project-name", func(t *testing.T) {
		rec := post(t, h, "/v1/sanitize-project-name", map[string]string{"input": "CON"})
		require.Equal(t, http.StatusOK, rec.Code)
		var res pathsec.ProjectNameResult
		decodeJSON(t, rec, &res)
		assert.Equal(t, "CON_project", res.Sanitized)
		assert.Equal(t, pathsec.ReasonReservedName, res.Reason)
	})
}

func TestBadRequests(t *testing.T) {
	h := newTestServer(t, func(o *Options) { o.MaxBodyBytes = 64 })

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"empty body", "/v1/validate-path", "", http.StatusBadRequest, "bad_request"},
		{"not json", "/v1/validate-path", "path=../x", http.StatusBadRequest, "bad_request"},
		{"unknown field", "/v1/validate-path", `{"path":"x"}`, http.StatusBadRequest, "bad_request"},
		{"missing input", "/v1/validate-path", `{}`, http.StatusUnprocessableEntity, "validation_error"},
		{"trailing data", "/v1/validate-path", `{"input":"a"}{"input":"b"}`, http.StatusBadRequest, "bad_request"},
		{"too large", "/v1/validate-path", `{"input":"` + strings.Repeat("a", 100) + `"}`, http.StatusRequestEntityTooLarge, "request_too_large"},
		{"unknown route", "/v1/delete-everything", `{"input":"a"}`, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			var body response.ErrorResponse
			decodeJSON(t, rec, &body)
			assert.Equal(t, tt.code, body.Code)
		})
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/validate-path", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBatch(t *testing.T) {
	h := newTestServer(t, func(o *Options) { o.MaxBatchSize = 3 })

	rec := post(t, h, "/v1/batch", BatchRequest{
		Operation: "validate-path",
		Inputs:    []string{"docs/a.txt", "../b", "c\x00d"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Operation string                     `json:"operation"`
		Results   []pathsec.ValidationResult `json:"results"`
	}
	decodeJSON(t, rec, &body)
	assert.Equal(t, "validate-path", body.Operation)
	require.Len(t, body.Results, 3)
	assert.True(t, body.Results[0].Valid)
	assert.Equal(t, pathsec.ReasonDotDot, body.Results[1].Reason)
	assert.Equal(t, pathsec.ReasonNullByte, body.Results[2].Reason)

	tests := []struct {
		name   string
		req    BatchRequest
		status int
		code   string
	}{
		{"too many", BatchRequest{Operation: "validate-path", Inputs: []string{"a", "b", "c", "d"}}, http.StatusUnprocessableEntity, "batch_too_large"},
		{"unknown op", BatchRequest{Operation: "rm-rf", Inputs: []string{"a"}}, http.StatusUnprocessableEntity, "unprocessable_entity"},
		{"no inputs", BatchRequest{Operation: "validate-path"}, http.StatusUnprocessableEntity, "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, "/v1/batch", tt.req)
			assert.Equal(t, tt.status, rec.Code)
			var body response.ErrorResponse
			decodeJSON(t, rec, &body)
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestVerdictCache(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	engine := pathsec.Default()
	verdicts := cache.NewVerdicts(mc, engine.Fingerprint(), nil)

	h := newTestServer(t, func(o *Options) { o.Verdicts = verdicts })

	first := post(t, h, "/v1/validate-path", map[string]string{"input": "../x"})
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, 1, mc.Len())

	// A poisoned entry proves the second request is served from the cache
	poisoned := pathsec.ValidationResult{Valid: false, Reason: pathsec.ReasonWildcard}
	verdicts.Store(context.Background(), "validate-path", "../x", &poisoned)

	second := post(t, h, "/v1/validate-path", map[string]string{"input": "../x"})
	var res pathsec.ValidationResult
	decodeJSON(t, second, &res)
	assert.Equal(t, pathsec.ReasonWildcard, res.Reason)
}

func openAuditStore(t *testing.T) *audit.Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	config := audit.DefaultConfig(db)
	config.CleanupInterval = 0
	store, err := audit.NewStore(config)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAuditRecording(t *testing.T) {
	store := openAuditStore(t)
	h := newTestServer(t, func(o *Options) { o.Audit = store })

	post(t, h, "/v1/validate-path", map[string]string{"input": "docs/ok.txt"})
	post(t, h, "/v1/validate-path", map[string]string{"input": "../secret"}, "X-Request-ID", "req-42")
	post(t, h, "/v1/detect-traversal", map[string]string{"input": "%2e%2e%2fsecret"})
	post(t, h, "/v1/sanitize-path", map[string]string{"input": "../secret"})
	post(t, h, "/v1/validate-project-name", map[string]string{"input": "CON"})
	post(t, h, "/v1/validate-filename", map[string]string{"input": "report.pdf"})
	post(t, h, "/v1/validate-filename", map[string]string{"input": ".."})

	entries, err := store.List(context.Background(), audit.Filter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 4)

	byOp := map[string]audit.Entry{}
	for _, e := range entries {
		byOp[e.Operation] = e
	}
	assert.Equal(t, "req-42", byOp["validate-path"].RequestID)
	assert.Equal(t, pathsec.ReasonDotDot, byOp["validate-path"].Reason)
	assert.Equal(t, pathsec.ReasonEncodedDotDot, byOp["detect-traversal"].Reason)
	assert.Equal(t, pathsec.ReasonReservedName, byOp["validate-project-name"].Reason)
	assert.Equal(t, pathsec.ReasonDotDot, byOp["validate-filename"].Reason)
}

type brokenRecorder struct{}

func (brokenRecorder) Record(context.Context, audit.Entry) error { return errors.New("disk full") }

func TestAuditFailureKeepsVerdict(t *testing.T) {
	h := newTestServer(t, func(o *Options) { o.Audit = brokenRecorder{} })

	rec := post(t, h, "/v1/validate-path", map[string]string{"input": "../secret"})
	require.Equal(t, http.StatusOK, rec.Code)
	var res pathsec.ValidationResult
	decodeJSON(t, rec, &res)
	assert.Equal(t, pathsec.ReasonDotDot, res.Reason)
}

func TestAuthAndScopes(t *testing.T) {
	tokens, err := auth.NewTokenService("secret", time.Hour)
	require.NoError(t, err)
	validateOnly, err := tokens.GenerateToken("ci", []string{auth.ScopeValidate})
	require.NoError(t, err)

	h := newTestServer(t, func(o *Options) { o.Tokens = tokens })
	body := map[string]string{"input": "a.txt"}

	assert.Equal(t, http.StatusUnauthorized, post(t, h, "/v1/validate-path", body).Code)
	assert.Equal(t, http.StatusOK, post(t, h, "/v1/validate-path", body, "Authorization", "Bearer "+validateOnly).Code)
	assert.Equal(t, http.StatusOK, post(t, h, "/v1/validate-filename", body, "Authorization", "Bearer "+validateOnly).Code)
	assert.Equal(t, http.StatusForbidden, post(t, h, "/v1/sanitize-filename", body, "Authorization", "Bearer "+validateOnly).Code)

	batch := BatchRequest{Operation: "sanitize-path", Inputs: []string{"a"}}
	assert.Equal(t, http.StatusForbidden, post(t, h, "/v1/batch", batch, "Authorization", "Bearer "+validateOnly).Code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimited(t *testing.T) {
	limiter, err := ratelimit.NewTokenBucket(ratelimit.TokenBucketConfig{Capacity: 2, RefillRate: time.Hour})
	require.NoError(t, err)
	defer limiter.Close()

	h := newTestServer(t, func(o *Options) { o.Limiter = limiter })
	body := map[string]string{"input": "a.txt"}

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, post(t, h, "/v1/validate-path", body).Code, fmt.Sprint(i))
	}
	rec := post(t, h, "/v1/validate-path", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
