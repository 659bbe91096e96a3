package httputil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/observability"
)

func TestWriteFieldError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteFieldError(w, http.StatusBadRequest, "expiresAt", "must be in the future")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "expiresAt", body.Field)
	assert.Equal(t, "must be in the future", body.Error)
}

func TestWriteInternalError_HidesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalError(w)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}

func TestParseJSON(t *testing.T) {
	type payload struct {
		Description string `json:"description"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"description":"svc"}`, ""},
		{"empty body", ``, "request body is required"},
		{"unknown field", `{"descripton":"svc"}`, "unknown field"},
		{"trailing data", `{"description":"a"}{"description":"b"}`, "unexpected data"},
		{"malformed", `{"description":`, "invalid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload
			err := ParseJSON(r, &p)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "svc", p.Description)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParsePathString(t *testing.T) {
	r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"tenant": "T1"})

	val, err := ParsePathString(r, "tenant")
	require.NoError(t, err)
	assert.Equal(t, "T1", val)

	_, err = ParsePathString(r, "id")
	assert.Error(t, err)
}

func TestParseQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=25&status=ACTIVE&bad=x", nil)

	limit, err := ParseQueryInt(r, "limit", 100)
	require.NoError(t, err)
	assert.Equal(t, 25, limit)

	limit, err = ParseQueryInt(r, "missing", 100)
	require.NoError(t, err)
	assert.Equal(t, 100, limit)

	_, err = ParseQueryInt(r, "bad", 0)
	assert.Error(t, err)

	assert.Equal(t, "ACTIVE", ParseQueryString(r, "status", ""))
	assert.Equal(t, "json", ParseQueryString(r, "format", "json"))
}

func TestRequireHeader(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-Actor", "  ")

	_, ok := RequireHeader(w, r, "X-Actor")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r.Header.Set("X-Actor", " alice ")
	actor, ok := RequireHeader(httptest.NewRecorder(), r, "X-Actor")
	assert.True(t, ok)
	assert.Equal(t, "alice", actor)
}

func TestMiddlewareChain(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &buf)

	var seenRequestID string
	handler := Chain(
		RequestIDMiddleware,
		LoggingMiddleware(logger),
		RecoveryMiddleware(logger),
		ContentTypeMiddleware,
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenRequestID = observability.GetRequestID(r.Context())
		if r.URL.Path == "/panic" {
			panic("boom")
		}
		WriteSuccess(w, map[string]string{"ok": "yes"})
	}))

	t.Run("request ID propagated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "req-42")
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
		assert.Equal(t, "req-42", seenRequestID)
		assert.Contains(t, buf.String(), `"request_id":"req-42"`)
	})

	t.Run("request ID generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("panic becomes 500", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, buf.String(), "PANIC recovered")
	})

	t.Run("non JSON body rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a=b"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("JSON with charset accepted", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
