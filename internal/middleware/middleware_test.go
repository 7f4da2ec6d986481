package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-relay/internal/common/logging"
)

func ok(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func TestRequestID(t *testing.T) {
	var seen interface{}
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Context().Value(logging.RequestIDKey)
	}))

	t.Run("generates an id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		id := rec.Header().Get(RequestIDHeader)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, seen)
	})

	t.Run("keeps an inbound id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "req-42")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
		assert.Equal(t, "req-42", seen)
	})
}

func TestResponseWriter_CapturesFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusTeapot, rw.statusCode)
	assert.Same(t, rw, newResponseWriter(rw), "wrapping twice reuses the wrapper")
}

type recordedHTTP struct {
	method string
	route  string
	status int
}

type fakeHTTPObserver struct {
	mu   sync.Mutex
	seen []recordedHTTP
}

func (f *fakeHTTPObserver) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, recordedHTTP{method, route, status})
}

func TestMetrics_UsesRouteTemplate(t *testing.T) {
	observer := &fakeHTTPObserver{}
	router := mux.NewRouter()
	router.Use(Metrics(observer))
	router.HandleFunc("/api/getir/orders/{id}/verify", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}).Methods(http.MethodPost)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/getir/orders/123/verify", nil))

	require.Len(t, observer.seen, 1)
	assert.Equal(t, recordedHTTP{http.MethodPost, "/api/getir/orders/{id}/verify", http.StatusAccepted}, observer.seen[0])
}

func TestLoggingMiddleware_PassesThrough(t *testing.T) {
	handler := LoggingMiddleware(logging.NewDefaultLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x?y=1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORS_Preflight(t *testing.T) {
	handler := CORS([]string{"*"})(http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodOptions, "/api/getir/orders/1/verify", nil)
	req.Header.Set("Origin", "https://panel.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers")), "token")
}

func TestMaxBody(t *testing.T) {
	var readErr error
	handler := MaxBody(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Error(t, readErr)
}

func TestRateLimit(t *testing.T) {
	limiter := NewKeyedLimiter(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 2})
	handler := RateLimit(limiter, logging.NewDefaultLogger())(http.HandlerFunc(ok))

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2"), "buckets are per client")
	assert.Equal(t, 2, limiter.Keys())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(req))
}

func TestForwarder(t *testing.T) {
	records := make(chan AuditRecord, 1)
	audit := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rec AuditRecord
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
		records <- rec
	}))
	defer audit.Close()

	var handlerBody string
	fwd := NewForwarder(audit.URL, audit.Client(), logging.NewDefaultLogger())
	handler := fwd.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		handlerBody = string(data)
	}))

	req := httptest.NewRequest(http.MethodPost, "/getir/add?src=test", strings.NewReader(`{"id":"o-1"}`))
	req.Header.Set("token", "client-token-1234")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, `{"id":"o-1"}`, handlerBody, "handler still sees the body")

	select {
	case rec := <-records:
		assert.Equal(t, "/getir/add?src=test", rec.Path)
		assert.Equal(t, http.MethodPost, rec.Method)
		assert.JSONEq(t, `{"id":"o-1"}`, string(rec.Body))
		assert.Equal(t, "*************1234", rec.Headers["token"])
	case <-time.After(2 * time.Second):
		t.Fatal("audit record was not forwarded")
	}
}

func TestForwarder_BehindMaxBodyRejectsOversizedRequest(t *testing.T) {
	records := make(chan AuditRecord, 1)
	audit := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rec AuditRecord
		_ = json.NewDecoder(r.Body).Decode(&rec)
		records <- rec
	}))
	defer audit.Close()

	called := false
	fwd := NewForwarder(audit.URL, audit.Client(), logging.NewDefaultLogger())
	// Same order as the app: the cap wraps the forwarder.
	handler := MaxBody(16)(fwd.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})))

	body := `{"a":1}` + strings.Repeat(" ", 64)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/getir/add", strings.NewReader(body)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.JSONEq(t, `{"error":"request body too large"}`, rec.Body.String())
	assert.False(t, called, "truncated body must not reach the handler")

	select {
	case <-records:
		t.Fatal("oversized request was forwarded")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestForwarder_BodyWithinCapStillForwarded(t *testing.T) {
	audit := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer audit.Close()

	var got string
	fwd := NewForwarder(audit.URL, audit.Client(), logging.NewDefaultLogger())
	handler := MaxBody(16)(fwd.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		got = string(data)
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/getir/add", strings.NewReader(`{"a":1}`)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"a":1}`, got)
}

func TestForwarder_SkipsAuditCopyPastOwnLimit(t *testing.T) {
	records := make(chan AuditRecord, 1)
	audit := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rec AuditRecord
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
		records <- rec
	}))
	defer audit.Close()

	fwd := NewForwarder(audit.URL, audit.Client(), logging.NewDefaultLogger())
	fwd.maxBody = 8

	body := `{"items":["` + strings.Repeat("x", 32) + `"]}`
	var got string
	handler := fwd.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		got = string(data)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/getir/add", strings.NewReader(body)))

	assert.Equal(t, body, got, "handler sees the whole body")
	select {
	case rec := <-records:
		assert.JSONEq(t, `{}`, string(rec.Body))
	case <-time.After(2 * time.Second):
		t.Fatal("audit record was not forwarded")
	}
}

func TestAuditBody(t *testing.T) {
	assert.JSONEq(t, `{}`, string(auditBody(nil)))
	assert.JSONEq(t, `[1,2]`, string(auditBody([]byte(` [1,2] `))))
	assert.JSONEq(t, `"plain text"`, string(auditBody([]byte("plain text"))))
}
