package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/caldash/internal/model"
)

// recordedRequest はNewMetricsMiddlewareが記録した1リクエスト分の値。
type recordedRequest struct {
	method string
	route  string
	status int
}

// mockCollector はHTTPリクエストの記録だけを保持するMetricsCollector。
type mockCollector struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (m *mockCollector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, recordedRequest{method: method, route: route, status: statusCode})
}

func (m *mockCollector) RecordUpstreamCall(operation, outcome string, duration time.Duration) {}
func (m *mockCollector) RecordAuthCallback(result string)                                     {}
func (m *mockCollector) RecordTokenRefresh(result string)                                     {}
func (m *mockCollector) RecordSessionsPurged(count int64)                                     {}

func (m *mockCollector) last(t *testing.T) recordedRequest {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		t.Fatal("no request recorded")
	}
	return m.requests[len(m.requests)-1]
}

// newTestChain はアプリケーションと同じ順序でミドルウェアを組んだルーターを返す。
func newTestChain(t *testing.T, collector *mockCollector, logBuf *bytes.Buffer) (http.Handler, *SessionCookie, *RateLimiter) {
	t.Helper()
	cookie := newTestCookie()
	resolver := resolverFor("s-1", &model.User{ID: "u-1"})
	rl := newTestRateLimiter(t, 0.01, 2)

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware())
	r.Use(NewSecurityHeadersMiddleware())
	r.Use(NewCORSMiddleware("http://localhost:3000"))
	r.Use(NewLoggingMiddleware(newTestLogger(logBuf)))
	r.Use(NewMetricsMiddleware(collector))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Group(func(r chi.Router) {
		r.Use(NewSessionMiddleware(cookie, resolver))
		r.Use(rl.Middleware())
		r.Get("/calendar/events/{eventID}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Get("/calendar/panic", func(w http.ResponseWriter, r *http.Request) {
			panic("handler bug")
		})
	})

	return r, cookie, rl
}

func TestChain_PublicRoute(t *testing.T) {
	collector := &mockCollector{}
	var logBuf bytes.Buffer
	router, _, _ := newTestChain(t, collector, &logBuf)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers should be applied")
	}
	if got := collector.last(t); got.route != "/health" || got.status != http.StatusOK {
		t.Errorf("recorded = %+v", got)
	}
}

func TestChain_GatedRouteWithoutSession_Returns401(t *testing.T) {
	collector := &mockCollector{}
	var logBuf bytes.Buffer
	router, _, rl := newTestChain(t, collector, &logBuf)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/calendar/events/e-1", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	// 未認証リクエストはレートリミッターに到達しない
	if rl.LimiterCount() != 0 {
		t.Errorf("LimiterCount() = %d, want 0", rl.LimiterCount())
	}
	if got := collector.last(t); got.status != http.StatusUnauthorized {
		t.Errorf("recorded status = %d, want 401", got.status)
	}
}

// メトリクスのrouteラベルには実際のパスではなくルートパターンを使う
func TestChain_MetricsUseRoutePattern(t *testing.T) {
	collector := &mockCollector{}
	var logBuf bytes.Buffer
	router, cookie, _ := newTestChain(t, collector, &logBuf)

	req := httptest.NewRequest(http.MethodGet, "/calendar/events/abc123", nil)
	req.AddCookie(signedCookie(t, cookie, "s-1"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := collector.last(t); got.route != "/calendar/events/{eventID}" {
		t.Errorf("route = %q, want %q", got.route, "/calendar/events/{eventID}")
	}
	if !bytes.Contains(logBuf.Bytes(), []byte(`"user_id":"u-1"`)) {
		t.Errorf("access log should contain user_id: %s", logBuf.String())
	}
}

func TestChain_UnmatchedRouteLabel(t *testing.T) {
	collector := &mockCollector{}
	var logBuf bytes.Buffer
	router, _, _ := newTestChain(t, collector, &logBuf)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/no/such/route", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if got := collector.last(t); got.route != unmatchedRoute {
		t.Errorf("route = %q, want %q", got.route, unmatchedRoute)
	}
}

func TestChain_RateLimitAfterSession(t *testing.T) {
	collector := &mockCollector{}
	var logBuf bytes.Buffer
	router, cookie, _ := newTestChain(t, collector, &logBuf)

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/calendar/events/e-1", nil)
		req.AddCookie(signedCookie(t, cookie, "s-1"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		last = w.Code
	}

	if last != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", last)
	}
}

func TestChain_PanicIsRecoveredAndLogged(t *testing.T) {
	collector := &mockCollector{}
	var logBuf bytes.Buffer
	router, cookie, _ := newTestChain(t, collector, &logBuf)

	req := httptest.NewRequest(http.MethodGet, "/calendar/panic", nil)
	req.AddCookie(signedCookie(t, cookie, "s-1"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
