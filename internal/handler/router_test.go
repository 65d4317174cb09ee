package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/caldash/internal/calendar"
	"github.com/hitoshi/caldash/internal/metrics"
	"github.com/hitoshi/caldash/internal/middleware"
	"github.com/hitoshi/caldash/internal/model"
	"github.com/hitoshi/caldash/internal/security"
)

// testServer は本番と同じ構成のルーターと、呼び出し回数を数える上流カレンダーのスタブ。
type testServer struct {
	router       http.Handler
	cookie       *middleware.SessionCookie
	upstreamHits *atomic.Int64
	registry     *prometheus.Registry
	authService  *mockAuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	var hits atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/events"):
			io.WriteString(w, `{"items":[{"id":"e-1","summary":"Standup","start":{"dateTime":"2024-03-01T09:00:00Z"},"end":{"dateTime":"2024-03-01T09:15:00Z"}}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":{"code":404,"message":"Not Found"}}`)
		}
	}))
	t.Cleanup(upstream.Close)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	cookie := newTestSessionCookie()
	authSvc := &mockAuthService{
		resolveSessionFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			if sessionID == "valid-session" {
				return &model.User{ID: "u-1", Email: "a@x.com", AccessToken: "valid-token"}, nil
			}
			return nil, model.NewUnauthenticatedError()
		},
	}

	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(600))
	t.Cleanup(rl.Stop)

	calendarSvc := calendar.NewService(
		calendar.NewClientFactory(upstream.URL+"/calendar/v3/"),
		security.NewDescriptionSanitizer(),
		collector,
	)

	router := NewRouter(&RouterDeps{
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Metrics:           collector,
		SessionCookie:     cookie,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		AuthService:       authSvc,
		AuthConfig:        testAuthConfig,
		CalendarService:   calendarSvc,
		DB:                &mockPinger{},
		SystemConfig:      SystemHandlerConfig{Version: "1.0.0", Environment: "test"},
		MetricsHandler:    metrics.Handler(registry),
	})

	return &testServer{
		router:       router,
		cookie:       cookie,
		upstreamHits: &hits,
		registry:     registry,
		authService:  authSvc,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body string, sessionID string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if sessionID != "" {
		req.AddCookie(sessionCookieFor(t, s.cookie, sessionID))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// 未認証のリクエストは上流を一度も呼ばずに401になる
func TestRouter_GatedRoutesRejectUnauthenticated(t *testing.T) {
	srv := newTestServer(t)

	draft := `{"summary":"x","start":"2024-03-01T09:00:00Z","end":"2024-03-01T10:00:00Z"}`
	routes := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/calendar/events", ""},
		{http.MethodGet, "/calendar/upcoming", ""},
		{http.MethodGet, "/calendar/events/e-1", ""},
		{http.MethodPost, "/calendar/events", draft},
		{http.MethodPut, "/calendar/events/e-1", draft},
		{http.MethodDelete, "/calendar/events/e-1", ""},
		{http.MethodGet, "/auth/user", ""},
		{http.MethodPost, "/auth/refresh-token", ""},
	}

	for _, sessionID := range []string{"", "unknown-session"} {
		for _, rt := range routes {
			t.Run(rt.method+" "+rt.path+" session="+sessionID, func(t *testing.T) {
				w := srv.do(t, rt.method, rt.path, rt.body, sessionID)

				if w.Code != http.StatusUnauthorized {
					t.Errorf("status = %d, want 401", w.Code)
				}
				var body middleware.ErrorResponseBody
				if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
					t.Fatalf("failed to decode body: %v", err)
				}
				if body.Code != model.ErrCodeUnauthenticated {
					t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthenticated)
				}
			})
		}
	}

	if hits := srv.upstreamHits.Load(); hits != 0 {
		t.Errorf("upstream hits = %d, want 0", hits)
	}
}

func TestRouter_AuthenticatedListReachesUpstream(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/calendar/events", "", "valid-session")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", w.Code, w.Body.String())
	}
	var events []model.CalendarEvent
	if err := json.NewDecoder(w.Body).Decode(&events); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(events) != 1 || events[0].Summary != "Standup" {
		t.Errorf("events = %+v", events)
	}
	if hits := srv.upstreamHits.Load(); hits != 1 {
		t.Errorf("upstream hits = %d, want 1", hits)
	}
}

func TestRouter_UpstreamNotFoundMapsTo404(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/calendar/events/missing", "", "valid-session")

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var body middleware.ErrorResponseBody
	json.NewDecoder(w.Body).Decode(&body)
	if body.Code != model.ErrCodeEventNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeEventNotFound)
	}
}

func TestRouter_InvalidDraftNeverReachesUpstream(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodPost, "/calendar/events", `{"summary":"","start":"today","end":""}`, "valid-session")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if hits := srv.upstreamHits.Load(); hits != 0 {
		t.Errorf("upstream hits = %d, want 0", hits)
	}
}

func TestRouter_PublicRoutes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/auth/status", http.StatusOK},
		{http.MethodGet, "/auth/session", http.StatusOK},
		{http.MethodGet, "/auth/failed", http.StatusUnauthorized},
		{http.MethodGet, "/auth/google", http.StatusTemporaryRedirect},
		{http.MethodGet, "/auth/logout", http.StatusTemporaryRedirect},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/no/such/route", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := srv.do(t, tt.method, tt.path, "", "")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}

	if hits := srv.upstreamHits.Load(); hits != 0 {
		t.Errorf("upstream hits = %d, want 0", hits)
	}
}

func TestRouter_UnknownRouteUsesErrorFormat(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/no/such/route", "", "")

	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != model.ErrCodeRouteNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRouteNotFound)
	}
}

func TestRouter_AppliesSecurityAndCORSHeaders(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/health", "", "")

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

func TestRouter_PreflightIsNotGated(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodOptions, "/calendar/events", "", "")

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
}

// メトリクスエンドポイントにはルートパターン単位のリクエスト数が出る
func TestRouter_MetricsExposeRoutePattern(t *testing.T) {
	srv := newTestServer(t)

	srv.do(t, http.MethodGet, "/calendar/events/missing", "", "valid-session")

	w := srv.do(t, http.MethodGet, "/metrics", "", "")
	out := w.Body.String()

	if !strings.Contains(out, `route="/calendar/events/{eventID}"`) {
		t.Errorf("metrics should contain the route pattern:\n%s", out)
	}
	if !strings.Contains(out, "caldash_upstream_calls_total") {
		t.Errorf("metrics should contain upstream calls:\n%s", out)
	}
}

func TestRouter_LoginThenCallbackFlow(t *testing.T) {
	srv := newTestServer(t)
	srv.authService.handleCallbackFn = func(ctx context.Context, code string) (*model.Session, error) {
		return &model.Session{ID: "valid-session", UserID: "u-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}

	login := srv.do(t, http.MethodGet, "/auth/google", "", "")
	stateCookie := findCookie(login.Result(), oauthStateCookie)
	if stateCookie == nil {
		t.Fatal("oauth_state cookie should be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=c&state="+stateCookie.Value, nil)
	req.AddCookie(stateCookie)
	cb := httptest.NewRecorder()
	srv.router.ServeHTTP(cb, req)

	if cb.Code != http.StatusTemporaryRedirect {
		t.Fatalf("callback status = %d", cb.Code)
	}
	sessionCookie := findCookie(cb.Result(), middleware.SessionCookieName)
	if sessionCookie == nil {
		t.Fatal("session cookie should be set")
	}

	userReq := httptest.NewRequest(http.MethodGet, "/auth/user", nil)
	userReq.AddCookie(sessionCookie)
	uw := httptest.NewRecorder()
	srv.router.ServeHTTP(uw, userReq)

	if uw.Code != http.StatusOK {
		t.Errorf("GET /auth/user status = %d, want 200", uw.Code)
	}
	if !bytes.Contains(uw.Body.Bytes(), []byte(`"email":"a@x.com"`)) {
		t.Errorf("body = %s", uw.Body.String())
	}
}
