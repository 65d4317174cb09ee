package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/caldash/internal/metrics"
	"github.com/hitoshi/caldash/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	SessionCookie     *middleware.SessionCookie
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// カレンダー
	CalendarService CalendarServiceInterface

	// システム
	DB             Pinger
	SystemConfig   SystemHandlerConfig
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics
//	（認証が必要なルートのみ）→ Session → RateLimit
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))

	authHandler := NewAuthHandler(deps.AuthService, deps.SessionCookie, deps.AuthConfig)
	calendarHandler := NewCalendarHandler(deps.CalendarService)
	systemHandler := NewSystemHandler(deps.DB, deps.SystemConfig)

	r.NotFound(systemHandler.NotFound)

	// --- 認証不要のルート ---
	r.Get("/", systemHandler.Info)
	r.Get("/health", systemHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Get("/google", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Get("/status", authHandler.Status)
		r.Get("/session", authHandler.Session)
		r.Get("/failed", authHandler.Failed)
		r.Get("/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionCookie, deps.AuthService))
			r.Use(deps.RateLimiter.Middleware())

			r.Get("/user", authHandler.User)
			r.Post("/refresh-token", authHandler.RefreshToken)
		})
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit
	r.Route("/calendar", func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionCookie, deps.AuthService))
		r.Use(deps.RateLimiter.Middleware())

		r.Get("/upcoming", calendarHandler.UpcomingEvents)

		r.Route("/events", func(r chi.Router) {
			r.Get("/", calendarHandler.ListEvents)
			r.Post("/", calendarHandler.CreateEvent)

			r.Route("/{eventID}", func(r chi.Router) {
				r.Get("/", calendarHandler.GetEvent)
				r.Put("/", calendarHandler.UpdateEvent)
				r.Delete("/", calendarHandler.DeleteEvent)
			})
		})
	})

	return r
}
