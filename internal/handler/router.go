package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/churchadmin/internal/metrics"
	"github.com/hitoshi/churchadmin/internal/middleware"
)

// HealthChecker はDB接続の死活確認を行うインターフェース。*sql.DB が満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ハンドラー依存
	Deps *Deps

	// ミドルウェア依存
	HealthChecker     HealthChecker
	Gatherer          prometheus.Gatherer
	HTTPRecorder      middleware.HTTPRecorder
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
	CSRF              middleware.CSRFConfig
}

// NewRouter はBFFの全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Session → Logging → Metrics → RateLimit(General) → CSRF
//
// /health と /metrics はミドルウェアチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	d := deps.Deps
	logger := d.Logger

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	authHandler := NewAuthHandler(d)
	dashboardHandler := NewDashboardHandler(d)
	adminHandler := NewAdminHandler(d)

	r.Route("/app", func(r chi.Router) {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
		r.Use(middleware.NewSessionMiddleware(d.SessionCookie))
		r.Use(middleware.NewLoggingMiddleware(logger))
		if deps.HTTPRecorder != nil {
			r.Use(middleware.NewMetricsMiddleware(deps.HTTPRecorder))
		}
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}
		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF, logger))

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewCSRFMiddleware(deps.CSRF, logger))
			r.Use(d.withScope)

			// --- 認証不要のルート ---
			r.Get("/session", authHandler.Session)
			r.Get("/loading", authHandler.Loading)
			r.Get("/churches", authHandler.ListChurches)
			r.Route("/auth", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					if deps.RateLimiter != nil {
						r.Use(deps.RateLimiter.LoginMiddleware())
					}
					r.Post("/login", authHandler.Login)
					r.Post("/register", authHandler.Register)
				})
				r.Post("/logout", authHandler.Logout)
			})

			// --- ログインが必要なルート ---
			r.Group(func(r chi.Router) {
				r.Use(d.requireAuth)

				r.Route("/dashboard", func(r chi.Router) {
					r.Get("/events", dashboardHandler.ListEvents)
					r.Get("/events.ics", dashboardHandler.ExportCalendar)
				})

				// --- 管理者のみのルート ---
				r.Route("/admin", func(r chi.Router) {
					r.Use(d.requireAdmin)

					r.Route("/events", func(r chi.Router) {
						r.Get("/", adminHandler.ListEvents)
						r.Post("/", adminHandler.CreateEvent)
						r.Get("/new", adminHandler.NewEventForm)

						r.Route("/{id}", func(r chi.Router) {
							r.Get("/", adminHandler.GetEvent)
							r.Put("/", adminHandler.UpdateEvent)
							r.Delete("/", adminHandler.DeleteEvent)
							r.Get("/edit", adminHandler.EditEventForm)
							r.Post("/participants", adminHandler.AddParticipants)
						})
					})

					r.Route("/members", func(r chi.Router) {
						r.Get("/", adminHandler.ListMembers)
						r.Get("/{id}", adminHandler.GetMember)
					})
				})
			})
		})
	})

	return r
}

// healthHandler はDB接続を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(hc HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hc != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := hc.PingContext(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
