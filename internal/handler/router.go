package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/pitlog/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	AuthSessions      middleware.AuthSessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	HTTPMetrics       middleware.HTTPMetricsRecorder

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ドメイン
	LogService     LogServiceInterface
	WeekendService WeekendServiceInterface
	ReviewService  ReviewServiceInterface
	Resolver       VisibilityResolver
	StatsService   StatsServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → CORS → Session(必須/任意) → RateLimit(General) → RateLimit(Write, 作成系のみ)
//
// /health と /metrics は認証不要。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.HTTPMetrics))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	logHandler := NewLogHandler(deps.LogService, deps.WeekendService)
	reviewHandler := NewReviewHandler(deps.ReviewService)
	sessionHandler := NewSessionHandler(deps.Resolver)
	statsHandler := NewStatsHandler(deps.StatsService)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 未ログインでも閲覧できるルート ---
	// ログイン済みの場合は記録の有無に応じてネタバレ表示が変わる
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOptionalSessionMiddleware(deps.AuthSessions))

		r.Get("/reviews/session/{sessionId}", reviewHandler.ListSessionReviews)
		r.Get("/sessions/{sessionId}/visibility", sessionHandler.Visibility)
		r.Get("/stats/sessions/{sessionId}", statsHandler.SessionStats)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.AuthSessions))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/logs", func(r chi.Router) {
			r.With(deps.RateLimiter.WriteMiddleware()).Post("/", logHandler.CreateLog)
			r.With(deps.RateLimiter.WriteMiddleware()).Post("/weekend", logHandler.LogWeekend)
			r.Get("/session/{sessionId}", logHandler.GetMyLogForSession)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", logHandler.GetLog)
				r.Put("/", logHandler.UpdateLog)
				r.Delete("/", logHandler.DeleteLog)
				r.Put("/experience", logHandler.UpdateExperience)
			})
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Post("/log/{logId}", reviewHandler.CreateReview)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", reviewHandler.GetReview)
				r.Put("/", reviewHandler.UpdateReview)
				r.Delete("/", reviewHandler.DeleteReview)
				r.Post("/like", reviewHandler.Like)
				r.Delete("/like", reviewHandler.Unlike)
			})
		})

		r.Get("/stats/me", statsHandler.MyStats)
	})

	return r
}
