package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/confman/internal/conference"
	"github.com/hitoshi/confman/internal/gate"
	"github.com/hitoshi/confman/internal/metrics"
	"github.com/hitoshi/confman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Resolver          middleware.PrincipalResolver
	CORSAllowedOrigin string
	CSRF              middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 運用
	HealthChecker  HealthChecker
	Metrics        metrics.MetricsCollector // nilの場合は記録しない
	MetricsHandler http.Handler             // nilの場合は /metrics を公開しない

	// 認証
	AuthService AuthService
	AuthConfig  AuthHandlerConfig

	// カンファレンス
	ConferenceService ConferenceService
}

// procedure は操作名に対応するProcedureを返す。未知の操作名は配線の誤りなのでpanicする。
func procedure(op string) gate.Procedure {
	p, ok := conference.ProcedureFor(op)
	if !ok {
		panic(fmt.Sprintf("handler: unknown operation %q", op))
	}
	return p
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → Metrics → SecurityHeaders → CORS
//	  → Identity → RateLimit(General) → RequireProcedure → CSRF
//
// CSRFは認可の後に検証するため、匿名の状態変更リクエストはトークンの有無に
// かかわらず401になる。
// /health と /metrics はIdentity以降のチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var denials middleware.DenialRecorder
	if deps.Metrics != nil {
		denials = deps.Metrics
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// --- 運用エンドポイント ---
	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	confHandler := NewConferenceHandler(deps.ConferenceService)
	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	csrf := middleware.NewCSRFMiddleware(deps.CSRF)
	// guard はゲート判定の後にCSRF検証を行うミドルウェア列を返す。
	guard := func(op string) []func(http.Handler) http.Handler {
		return []func(http.Handler) http.Handler{
			middleware.RequireProcedure(procedure(op), denials),
			csrf,
		}
	}

	// --- 呼び出し元を解決するルート ---
	// ミドルウェアスタック: Identity → RateLimit(General) → (ルートごと) RequireProcedure → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware(deps.Resolver, deps.AuthConfig.SessionCookieName))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

		r.Route("/api/conferences", func(r chi.Router) {
			r.With(guard("listPublicConferences")...).Get("/", confHandler.ListPublic)

			create := r.With(guard("createConference")...)
			if deps.RateLimiter != nil {
				create = create.With(deps.RateLimiter.CreateMiddleware())
			}
			create.Post("/", confHandler.Create)

			r.With(guard("getConference")...).Get("/{id}", confHandler.Get)
		})

		r.Route("/api/admin/conferences", func(r chi.Router) {
			r.With(guard("listPendingConferences")...).Get("/pending", confHandler.ListPending)
			r.With(guard("approveConference")...).Post("/{id}/approve", confHandler.Approve)
			r.With(guard("deleteConference")...).Delete("/{id}", confHandler.Delete)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.RequireProcedure(gate.Protected, denials), csrf)
			r.Get("/me", authHandler.Me)
			r.Post("/logout", authHandler.Logout)
		})
	})

	return r
}
