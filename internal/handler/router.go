package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/deepdecrypt/decrypt-blog-engine/internal/metrics"
	"github.com/deepdecrypt/decrypt-blog-engine/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	HTTPMetrics        metrics.HTTPRecorder

	// 運用エンドポイント
	DB             Pinger
	MetricsHandler http.Handler

	// 購読者
	SubscriberService SubscriberServiceInterface

	// 記事・ツール
	ContentService ContentServiceInterface

	// DevMode はエラーレスポンスに内部エラーの原因を含めるかどうか。
	DevMode bool
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → Metrics → SecurityHeaders → CORS
//
// /api 配下にはさらにレート制限（API全般）を適用し、
// POST /api/subscribers には購読登録専用のレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	subHandler := NewSubscriberHandler(deps.SubscriberService, deps.DevMode)
	contentHandler := NewContentHandler(deps.ContentService, deps.DevMode)

	// --- 運用エンドポイント（レート制限なし） ---
	r.Get("/health", HealthHandler(deps.DB))
	r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)

	// --- 公開API ---
	r.Route("/api", func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// POST /api/subscribers - 購読登録（登録専用レート制限を追加）
		r.With(deps.RateLimiter.SubscribeMiddleware()).Post("/subscribers", subHandler.Subscribe)

		r.Get("/posts", contentHandler.ListPosts)
		r.Get("/posts/{slug}", contentHandler.GetPost)

		r.Get("/tools", contentHandler.ListTools)
		r.Get("/tools/{id}", contentHandler.GetTool)
	})

	return r
}
