package handler

import (
	"log/slog"
	"net/http"

	"github.com/creatorships/dashboard/internal/metrics"
	"github.com/creatorships/dashboard/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Gate              *middleware.SessionGate
	PageGate          middleware.PageGate
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 運用
	HealthChecker HealthChecker
	Metrics       metrics.MetricsCollector
	Gatherer      prometheus.Gatherer
	StaticDir     string

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 購読・クレジット
	SubscriptionService SubscriptionServiceInterface
	RevealService       RevealServiceInterface

	// クリエイター
	CreatorService  CreatorServiceInterface
	MediaKitService MediaKitServiceInterface
	AvatarFetcher   AvatarFetcher

	// キャンペーン・メッセージ・ダッシュボード
	CampaignService  CampaignServiceInterface
	MessageService   MessageServiceInterface
	DashboardService DashboardServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → Metrics → CORS
//	  ページ:  SessionGate(Page) → Paywall（/dashboard/* のみ）
//	  API:     SessionGate(API) → RateLimit(General) → CSRF [→ RateLimit(Reveal)]
//
// 認証ルート（/auth/*）とヘルスチェックはセッション必須のチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.Nop{}
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(log))
	r.Use(middleware.NewMetricsMiddleware(mc))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	gate := deps.Gate
	csrf := middleware.NewCSRFMiddleware(deps.CSRFConfig)

	pages := NewPageHandler(deps.StaticDir)
	authHandler := NewAuthHandler(deps.AuthService, gate, deps.AuthConfig)
	subHandler := NewSubscriptionHandler(deps.SubscriptionService)
	revealHandler := NewRevealHandler(deps.RevealService)
	creatorHandler := NewCreatorHandler(deps.CreatorService, deps.MediaKitService, deps.AvatarFetcher)
	campaignHandler := NewCampaignHandler(deps.CampaignService)
	messageHandler := NewMessageHandler(deps.MessageService)
	dashboardHandler := NewDashboardHandler(deps.DashboardService)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- ページ ---
	r.Method(http.MethodGet, "/", gate.RootRedirect())
	if assets := pages.Assets(); assets != nil {
		r.Handle("/assets/*", assets)
	}

	// ログイン済みの場合は/dashboardへ
	r.Group(func(r chi.Router) {
		r.Use(gate.PublicOnly())
		r.Method(http.MethodGet, "/login", pages)
		r.Method(http.MethodGet, "/register", pages)
	})
	r.Method(http.MethodGet, "/forgot-password", pages)
	r.Method(http.MethodGet, "/reset-password", authHandler.RecoveryExchange(pages))

	// 購読ページはペイウォールの誘導先のためカウントしない
	r.With(gate.RequirePage()).Method(http.MethodGet, "/subscription", pages)

	r.Group(func(r chi.Router) {
		r.Use(gate.RequirePage())
		r.Use(middleware.NewPaywallMiddleware(deps.PageGate, mc))
		r.Method(http.MethodGet, "/dashboard", pages)
		r.Method(http.MethodGet, "/dashboard/*", pages)
	})

	// --- 認証 ---
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signin", authHandler.SignIn)
		r.Post("/signup", authHandler.SignUp)
		r.Get("/oauth/{provider}", authHandler.OAuthLogin)
		r.Get("/callback", authHandler.OAuthCallback)
		r.Post("/forgot-password", authHandler.ForgotPassword)
		r.Get("/remembered", authHandler.Remembered)

		r.Group(func(r chi.Router) {
			r.Use(gate.Optional())
			r.Get("/me", authHandler.Me)
			r.With(csrf).Post("/signout", authHandler.SignOut)
		})

		r.With(gate.RequireAPI(), csrf).Post("/reset-password", authHandler.ResetPassword)
	})

	// --- API ---
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(gate.RequireAPI())
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(csrf)

		r.Get("/api/subscription", subHandler.GetState)
		r.Get("/api/credits/history", subHandler.GetHistory)

		// クリエイター検索
		r.Route("/api/creators", func(r chi.Router) {
			r.Get("/", creatorHandler.Search)
			r.Delete("/cache", creatorHandler.ClearCache)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/avatar", creatorHandler.Avatar)
				// POST /api/creators/{id}/reveal - 開示専用レート制限を追加
				r.With(deps.RateLimiter.RevealMiddleware()).Post("/reveal", revealHandler.RevealCreator)
			})
		})
		r.With(deps.RateLimiter.RevealMiddleware()).Post("/api/emails/reveal", revealHandler.RevealEmail)
		r.Get("/api/mediakit/{username}", creatorHandler.MediaKit)

		// キャンペーン
		r.Route("/api/campaigns", func(r chi.Router) {
			r.Get("/", campaignHandler.List)
			r.Post("/", campaignHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", campaignHandler.Get)
				r.Delete("/", campaignHandler.Delete)
				r.Patch("/status", campaignHandler.UpdateStatus)
			})
		})

		// メッセージ
		r.Route("/api/conversations", func(r chi.Router) {
			r.Get("/", messageHandler.ListConversations)
			r.Post("/", messageHandler.StartConversation)
			r.Get("/{id}/messages", messageHandler.ListMessages)
			r.Post("/{id}/messages", messageHandler.Send)
		})
		r.Get("/api/messages/unread", messageHandler.UnreadCount)

		// ダッシュボード
		r.Route("/api/dashboard", func(r chi.Router) {
			r.Get("/overview", dashboardHandler.Overview)
			r.Get("/statistics", dashboardHandler.Statistics)
			r.Get("/reports", dashboardHandler.Reports)
		})
	})

	return r
}
