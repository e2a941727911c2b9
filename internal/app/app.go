package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creatorships/dashboard/internal/auth"
	"github.com/creatorships/dashboard/internal/campaign"
	"github.com/creatorships/dashboard/internal/config"
	"github.com/creatorships/dashboard/internal/creator"
	"github.com/creatorships/dashboard/internal/dashboard"
	"github.com/creatorships/dashboard/internal/database"
	"github.com/creatorships/dashboard/internal/handler"
	"github.com/creatorships/dashboard/internal/logger"
	"github.com/creatorships/dashboard/internal/message"
	"github.com/creatorships/dashboard/internal/metrics"
	"github.com/creatorships/dashboard/internal/middleware"
	"github.com/creatorships/dashboard/internal/paywall"
	"github.com/creatorships/dashboard/internal/repository"
	"github.com/creatorships/dashboard/internal/reveal"
	"github.com/creatorships/dashboard/internal/security"
	"github.com/creatorships/dashboard/internal/subscription"
	"github.com/creatorships/dashboard/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// dbConnectRetries はバックエンドストアへの接続試行回数。
	dbConnectRetries = 5
	// dbConnectDelay は接続試行の初回待機時間。
	dbConnectDelay = time.Second
	// cleanupInterval はページ閲覧数リセットジョブの実行間隔。
	cleanupInterval = time.Hour
	// shutdownTimeout はグレースフルシャットダウンの猶予。
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定のログレベルで再設定
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(healthcheckURL(port))
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はバックエンドストアに接続し、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.WaitForConnection(ctx, db, dbConnectRetries, dbConnectDelay); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// server はAPIサーバーを構成するコンポーネント。
// バックグラウンド処理の起動と停止はrunServeが行う。
type server struct {
	handler  http.Handler
	searches *creator.Service
	limiter  *middleware.RateLimiter
	events   *auth.Events
}

// newServer は全依存関係をワイヤリングしてAPIサーバーを構築する。
// バックグラウンドのgoroutineは起動しない。
func newServer(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) *server {
	// 1. リポジトリの初期化
	creatorRepo := repository.NewPostgresCreatorRepo(db)
	subRepo := repository.NewPostgresSubscriptionRepo(db)
	viewRepo := repository.NewPostgresEmailViewRepo(db)
	pageViewRepo := repository.NewPostgresPageViewRepo(db)
	campaignRepo := repository.NewPostgresCampaignRepo(db)
	convRepo := repository.NewPostgresConversationRepo(db)
	msgRepo := repository.NewPostgresMessageRepo(db)

	// 2. 横断的なサービスの初期化
	mc := metrics.NewCollector(reg)
	sanitizer := security.NewSanitizer()
	ssrfGuard := security.NewSSRFGuard()

	// 3. 認証
	events := auth.NewEvents()
	provider := auth.NewProviderClient(
		&http.Client{Timeout: cfg.BackendTimeout},
		slog.Default(),
		auth.ProviderConfig{BaseURL: cfg.AuthURL, AnonKey: cfg.AuthAnonKey},
	)
	verifier := auth.NewVerifier([]byte(cfg.AuthJWTSecret), time.Now)
	authService := auth.NewService(provider, verifier, events, auth.ServiceConfig{BaseURL: cfg.BaseURL})

	// 4. ペイウォールと購読
	var pageViews paywall.PageViewStore
	if cfg.PaywallPersist {
		pageViews = paywall.NewPostgresStore(pageViewRepo)
	} else {
		pageViews = paywall.NewMemoryStore()
	}
	subService := subscription.NewService(subRepo, viewRepo, creatorRepo, pageViews)
	counter := paywall.NewCounter(subService, pageViews, cfg.PaywallFreePages)

	// 5. ドメインサービスの初期化
	revealService := reveal.NewService(viewRepo, creatorRepo, subService, mc, cfg.BackendTimeout)

	registry := creator.NewRegistry(cfg.SearchCacheTTL, time.Now)
	creatorService := creator.NewService(creatorRepo, registry, mc, creator.Config{
		GridPageSize: cfg.SearchGridPageSize,
		ListPageSize: cfg.SearchListPageSize,
		Debounce:     cfg.SearchDebounce,
		Timeout:      cfg.BackendTimeout,
	})
	// サインアウト時は利用者の検索キャッシュを破棄する
	events.Subscribe(creatorService.HandleAuthEvent)

	mediaKitService := creator.NewMediaKitService(creatorRepo)
	avatarProxy := creator.NewAvatarProxy(creatorRepo, ssrfGuard, cfg.BackendTimeout, cfg.AvatarMaxSize)

	campaignService := campaign.NewService(campaignRepo, sanitizer)
	messageService := message.NewService(convRepo, msgRepo, creatorRepo, sanitizer)
	dashboardService := dashboard.NewService(campaignRepo, viewRepo, subService, messageService)

	// 6. ルーターの構築
	limiter := middleware.NewRateLimiter(middleware.PerMinuteConfig(cfg.RateLimitGeneral, cfg.RateLimitReveal))
	gate := middleware.NewSessionGate(authService, middleware.CookieConfig{
		Secure: cfg.CookieSecure,
		Domain: cfg.CookieDomain,
		MaxAge: time.Duration(cfg.SessionMaxAge) * time.Second,
	})

	deps := &handler.RouterDeps{
		Gate:              gate,
		PageGate:          counter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: limiter,
		Logger:      slog.Default(),

		HealthChecker: db,
		Metrics:       mc,
		Gatherer:      reg,
		StaticDir:     cfg.StaticDir,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:      cfg.BaseURL,
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},

		SubscriptionService: subService,
		RevealService:       revealService,

		CreatorService:  creatorService,
		MediaKitService: mediaKitService,
		AvatarFetcher:   avatarProxy,

		CampaignService:  campaignService,
		MessageService:   messageService,
		DashboardService: dashboardService,
	}

	return &server{
		handler:  handler.NewRouter(deps),
		searches: creatorService,
		limiter:  limiter,
		events:   events,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	srv := newServer(cfg, db, prometheus.NewRegistry())
	defer srv.limiter.Stop()

	// 検索キャッシュの期限切れエントリを定期的に掃除する
	if cfg.SearchCacheSweepInterval > 0 {
		go srv.searches.Start(ctx, cfg.SearchCacheSweepInterval)
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、ページ閲覧数のリセットジョブを実行する。
// ctxがキャンセルされるまでブロックする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.PaywallPersist {
		slog.Warn("PAYWALL_PERSIST is disabled; page views are kept in server memory and the reset job has no effect")
	}

	job := cleanup.NewCleanupJob(repository.NewPostgresPageViewRepo(db), slog.Default(), cfg.PaywallWindow)

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cleanupInterval),
		slog.Duration("paywall_window", cfg.PaywallWindow),
	)

	job.Start(ctx, cleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	status, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("from_version", uint64(status.From)),
		slog.Uint64("to_version", uint64(status.To)),
		slog.Bool("changed", status.Changed()),
	)
	return nil
}

func healthcheckURL(port string) string {
	return fmt.Sprintf("http://localhost:%s/health", port)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(target string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はログ出力用にデータベースURLのパスワードとクエリを伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	return u.Redacted()
}
