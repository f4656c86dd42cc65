// Package app はサブコマンドの起動と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/confman/internal/auth"
	"github.com/hitoshi/confman/internal/conference"
	"github.com/hitoshi/confman/internal/config"
	"github.com/hitoshi/confman/internal/database"
	"github.com/hitoshi/confman/internal/handler"
	"github.com/hitoshi/confman/internal/logger"
	"github.com/hitoshi/confman/internal/metrics"
	"github.com/hitoshi/confman/internal/middleware"
	"github.com/hitoshi/confman/internal/notify"
	"github.com/hitoshi/confman/internal/repository"
	"github.com/hitoshi/confman/internal/security"
	"github.com/hitoshi/confman/internal/worker/cleanup"
)

const (
	// shutdownTimeout はHTTPサーバーのグレースフルシャットダウンの待機上限。
	shutdownTimeout = 20 * time.Second
	// notifyDrainTimeout はキュー済み通知の配送を待つ上限。
	// HTTPの停止と合わせてコンテナの停止猶予（既定30秒）に収まるようにする。
	notifyDrainTimeout = 8 * time.Second
)

// 作成通知のディスパッチャーはカンファレンスサービスの通知先として使う。
var _ conference.CreationNotifier = (*notify.Dispatcher)(nil)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数の設定を読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
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

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, err
	}
	if err := database.Ping(db, cfg.StoreTimeout); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("database connection established")
	return db, nil
}

// newNotifier は設定に応じて通知の配送先を選ぶ。
// Webhook URLが未設定の場合は構造化ログに出力するだけの通知先を返す。
func newNotifier(cfg *config.Config) (notify.Notifier, error) {
	if cfg.NotifyWebhookURL == "" {
		return notify.NewLogNotifier(slog.Default()), nil
	}

	guard := security.NewURLGuard()
	if cfg.NotifyAllowPrivateIP {
		guard = security.NewPermissiveURLGuard()
	}
	if err := guard.ValidateURL(cfg.NotifyWebhookURL); err != nil {
		return nil, fmt.Errorf("invalid NOTIFY_WEBHOOK_URL: %w", err)
	}
	return notify.NewWebhookNotifier(cfg.NotifyWebhookURL, guard.NewSafeClient(cfg.NotifyTimeout)), nil
}

// server はserveモードで起動する部品一式。
type server struct {
	handler     http.Handler
	dispatcher  *notify.Dispatcher
	rateLimiter *middleware.RateLimiter
}

// close はバックグラウンド処理を停止する。
// キュー済みの通知はdrainTimeoutまで配送を待ち、それを過ぎたら打ち切る。
func (s *server) close(drainTimeout time.Duration) {
	s.rateLimiter.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := s.dispatcher.Shutdown(ctx); err != nil {
		slog.Warn("notification drain interrupted", slog.String("error", err.Error()))
	}
}

// newServer は全依存関係をワイヤリングしたHTTPハンドラーを構築する。
func newServer(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (*server, error) {
	// 1. リポジトリ
	confRepo := repository.NewPostgresConferenceRepo(db)
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 2. メトリクス
	collector := metrics.NewCollector(reg)

	// 3. 通知
	notifier, err := newNotifier(cfg)
	if err != nil {
		return nil, err
	}
	dispatcher := notify.NewDispatcher(userRepo, notifier, collector, notify.DispatcherConfig{
		QueueSize:   cfg.NotifyQueueSize,
		Workers:     cfg.NotifyWorkers,
		MaxAttempts: cfg.NotifyMaxAttempts,
		Timeout:     cfg.NotifyTimeout,
		RetryBase:   cfg.NotifyRetryBase,
		RatePerSec:  cfg.NotifyRatePerSec,
		BaseURL:     cfg.BaseURL,
		Logger:      slog.Default(),
	})

	// 4. ドメインサービス
	validator := conference.NewValidator(security.NewSanitizer(), security.NewURLGuard())
	confService := conference.NewService(confRepo, validator, dispatcher, collector, conference.ServiceConfig{
		StoreTimeout: cfg.StoreTimeout,
		Logger:       slog.Default(),
	})
	authService := auth.NewService(userRepo, sessionRepo, auth.ServiceConfig{
		StoreTimeout: cfg.StoreTimeout,
		Logger:       slog.Default(),
	})

	// 5. ルーター
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitCreate),
	)
	router := handler.NewRouter(&handler.RouterDeps{
		Resolver:          authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:    rateLimiter,
		Logger:         slog.Default(),
		HealthChecker:  db,
		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),
		AuthService:    authService,
		AuthConfig: handler.AuthHandlerConfig{
			SessionCookieName: cfg.SessionCookieName,
			CookieDomain:      cfg.CookieDomain,
			CookieSecure:      cfg.CookieSecure,
		},
		ConferenceService: confService,
	})

	return &server{
		handler:     router,
		dispatcher:  dispatcher,
		rateLimiter: rateLimiter,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	srv, err := newServer(cfg, db, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	// 通知ワーカーはシグナルでは止めず、HTTPサーバーの停止後にcloseで期限付きで停止する
	srv.dispatcher.Start(context.WithoutCancel(ctx))
	defer srv.close(notifyDrainTimeout)

	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
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
// 期限切れセッションを定期的に削除し、ctxがキャンセルされるまでブロックする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	job := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default())
	job.Interval = cfg.SessionCleanupInterval

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", job.Interval),
	)
	job.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はすべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%s/health", port))
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
