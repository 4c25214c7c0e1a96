// Package app はアプリケーションの起動処理と依存関係のワイヤリングを行う。
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/deepdecrypt/decrypt-blog-engine/internal/cache"
	"github.com/deepdecrypt/decrypt-blog-engine/internal/config"
	"github.com/deepdecrypt/decrypt-blog-engine/internal/content"
	"github.com/deepdecrypt/decrypt-blog-engine/internal/database"
	"github.com/deepdecrypt/decrypt-blog-engine/internal/handler"
	"github.com/deepdecrypt/decrypt-blog-engine/internal/logger"
	"github.com/deepdecrypt/decrypt-blog-engine/internal/metrics"
	"github.com/deepdecrypt/decrypt-blog-engine/internal/middleware"
	"github.com/deepdecrypt/decrypt-blog-engine/internal/repository"
	"github.com/deepdecrypt/decrypt-blog-engine/internal/security"
	"github.com/deepdecrypt/decrypt-blog-engine/internal/subscriber"
)

// shutdownTimeout はグレースフルシャットダウンの最大待機時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, false)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 開発環境ではDEBUGログを有効にする
	if cfg.DevMode() {
		logger.SetupDefault(w, true)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
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
		slog.String("env", cfg.AppEnv),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL, cfg.DBMaxOpenConns)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Int("max_open_conns", cfg.DBMaxOpenConns),
	)

	// 2. コンテンツキャッシュ
	contentCache, closeCache := newContentCache(ctx, cfg)
	defer closeCache()

	// 3. レート制限（バックグラウンドのクリーンアップを停止してから終了する）
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitSubscribe),
	)
	defer rateLimiter.Stop()

	// 4. ルーターの構築
	router := newAPIHandler(cfg, db, prometheus.NewRegistry(), contentCache, rateLimiter)

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newAPIHandler はリポジトリ・サービス・メトリクスを構築し、ルーターを返す。
// regにはアプリケーション専用のPrometheusレジストリを渡す。
func newAPIHandler(
	cfg *config.Config,
	db *sql.DB,
	reg *prometheus.Registry,
	contentCache cache.Cache,
	rateLimiter *middleware.RateLimiter,
) http.Handler {
	// メトリクス
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// リポジトリ
	subscriberRepo := repository.NewPostgresSubscriberRepo(db)
	postRepo := repository.NewPostgresPostRepo(db)
	toolRepo := repository.NewPostgresToolRepo(db)

	// ドメインサービス
	subscriberService := subscriber.NewService(subscriberRepo, security.NewTextSanitizer(), collector)
	contentService := content.NewService(postRepo, toolRepo, contentCache, collector)

	return handler.NewRouter(&handler.RouterDeps{
		Logger:             slog.Default(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        rateLimiter,
		HTTPMetrics:        collector,

		DB:             db,
		MetricsHandler: metrics.Handler(reg),

		SubscriberService: subscriberService,
		ContentService:    contentService,

		DevMode: cfg.DevMode(),
	})
}

// newContentCache はREDIS_URLが設定されていればRedisキャッシュを返す。
// 未設定または接続できない場合はキャッシュなしで動作する。
// 戻り値の関数でRedis接続を閉じる。
func newContentCache(ctx context.Context, cfg *config.Config) (cache.Cache, func()) {
	if cfg.RedisURL == "" {
		slog.Info("content cache disabled")
		return cache.Noop{}, func() {}
	}

	client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Warn("content cache unavailable, continuing without cache",
			slog.String("error", err.Error()),
		)
		return cache.Noop{}, func() {}
	}

	slog.Info("content cache enabled",
		slog.Duration("ttl", cfg.ContentCacheTTL),
	)
	redisCache := cache.NewRedisCache(client, cfg.ContentCacheTTL)
	return cache.NewBreakerCache(redisCache, cache.DefaultBreakerConfig()), func() {
		if err := client.Close(); err != nil {
			slog.Warn("failed to close redis client", slog.String("error", err.Error()))
		}
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
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
// URLとして解析できない場合は全体をマスクする。
func maskDatabaseURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
