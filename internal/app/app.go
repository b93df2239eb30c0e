package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/pitlog/internal/config"
	"github.com/hitoshi/pitlog/internal/database"
	"github.com/hitoshi/pitlog/internal/draft"
	"github.com/hitoshi/pitlog/internal/handler"
	"github.com/hitoshi/pitlog/internal/logbook"
	"github.com/hitoshi/pitlog/internal/logger"
	"github.com/hitoshi/pitlog/internal/metrics"
	"github.com/hitoshi/pitlog/internal/middleware"
	"github.com/hitoshi/pitlog/internal/repository"
	"github.com/hitoshi/pitlog/internal/review"
	"github.com/hitoshi/pitlog/internal/security"
	"github.com/hitoshi/pitlog/internal/spoiler"
	"github.com/hitoshi/pitlog/internal/stats"
	"github.com/hitoshi/pitlog/internal/weekend"
	"github.com/hitoshi/pitlog/internal/worker/reconcile"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしたうえで環境変数からConfigを読み込み、ログレベルを反映する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定に応じてログレベルを変更する
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to set log level: %w", err)
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
		slog.String("log_level", cfg.LogLevel),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandReconcile:
		return runReconcile(cfg)
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// repositories はPostgreSQLリポジトリ一式。
type repositories struct {
	authSessions *repository.PostgresAuthSessionRepo
	catalog      *repository.PostgresCatalogRepo
	logs         *repository.PostgresLogRepo
	reviews      *repository.PostgresReviewRepo
	experiences  *repository.PostgresExperienceRepo
	likes        *repository.PostgresLikeRepo
}

func newRepositories(db *sql.DB) *repositories {
	return &repositories{
		authSessions: repository.NewPostgresAuthSessionRepo(db),
		catalog:      repository.NewPostgresCatalogRepo(db),
		logs:         repository.NewPostgresLogRepo(db),
		reviews:      repository.NewPostgresReviewRepo(db),
		experiences:  repository.NewPostgresExperienceRepo(db),
		likes:        repository.NewPostgresLikeRepo(db),
	}
}

// buildRouterDeps はリポジトリからドメインサービスを組み立て、ルーターの依存関係を返す。
func buildRouterDeps(
	cfg *config.Config,
	repos *repositories,
	health handler.HealthChecker,
	collector *metrics.Collector,
	gatherer prometheus.Gatherer,
	rateLimiter *middleware.RateLimiter,
) *handler.RouterDeps {
	builder := draft.NewBuilder(repos.catalog, security.NewTextSanitizer(), cfg.SpoilerWindow)
	resolver := spoiler.NewResolver(repos.catalog, repos.logs, collector)

	logService := logbook.NewService(repos.catalog, repos.logs, repos.reviews, repos.experiences, builder, resolver, collector)
	weekendService := weekend.NewService(repos.catalog, repos.logs, builder, collector)
	reviewService := review.NewService(repos.catalog, repos.logs, repos.reviews, repos.likes, builder, resolver, collector)
	statsService := stats.NewService(repos.catalog, repos.logs)

	return &handler.RouterDeps{
		AuthSessions:      repos.authSessions,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		HTTPMetrics:       collector,

		HealthChecker:  health,
		MetricsHandler: metrics.Handler(gatherer),

		LogService:     logService,
		WeekendService: weekendService,
		ReviewService:  reviewService,
		Resolver:       resolver,
		StatsService:   statsService,
	}
}

// newRegistry はアプリケーションメトリクスとランタイムメトリクスを登録したレジストリを返す。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーといいね数の再計算ジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリ・メトリクス・レート制限の初期化
	repos := newRepositories(db)
	reg, collector := newRegistry()
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitWrite),
	)
	defer rateLimiter.Stop()

	// 3. ルーターの構築
	router := handler.NewRouter(buildRouterDeps(cfg, repos, db, collector, reg, rateLimiter))

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. いいね数の再計算ジョブをバックグラウンドで起動
	job := reconcile.NewJob(repos.likes, slog.Default())
	go job.Start(ctx, cfg.ReconcileInterval)

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.Duration("spoiler_window", cfg.SpoilerWindow),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
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
		if errors.Is(err, database.ErrDirtySchema) {
			slog.Error("schema is dirty; fix the failed migration and force the version before retrying",
				slog.Uint64("version", uint64(status.FromVersion)),
			)
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(status.ToVersion)),
		slog.Bool("applied", status.Applied()),
	)
	return nil
}

// runReconcile はいいね数の再計算を1回だけ実行する。
func runReconcile(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	return reconcile.NewJob(repository.NewPostgresLikeRepo(db), slog.Default()).Run(ctx)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
