// Package app はアプリケーションの起動と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/availcal/internal/availability"
	"github.com/hitoshi/availcal/internal/calendar"
	"github.com/hitoshi/availcal/internal/config"
	"github.com/hitoshi/availcal/internal/database"
	"github.com/hitoshi/availcal/internal/handler"
	"github.com/hitoshi/availcal/internal/ics"
	"github.com/hitoshi/availcal/internal/logger"
	"github.com/hitoshi/availcal/internal/metrics"
	"github.com/hitoshi/availcal/internal/middleware"
	"github.com/hitoshi/availcal/internal/notify"
	"github.com/hitoshi/availcal/internal/repository"
	"github.com/hitoshi/availcal/internal/security"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
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
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandReconcile:
		return runReconcile(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. カレンダー定義の読み込み
	sanitizer := security.NewNameSanitizer()
	cal, err := config.LoadCalendar(cfg.CalendarConfigPath, sanitizer)
	if err != nil {
		return fmt.Errorf("failed to load calendar config: %w", err)
	}

	// 3. リポジトリとメトリクスの初期化
	repo := repository.NewPostgresAvailabilityRepo(db)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. 変更通知リスナーとドメインサービスの初期化
	listener := notify.NewListener(
		cfg.DatabaseURL,
		cfg.ListenerMinReconnect,
		cfg.ListenerMaxReconnect,
		slog.Default(),
	)

	svc := calendar.NewService(repo, cal, listener, collector, slog.Default(), cfg.DebounceWindow)

	// 5. 起動時の名前変更リコンサイル（冪等）
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()
	if err := svc.ReconcileRenames(startupCtx); err != nil {
		return fmt.Errorf("failed to reconcile renames: %w", err)
	}

	// 6. ICSインポートの初期化
	ssrfGuard := security.NewSSRFGuard()
	fetcher := ics.NewFetcher(ssrfGuard, availability.NewNormalizer(cal.YearBounds), cfg.ICSFetchTimeout)

	// 7. ルーターの構築（レート制限はreq/min設定をreq/secへ変換）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.WriteRate = rate.Limit(float64(cfg.RateLimitWrite) / 60.0)
	rateLimiterCfg.WriteBurst = cfg.RateLimitWrite
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		Collector:         collector,
		CalendarService:   svc,
		ICSFetcher:        fetcher,
		DBPinger:          db,
		Gatherer:          registry,
	})

	// 8. バックグラウンド処理の起動
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := listener.Start(ctx); err != nil {
			slog.Error("change listener stopped with error",
				slog.String("error", err.Error()),
			)
		}
	}()
	go svc.Start(ctx)

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// SSEストリーミングのためWriteTimeoutは設定しない
		IdleTimeout: 60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
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

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runReconcile は名前変更リコンサイルを単独で実行する。
// serve起動時にも同じ処理が行われるため、通常は不要だが、
// デプロイ前に移行結果だけを確認したい場合に使う。
func runReconcile(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sanitizer := security.NewNameSanitizer()
	cal, err := config.LoadCalendar(cfg.CalendarConfigPath, sanitizer)
	if err != nil {
		return fmt.Errorf("failed to load calendar config: %w", err)
	}

	repo := repository.NewPostgresAvailabilityRepo(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mapping := cal.RenameMapping()
	if len(mapping) == 0 {
		slog.Info("no rename mappings defined")
		return nil
	}

	if err := repo.ReconcileRenames(ctx, mapping); err != nil {
		return fmt.Errorf("failed to reconcile renames: %w", err)
	}

	slog.Info("rename reconciliation completed",
		slog.Int("mappings", len(mapping)),
	)
	return nil
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
