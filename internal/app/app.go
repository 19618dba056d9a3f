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

	"github.com/hitoshi/rentcam/internal/auth"
	"github.com/hitoshi/rentcam/internal/booking"
	"github.com/hitoshi/rentcam/internal/config"
	"github.com/hitoshi/rentcam/internal/database"
	"github.com/hitoshi/rentcam/internal/equipment"
	"github.com/hitoshi/rentcam/internal/handler"
	"github.com/hitoshi/rentcam/internal/logger"
	"github.com/hitoshi/rentcam/internal/metrics"
	"github.com/hitoshi/rentcam/internal/middleware"
	"github.com/hitoshi/rentcam/internal/repository"
	"github.com/hitoshi/rentcam/internal/retry"
	"github.com/hitoshi/rentcam/internal/security"
	"github.com/hitoshi/rentcam/internal/telegram"
	"github.com/hitoshi/rentcam/internal/user"
	"github.com/hitoshi/rentcam/internal/verification"
	"github.com/hitoshi/rentcam/internal/worker/cleanup"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

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

	// 3. 設定に従ってログレベルを変更する
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if cmd == CommandHelp {
		if w == nil {
			w = os.Stdout
		}
		Usage(w)
		return nil
	}

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
		slog.String("app_url", cfg.AppURL),
		slog.String("signature_scheme", cfg.TelegramSignatureScheme),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// storeRetryPolicy は設定からストア呼び出しのリトライ方針を組み立てる。
func storeRetryPolicy(cfg *config.Config) retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = cfg.StoreRetryAttempts
	if cfg.StoreRetryBackoff > 0 {
		p.InitialBackoff = cfg.StoreRetryBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	return p
}

// repositories はPostgreSQLリポジトリ一式。
type repositories struct {
	users        *repository.PostgresUserRepo
	links        *repository.PostgresTelegramRepo
	verification *repository.PostgresVerificationRepo
	equipment    *repository.PostgresEquipmentRepo
	bookings     *repository.PostgresBookingRepo
}

// newRepositories はリポジトリを生成し、リトライ方針とリトライ計測を設定する。
func newRepositories(db *sql.DB, policy retry.Policy, collector metrics.MetricsCollector) *repositories {
	repos := &repositories{
		users:        repository.NewPostgresUserRepo(db),
		links:        repository.NewPostgresTelegramRepo(db),
		verification: repository.NewPostgresVerificationRepo(db),
		equipment:    repository.NewPostgresEquipmentRepo(db),
		bookings:     repository.NewPostgresBookingRepo(db),
	}

	observer := func(attempt int, err error) {
		collector.RecordStoreRetry(attempt)
		slog.Warn("retrying store call",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}
	repos.users.SetRetryPolicy(policy, observer)
	repos.links.SetRetryPolicy(policy, observer)
	repos.verification.SetRetryPolicy(policy, observer)
	repos.equipment.SetRetryPolicy(policy, observer)
	repos.bookings.SetRetryPolicy(policy, observer)
	return repos
}

// buildServer は全依存関係をワイヤリングしたHTTPハンドラーを返す。
// 返り値のcleanupはレートリミッターのバックグラウンド処理を停止する。
func buildServer(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (http.Handler, func(), error) {
	log := slog.Default()
	collector := metrics.NewCollector(reg)

	// 1. リポジトリ
	repos := newRepositories(db, storeRetryPolicy(cfg), collector)

	// 2. セキュリティ
	guard := security.NewURLGuard()
	sanitizer := security.NewTextSanitizer()

	// 3. Telegram
	verifier, err := telegram.NewVerifier(cfg.TelegramSignatureScheme, cfg.TelegramBotToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create signature verifier: %w", err)
	}
	botClient := telegram.NewClient(guard.NewSafeClient(cfg.TelegramAPITimeout), log, cfg.TelegramBotToken, cfg.TelegramAPIURL)
	botIDCache := telegram.NewBotIDCache(telegram.BotIDCacheConfig{
		TTL:     cfg.BotIDCacheTTL,
		MaxSize: cfg.BotIDCacheSize,
	})
	botInfo := telegram.NewBotInfoService(botClient, botIDCache, collector, log)
	botInfo.BotUsername = cfg.TelegramBotUsername

	// 4. ドメインサービス
	issuer, err := auth.NewSessionIssuer(auth.SessionConfig{
		Secret: cfg.SessionSecret,
		TTL:    time.Duration(cfg.SessionMaxAge) * time.Second,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session issuer: %w", err)
	}
	shadow := auth.NewShadowGenerator(cfg.ShadowEmailDomain, auth.NewArgon2Hasher())
	reconciler := auth.NewReconciler(repos.users, repos.links, shadow, sanitizer, log)
	authService := auth.NewService(verifier, reconciler, issuer, collector, log)

	verificationService := verification.NewService(repos.verification, repos.links, repos.users, log, verification.Config{
		WebCodeTTL: cfg.WebCodeTTL,
		BotCodeTTL: cfg.BotCodeTTL,
	})
	commands := telegram.NewCommandRouter(verificationService, botClient, collector, log, verificationService.BotCodeTTL())

	equipmentService := equipment.NewService(repos.equipment, repos.bookings, guard, sanitizer, log)
	bookingService := booking.NewService(repos.bookings, repos.equipment, sanitizer, log)
	userService := user.NewService(repos.users, sanitizer, log)

	// 5. ルーター
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin))

	deps := &handler.RouterDeps{
		Logger:         log,
		HTTPObserver:   collector,
		MetricsHandler: metrics.Handler(reg),
		HealthChecker:  db,

		SessionParser:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			AppURL:        cfg.AppURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		UpdateHandler:       commands,
		BotInfoService:      botInfo,
		VerificationService: verificationService,
		TelegramConfig: handler.TelegramHandlerConfig{
			AppURL:        cfg.AppURL,
			WebhookSecret: cfg.TelegramWebhookSecret,
		},

		EquipmentService: equipmentService,
		BookingService:   bookingService,
		UserService:      userService,
	}

	return handler.NewRouter(deps), rateLimiter.Stop, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	router, stopLimiter, err := buildServer(cfg, db, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer stopLimiter()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れの認証コードと放置されたpending連携をCLEANUP_INTERVALごとに削除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	collector := metrics.NewCollector(prometheus.NewRegistry())
	repos := newRepositories(db, storeRetryPolicy(cfg), collector)
	job := cleanup.NewCleanupJob(repos.verification, repos.links, collector, slog.Default())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
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

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
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

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
