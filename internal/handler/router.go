package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/rentcam/internal/middleware"
	"github.com/hitoshi/rentcam/internal/model"
)

// healthCheckTimeout はヘルスチェックでDBへ疎通確認する際のタイムアウト。
const healthCheckTimeout = 3 * time.Second

// HealthChecker はDB接続の疎通確認を行う。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 共通
	Logger         *slog.Logger
	HTTPObserver   middleware.HTTPObserver
	MetricsHandler http.Handler
	HealthChecker  HealthChecker

	// ミドルウェア依存
	SessionParser     middleware.SessionParser
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// Telegram
	UpdateHandler       UpdateHandler
	BotInfoService      BotInfoServiceInterface
	VerificationService VerificationServiceInterface
	TelegramConfig      TelegramHandlerConfig

	// 機材・予約・プロフィール
	EquipmentService EquipmentServiceInterface
	BookingService   BookingServiceInterface
	UserService      UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// 全ルート共通のミドルウェアスタック:
//
//	RealIP → Recovery → Logging → SecurityHeaders → CORS
//
// 認証が必要なルートはさらに Auth → RateLimit(General) → CSRF を通る。
// ログインとコールバックにはCSRF検証を適用せず、ログイン専用のレート制限のみ適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.HTTPObserver))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authMW := middleware.NewAuthMiddleware(deps.SessionParser)
	csrfMW := middleware.NewCSRFMiddleware(deps.CSRFConfig)
	general := deps.RateLimiter.GeneralMiddleware()
	staffOnly := middleware.RequireRole(model.RoleAdmin, model.RoleManager)

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	telegramHandler := NewTelegramHandler(deps.UpdateHandler, deps.BotInfoService, deps.VerificationService, deps.TelegramConfig)
	equipmentHandler := NewEquipmentHandler(deps.EquipmentService)
	bookingHandler := NewBookingHandler(deps.BookingService)
	userHandler := NewUserHandler(deps.UserService)

	// --- 運用 ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 認証 ---
	r.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.LoginMiddleware())
			r.Post("/telegram", authHandler.Login)
			r.Get("/telegram-callback", authHandler.Callback)
			r.Get("/telegram-redirect", authHandler.Callback)
			r.Get("/telegram-cancel", authHandler.Cancel)
		})

		r.With(csrfMW).Post("/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(authMW, general, csrfMW)
			r.Post("/telegram/link", authHandler.Link)
			r.Delete("/telegram/disconnect", authHandler.Disconnect)
		})
	})

	// --- Telegram ---
	r.Route("/api/telegram", func(r chi.Router) {
		r.With(deps.RateLimiter.WebhookMiddleware()).Post("/webhook", telegramHandler.Webhook)
		r.With(general).Get("/bot-info", telegramHandler.BotInfo)

		r.Group(func(r chi.Router) {
			r.Use(authMW, general, csrfMW)
			r.With(middleware.RequireRole(model.RoleAdmin)).Post("/setup", telegramHandler.SetupWebhook)
			r.Get("/verification", telegramHandler.VerificationStatus)
			r.Post("/verification", telegramHandler.IssueCode)
			r.Post("/verification/confirm", telegramHandler.ConfirmCode)
		})
	})

	// --- 機材 ---
	r.Route("/api/equipment", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(general)
			r.Get("/", equipmentHandler.List)
			r.Get("/{id}", equipmentHandler.Get)
		})

		r.Group(func(r chi.Router) {
			r.Use(authMW, general, csrfMW, staffOnly)
			r.Post("/", equipmentHandler.Create)
			r.Patch("/{id}", equipmentHandler.Update)
			r.Delete("/{id}", equipmentHandler.Delete)
		})
	})

	// --- 予約 ---
	r.Route("/api/bookings", func(r chi.Router) {
		r.Use(authMW, general, csrfMW)
		r.Get("/", bookingHandler.List)
		r.Post("/", bookingHandler.Create)
		r.Get("/{id}", bookingHandler.Get)
		r.Patch("/{id}", bookingHandler.Update)
		r.Delete("/{id}", bookingHandler.Delete)
	})

	// --- プロフィール ---
	r.Route("/api/profile", func(r chi.Router) {
		r.Use(authMW, general, csrfMW)
		r.Get("/", userHandler.GetProfile)
		r.Patch("/", userHandler.UpdateProfile)
	})

	return r
}

// healthHandler はDBへの疎通を確認するヘルスチェックを返す。checkerがnilの場合は常に200。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewInternalError())
				return
			}
		}
		writeData(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
