package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/paygate/internal/metrics"
	"github.com/hitoshi/paygate/internal/middleware"
	"github.com/hitoshi/paygate/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Sessions          middleware.SessionResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	HSTS              bool

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 決済
	PaymentBroker       PaymentBrokerInterface
	ExposeGatewayErrors bool

	// 運用
	HealthChecker  Pinger
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders
//
// 認証とプロフィールのルートにはSessionを、/api/paymentにはCORSとRateLimit(Payment)を適用する。
// 決済APIと運用ルートはセッションストアに依存しない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteRouteError(w, http.StatusNotFound, model.MsgRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteRouteError(w, http.StatusMethodNotAllowed, model.MsgMethodNotAllowed)
	})

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.Metrics)
	profileHandler := NewProfileHandler(deps.AuthConfig.LandingURL)
	paymentHandler := NewPaymentHandler(deps.PaymentBroker, deps.ExposeGatewayErrors)

	// --- 運用ルート（セッション不要） ---
	if deps.HealthChecker != nil {
		r.Get("/healthz", NewHealthHandler(deps.HealthChecker))
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- セッションを解決するルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Sessions))

		// 認証ルート（OAuthフロー）
		r.Get("/auth/login-start", authHandler.LoginStart)
		r.Get("/auth/login-callback", authHandler.LoginCallback)
		r.Get("/logout", authHandler.Logout)
		r.Get("/profile", profileHandler.Profile)
	})

	// --- 決済API（セッション不要） ---
	r.Route("/api/payment", func(r chi.Router) {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.PaymentMiddleware())
		}

		r.Get("/key", paymentHandler.GetKey)
		r.Post("/order", paymentHandler.CreateOrder)
		r.Post("/verify", paymentHandler.VerifyPayment)
	})

	return r
}
