// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/hitoshi/paygate/internal/metrics"
	"github.com/hitoshi/paygate/internal/middleware"
	"github.com/hitoshi/paygate/internal/model"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600 // 10分
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	BeginLogin(state string) string
	CompleteLogin(ctx context.Context, w http.ResponseWriter, current *model.Session, code string) (*model.Session, error)
	Logout(ctx context.Context, w http.ResponseWriter, session *model.Session) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	LandingURL   string // 匿名ユーザーとログイン失敗時のリダイレクト先
	ProfileURL   string // ログイン成功時のリダイレクト先
	CookieSecure bool
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	metrics metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。collectorはnilでもよい。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, collector metrics.MetricsCollector) *AuthHandler {
	if config.LandingURL == "" {
		config.LandingURL = "/"
	}
	if config.ProfileURL == "" {
		config.ProfileURL = "/profile"
	}
	return &AuthHandler{
		service: service,
		config:  config,
		metrics: collector,
	}
}

// LoginStart はIdPの認可画面へリダイレクトする。
// GET /auth/login-start
func (h *AuthHandler) LoginStart(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   oauthStateMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.BeginLogin(state), http.StatusFound)
}

// LoginCallback はIdPからのコールバックを処理する。
// 失敗時は理由をブラウザに返さず、ランディングページへリダイレクトする。
// GET /auth/login-callback?code=xxx&state=yyy
func (h *AuthHandler) LoginCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// stateクッキーは成否に関わらず削除
	stateCookie, cookieErr := r.Cookie(oauthStateCookie)
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 1. 同意拒否などIdP側のエラー
	if providerErr := query.Get("error"); providerErr != "" {
		slog.Warn("identity provider returned error",
			slog.String("provider_error", providerErr),
		)
		h.failLogin(w, r)
		return
	}

	// 2. stateの検証（CSRF対策）
	state := query.Get("state")
	if cookieErr != nil || state == "" ||
		subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(state)) != 1 {
		slog.Warn("oauth state mismatch")
		h.failLogin(w, r)
		return
	}

	current, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		slog.Error("session not found in request context")
		h.failLogin(w, r)
		return
	}

	// 3. 認可コードを交換してログイン
	if _, err := h.service.CompleteLogin(r.Context(), w, current, query.Get("code")); err != nil {
		slog.Error("login callback failed", slog.String("error", err.Error()))
		h.failLogin(w, r)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordLogin(metrics.ResultSuccess)
	}
	http.Redirect(w, r, h.config.ProfileURL, http.StatusFound)
}

// Logout はセッションを破棄してランディングページへリダイレクトする。
// GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		slog.Error("session not found in request context")
		middleware.WriteJSONError(w, http.StatusInternalServerError, model.MsgLogoutFailed)
		return
	}

	if err := h.service.Logout(r.Context(), w, session); err != nil {
		slog.Error("failed to logout", slog.String("error", err.Error()))
		middleware.WriteJSONError(w, http.StatusInternalServerError, model.MsgLogoutFailed)
		return
	}

	http.Redirect(w, r, h.config.LandingURL, http.StatusFound)
}

func (h *AuthHandler) failLogin(w http.ResponseWriter, r *http.Request) {
	if h.metrics != nil {
		h.metrics.RecordLogin(metrics.ResultFailure)
	}
	http.Redirect(w, r, h.config.LandingURL, http.StatusFound)
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
