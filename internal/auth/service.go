// Package auth はIdPへの委譲ログインとログイン状態の遷移を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/paygate/internal/model"
)

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、プロフィールを取得する。
	ExchangeCode(ctx context.Context, code string) (*model.Identity, error)
}

// SessionStore はログイン状態の遷移に必要なセッション操作。
// session.Managerの部分集合として定義する。
type SessionStore interface {
	Regenerate(ctx context.Context, s *model.Session) (*model.Session, error)
	Save(ctx context.Context, w http.ResponseWriter, s *model.Session) error
	Destroy(ctx context.Context, w http.ResponseWriter, s *model.Session) error
}

// Service はログインとログアウトの状態遷移を提供する。
//
//	Anonymous → Redirected → Authenticated
//	                       ↘ Failed（匿名のまま）
//	Authenticated → Logout → Anonymous
type Service struct {
	oauth    OAuthProvider
	sessions SessionStore
}

// NewService はServiceを生成する。
func NewService(oauth OAuthProvider, sessions SessionStore) *Service {
	return &Service{
		oauth:    oauth,
		sessions: sessions,
	}
}

// BeginLogin はIdPの認可画面へのURLを返す。
func (s *Service) BeginLogin(state string) string {
	return s.oauth.GetLoginURL(state)
}

// CompleteLogin は認可コードをプロフィールに交換し、ログイン済みセッションを発行する。
// セッションIDはログインのたびに再生成する。
// 交換に失敗した場合はmodel.ErrProviderExchangeFailedを、
// セッションの保存に失敗した場合はmodel.ErrStoreUnavailableを返す。
// いずれの場合も現在のセッションは変更しない。
func (s *Service) CompleteLogin(ctx context.Context, w http.ResponseWriter, current *model.Session, code string) (*model.Session, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code is empty", model.ErrProviderExchangeFailed)
	}

	// 1. 認可コードをプロフィールに交換
	identity, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrProviderExchangeFailed, err)
	}

	// 2. セッション固定攻撃対策としてIDを再生成
	session, err := s.sessions.Regenerate(ctx, current)
	if err != nil {
		return nil, fmt.Errorf("failed to regenerate session: %w", err)
	}

	// 3. Identityを紐付けて保存
	session.Identity = identity
	if err := s.sessions.Save(ctx, w, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	slog.Info("user logged in",
		slog.String("provider", identity.Provider),
		slog.String("provider_user_id", identity.ProviderUserID),
	)
	return session, nil
}

// CurrentIdentity はセッションに紐付くIdentityを返す。匿名の場合はfalseを返す。
func (s *Service) CurrentIdentity(session *model.Session) (*model.Identity, bool) {
	if !session.Authenticated() {
		return nil, false
	}
	return session.Identity, true
}

// Logout はIdentityを外し、セッションを破棄する。
// 匿名セッションに対しても成功する。
func (s *Service) Logout(ctx context.Context, w http.ResponseWriter, session *model.Session) error {
	if session == nil {
		return errors.New("session is required")
	}
	wasAuthenticated := session.Authenticated()
	session.Identity = nil

	if err := s.sessions.Destroy(ctx, w, session); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}

	if wasAuthenticated {
		slog.Info("user logged out")
	}
	return nil
}
