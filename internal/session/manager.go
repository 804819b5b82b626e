// Package session はブラウザごとのサーバーサイドセッションの発行・永続化・破棄を提供する。
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/hitoshi/paygate/internal/model"
	"github.com/hitoshi/paygate/internal/repository"
)

// DefaultCookieName はセッションCookieの名前。
const DefaultCookieName = "session_id"

// Config はセッションマネージャーの設定。
type Config struct {
	Secret       string        // Cookie署名用のシークレット
	MaxAge       time.Duration // Cookieの有効期間（スライディング）
	TouchAfter   time.Duration // ストアを再書き込みするまでの最小間隔
	CookieSecure bool
	CookieName   string
}

// Manager はセッションの解決、保存、延長、破棄を行う。
// Cookieには署名済みのセッションIDのみを格納し、本体はストアに保存する。
type Manager struct {
	store  repository.SessionRepository
	codec  *securecookie.SecureCookie
	config Config
	now    func() time.Time
}

// NewManager はManagerを生成する。
func NewManager(store repository.SessionRepository, config Config) *Manager {
	if config.CookieName == "" {
		config.CookieName = DefaultCookieName
	}
	if config.MaxAge <= 0 {
		config.MaxAge = 24 * time.Hour
	}
	if config.TouchAfter <= 0 {
		config.TouchAfter = config.MaxAge
	}

	// シークレットの長さに関わらずHMAC鍵を64バイトに揃える
	hashKey := sha512.Sum512([]byte(config.Secret))
	codec := securecookie.New(hashKey[:], nil)
	codec.MaxAge(int(config.MaxAge / time.Second))

	return &Manager{
		store:  store,
		codec:  codec,
		config: config,
		now:    time.Now,
	}
}

// Resolve はリクエストのCookieからセッションを解決する。
// Cookieがない、署名が不正、ストアに存在しない、期限切れのいずれかの場合は
// 新しい匿名セッションを返す。新しいセッションは変更されるまで保存しない。
// ストアに到達できない場合はmodel.ErrStoreUnavailableを返す。
func (m *Manager) Resolve(r *http.Request) (*model.Session, error) {
	if id, ok := m.readCookie(r); ok {
		s, err := m.store.Get(r.Context(), id)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
		}
		if s != nil && !s.Expired(m.now()) {
			return s, nil
		}
	}
	return m.newSession()
}

// Save はセッションをストアに保存し、Cookieを発行する。
// セッションを変更した場合にのみ呼び出す。
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *model.Session) error {
	now := m.now()
	s.LastWrittenAt = now
	// 遅延書き込みの間隔分だけストア上の保持期間を延ばし、
	// 利用中のセッションがCookieより先に消えないようにする
	s.ExpiresAt = now.Add(m.config.MaxAge + m.config.TouchAfter)

	if err := m.store.Set(ctx, s); err != nil {
		return fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	s.IsNew = false

	return m.writeCookie(w, s.ID)
}

// Touch は保存済みセッションの有効期限を延長する。
// Cookieは毎回再発行するが、ストアの再書き込みは最後の書き込みから
// TouchAfter以上経過した場合のみ行う。未保存のセッションには何もしない。
func (m *Manager) Touch(ctx context.Context, w http.ResponseWriter, s *model.Session) error {
	if s == nil || s.IsNew {
		return nil
	}
	if m.now().Sub(s.LastWrittenAt) >= m.config.TouchAfter {
		return m.Save(ctx, w, s)
	}
	return m.writeCookie(w, s.ID)
}

// Regenerate は旧セッションを破棄し、新しいIDの匿名セッションを返す。
// ログイン時のセッション固定攻撃対策に使用する。返したセッションは未保存。
func (m *Manager) Regenerate(ctx context.Context, s *model.Session) (*model.Session, error) {
	if s != nil && !s.IsNew {
		if err := m.store.Delete(ctx, s.ID); err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
		}
	}
	return m.newSession()
}

// Destroy はストア上のセッションを削除し、クライアントにCookieの破棄を指示する。
// ストアの削除に失敗した場合もCookieは破棄し、エラーを返す。
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *model.Session) error {
	m.clearCookie(w)
	if s == nil || s.IsNew {
		return nil
	}
	if err := m.store.Delete(ctx, s.ID); err != nil {
		return fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	return nil
}

// Ping はセッションストアへの到達性を確認する。
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

func (m *Manager) newSession() (*model.Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}
	now := m.now()
	return &model.Session{
		ID:        id,
		CreatedAt: now,
		IsNew:     true,
	}, nil
}

func (m *Manager) readCookie(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(m.config.CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	var id string
	if err := m.codec.Decode(m.config.CookieName, cookie.Value, &id); err != nil {
		return "", false
	}
	return id, id != ""
}

func (m *Manager) writeCookie(w http.ResponseWriter, id string) error {
	encoded, err := m.codec.Encode(m.config.CookieName, id)
	if err != nil {
		return fmt.Errorf("failed to encode session cookie: %w", err)
	}
	m.setCookie(w, &http.Cookie{
		Name:     m.config.CookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(m.config.MaxAge / time.Second),
		Expires:  m.now().Add(m.config.MaxAge),
		HttpOnly: true,
		Secure:   m.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	m.setCookie(w, &http.Cookie{
		Name:     m.config.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// setCookie は同名のSet-Cookieヘッダーを置き換えてからCookieを設定する。
func (m *Manager) setCookie(w http.ResponseWriter, cookie *http.Cookie) {
	prefix := cookie.Name + "="
	existing := w.Header().Values("Set-Cookie")
	kept := existing[:0:0]
	for _, v := range existing {
		if !strings.HasPrefix(v, prefix) {
			kept = append(kept, v)
		}
	}
	w.Header().Del("Set-Cookie")
	for _, v := range kept {
		w.Header().Add("Set-Cookie", v)
	}
	http.SetCookie(w, cookie)
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
