// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/paygate/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストにセッションを格納するためのキー。
var sessionContextKey = contextKey("session")

// SessionResolver はセッションの解決と延長に必要なインターフェース。
// session.Managerの部分集合として定義する。
type SessionResolver interface {
	Resolve(r *http.Request) (*model.Session, error)
	Touch(ctx context.Context, w http.ResponseWriter, s *model.Session) error
}

// NewSessionMiddleware はCookieからセッションを解決し、
// リクエストコンテキストに注入するミドルウェアを返す。
// 匿名リクエストもそのまま通し、認可の判断は各ハンドラーに委ねる。
// ストアに到達できない場合は500を返す。
func NewSessionMiddleware(resolver SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. セッションを解決
			session, err := resolver.Resolve(r)
			if err != nil {
				slog.Error("failed to resolve session",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			// 2. 保存済みセッションの有効期限を延長
			if err := resolver.Touch(r.Context(), w, session); err != nil {
				slog.Error("failed to touch session",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			// 3. セッションをコンテキストに注入
			markAuthenticated(r.Context(), session.Authenticated())
			ctx := ContextWithSession(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(*model.Session)
	return session, ok && session != nil
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}
