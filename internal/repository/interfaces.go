// Package repository はセッションデータの永続化を提供する。
package repository

import (
	"context"

	"github.com/hitoshi/paygate/internal/model"
)

// SessionRepository はセッションデータの永続化インターフェース。
// 同一キーに対する操作の原子性はストア側に委ね、クライアント側でロックは取らない。
type SessionRepository interface {
	// Get は指定IDのセッションを取得する。存在しないか期限切れの場合はnilを返す。
	Get(ctx context.Context, id string) (*model.Session, error)
	// Set はセッションを保存する。同一IDのレコードは上書きする。
	// レコードはsession.ExpiresAtまで保持される。
	Set(ctx context.Context, session *model.Session) error
	// Delete は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, id string) error
	// Ping はストアへの到達性を確認する。
	Ping(ctx context.Context) error
}

// cloneSession はストア外に渡すためのディープコピーを返す。
func cloneSession(s *model.Session) *model.Session {
	c := *s
	if s.Identity != nil {
		ident := *s.Identity
		ident.Emails = append([]string(nil), s.Identity.Emails...)
		ident.Photos = append([]string(nil), s.Identity.Photos...)
		c.Identity = &ident
	}
	c.IsNew = false
	return &c
}
