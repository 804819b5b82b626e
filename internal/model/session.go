// Package model はドメインモデルを定義する。
package model

import "time"

// Identity はIdPのプロフィールから取得したログインユーザーの情報を表す。
//
// 値はIdPのレスポンスをそのまま写したもので、アプリケーション側では再検証しない。
// IdPをログインごとの信頼の起点とする設計のため、トークンの再検証や
// ローカルのユーザーテーブルとの突き合わせを追加しないこと。
type Identity struct {
	DisplayName    string   `json:"display_name"`
	Emails         []string `json:"emails"`
	Photos         []string `json:"photos"`
	Provider       string   `json:"provider"`
	ProviderUserID string   `json:"provider_user_id"`
}

// PrimaryEmail は先頭のメールアドレスを返す。未設定の場合は空文字を返す。
func (i *Identity) PrimaryEmail() string {
	if i == nil || len(i.Emails) == 0 {
		return ""
	}
	return i.Emails[0]
}

// Session はブラウザごとのサーバーサイドセッションを表す。
// Identityがnilのセッションは匿名セッションとして扱う。
type Session struct {
	ID            string    `json:"id"`
	Identity      *Identity `json:"identity,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastWrittenAt time.Time `json:"last_written_at"`
	ExpiresAt     time.Time `json:"expires_at"`

	// IsNew はストアに未保存のセッションであることを示す。永続化はしない。
	IsNew bool `json:"-"`
}

// Authenticated はセッションにログイン済みのIdentityが紐付いているかを返す。
func (s *Session) Authenticated() bool {
	return s != nil && s.Identity != nil
}

// Expired は基準時刻の時点でセッションが期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
