package repository

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/hitoshi/paygate/internal/model"
)

// DefaultMemorySessionCapacity はメモリストアが保持するセッション数の上限。
const DefaultMemorySessionCapacity = 10000

// MemorySessionRepo はプロセス内メモリを使用したセッションリポジトリ。
// 永続ストアが未設定の開発環境向けのフォールバックで、再起動でデータは失われる。
// 上限を超えた場合は最も古いセッションから破棄する。
type MemorySessionRepo struct {
	cache *expirable.LRU[string, *model.Session]
	now   func() time.Time
}

// NewMemorySessionRepo はMemorySessionRepoを生成する。
// ttlは全エントリ共通の保持上限で、個々のセッションはExpiresAtでも判定する。
func NewMemorySessionRepo(capacity int, ttl time.Duration) *MemorySessionRepo {
	if capacity <= 0 {
		capacity = DefaultMemorySessionCapacity
	}
	return &MemorySessionRepo{
		cache: expirable.NewLRU[string, *model.Session](capacity, nil, ttl),
		now:   time.Now,
	}
}

// Get は指定IDのセッションのコピーを返す。存在しないか期限切れの場合はnilを返す。
func (r *MemorySessionRepo) Get(_ context.Context, id string) (*model.Session, error) {
	s, ok := r.cache.Get(id)
	if !ok {
		return nil, nil
	}
	if s.Expired(r.now()) {
		r.cache.Remove(id)
		return nil, nil
	}
	return cloneSession(s), nil
}

// Set はセッションのコピーを保存する。
func (r *MemorySessionRepo) Set(_ context.Context, session *model.Session) error {
	r.cache.Add(session.ID, cloneSession(session))
	return nil
}

// Delete は指定IDのセッションを削除する。
func (r *MemorySessionRepo) Delete(_ context.Context, id string) error {
	r.cache.Remove(id)
	return nil
}

// Ping は常に成功する。
func (r *MemorySessionRepo) Ping(_ context.Context) error {
	return nil
}

// Len は保持しているセッション数を返す。
func (r *MemorySessionRepo) Len() int {
	return r.cache.Len()
}

// compile-time interface check
var _ SessionRepository = (*MemorySessionRepo)(nil)
