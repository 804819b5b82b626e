package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/paygate/internal/config"
	"github.com/hitoshi/paygate/internal/database"
	"github.com/hitoshi/paygate/internal/metrics"
	"github.com/hitoshi/paygate/internal/model"
	"github.com/hitoshi/paygate/internal/repository"
	"github.com/hitoshi/paygate/internal/worker/cleanup"
)

// セッションストアのバックエンド名。
const (
	backendPostgres = "postgres"
	backendRedis    = "redis"
	backendMemory   = "memory"
)

const (
	storePingTimeout = 5 * time.Second
	memoryStoreSize  = 10000
)

// sessionStore は選択されたセッションストアと付随リソースをまとめたもの。
type sessionStore struct {
	repo    repository.SessionRepository
	backend string
	db      *sql.DB // backendPostgresのときのみ非nil
	closeFn func() error
}

// Close はストアの接続を閉じる。
func (s *sessionStore) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// cleanupJob は期限切れセッションの削除ジョブを返す。
// TTLを自前で管理しないPostgreSQLストア以外ではnilを返す。
func (s *sessionStore) cleanupJob(logger *slog.Logger) *cleanup.CleanupJob {
	if s.db == nil {
		return nil
	}
	return cleanup.NewCleanupJob(s.db, logger)
}

// backendFor はSESSION_STORE_URLのスキームからバックエンドを判定する。
// 空文字列はメモリストアを意味する。
func backendFor(storeURL string) (string, error) {
	if storeURL == "" {
		return backendMemory, nil
	}
	u, err := url.Parse(storeURL)
	if err != nil {
		return "", fmt.Errorf("invalid SESSION_STORE_URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return backendPostgres, nil
	case "redis", "rediss":
		return backendRedis, nil
	case "memory":
		return backendMemory, nil
	default:
		return "", fmt.Errorf("unsupported SESSION_STORE_URL scheme %q", u.Scheme)
	}
}

// openSessionStore は設定に応じたセッションストアに接続し、疎通を確認する。
// 接続できない場合、本番モードではmodel.ErrStoreUnavailableを返し、
// それ以外では警告を出してメモリストアにフォールバックする。
func openSessionStore(ctx context.Context, cfg *config.Config, collector metrics.MetricsCollector, logger *slog.Logger) (*sessionStore, error) {
	backend, err := backendFor(cfg.SessionStoreURL)
	if err != nil {
		return nil, err
	}

	ttl := cfg.SessionMaxAge + cfg.SessionTouchAfter
	if backend == backendMemory {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("%w: memory store is not allowed in production", model.ErrStoreUnavailable)
		}
		logger.Warn("using volatile in-memory session store")
		return newMemoryStore(ttl), nil
	}

	store, err := dialSessionStore(ctx, backend, cfg.SessionStoreURL)
	if err == nil {
		logger.Info("session store connected", slog.String("backend", backend))
		return store, nil
	}

	if cfg.IsProduction() {
		return nil, fmt.Errorf("%w: %s: %w", model.ErrStoreUnavailable, backend, err)
	}

	logger.Warn("session store unreachable, falling back to in-memory store",
		slog.String("backend", backend),
		slog.String("error", err.Error()),
	)
	if collector != nil {
		collector.RecordStoreFallback(backend)
	}
	return newMemoryStore(ttl), nil
}

func newMemoryStore(ttl time.Duration) *sessionStore {
	return &sessionStore{
		repo:    repository.NewMemorySessionRepo(memoryStoreSize, ttl),
		backend: backendMemory,
	}
}

// dialSessionStore は永続ストアに接続してPingする。失敗時は開いた接続を閉じる。
func dialSessionStore(ctx context.Context, backend, storeURL string) (*sessionStore, error) {
	var store *sessionStore

	switch backend {
	case backendPostgres:
		db, err := database.Open(storeURL)
		if err != nil {
			return nil, err
		}
		store = &sessionStore{
			repo:    repository.NewPostgresSessionRepo(db),
			backend: backendPostgres,
			db:      db,
			closeFn: db.Close,
		}
	case backendRedis:
		client, err := repository.NewRedisClient(storeURL)
		if err != nil {
			return nil, err
		}
		store = &sessionStore{
			repo:    repository.NewRedisSessionRepo(client),
			backend: backendRedis,
			closeFn: client.Close,
		}
	default:
		return nil, fmt.Errorf("unsupported session store backend %q", backend)
	}

	pingCtx, cancel := context.WithTimeout(ctx, storePingTimeout)
	defer cancel()
	if err := store.repo.Ping(pingCtx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
