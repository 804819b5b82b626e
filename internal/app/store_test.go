package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/hitoshi/paygate/internal/config"
	"github.com/hitoshi/paygate/internal/model"
)

// mockCollector はmetrics.MetricsCollectorのモック。
type mockCollector struct {
	fallbacks []string
}

func (m *mockCollector) RecordLogin(string)                 {}
func (m *mockCollector) RecordOrder(string)                 {}
func (m *mockCollector) RecordVerification(string)          {}
func (m *mockCollector) RecordHTTPStatus(int)               {}
func (m *mockCollector) RecordGatewayLatency(time.Duration) {}
func (m *mockCollector) RecordStoreFallback(backend string) {
	m.fallbacks = append(m.fallbacks, backend)
}

func testStoreConfig(env, storeURL string) *config.Config {
	return &config.Config{
		AppEnv:            env,
		SessionStoreURL:   storeURL,
		SessionMaxAge:     24 * time.Hour,
		SessionTouchAfter: 24 * time.Hour,
	}
}

func TestBackendFor(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"", backendMemory, false},
		{"memory://", backendMemory, false},
		{"postgres://u:p@localhost:5432/db", backendPostgres, false},
		{"postgresql://localhost/db", backendPostgres, false},
		{"redis://localhost:6379/0", backendRedis, false},
		{"rediss://localhost:6380", backendRedis, false},
		{"REDIS://localhost:6379", backendRedis, false},
		{"mysql://localhost/db", "", true},
		{"://bad", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := backendFor(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("backendFor(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("backendFor(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestOpenSessionStore_EmptyURL_UsesMemoryInDevelopment(t *testing.T) {
	var buf bytes.Buffer
	collector := &mockCollector{}

	store, err := openSessionStore(context.Background(), testStoreConfig("development", ""), collector, slog.New(slog.NewJSONHandler(&buf, nil)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()

	if store.backend != backendMemory {
		t.Errorf("backend = %q, want memory", store.backend)
	}
	if store.cleanupJob(slog.Default()) != nil {
		t.Error("memory store should not have a cleanup job")
	}
	if !strings.Contains(buf.String(), "WARN") {
		t.Errorf("expected a warning about the volatile store, got %s", buf.String())
	}
	if len(collector.fallbacks) != 0 {
		t.Errorf("fallbacks = %v, want none for an unset URL", collector.fallbacks)
	}
}

func TestOpenSessionStore_MemoryRejectedInProduction(t *testing.T) {
	_, err := openSessionStore(context.Background(), testStoreConfig(config.EnvProduction, "memory://"), &mockCollector{}, slog.Default())
	if !errors.Is(err, model.ErrStoreUnavailable) {
		t.Errorf("error = %v, want ErrStoreUnavailable", err)
	}
}

func TestOpenSessionStore_Redis_Connects(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := openSessionStore(context.Background(), testStoreConfig(config.EnvProduction, "redis://"+mr.Addr()), &mockCollector{}, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()

	if store.backend != backendRedis {
		t.Errorf("backend = %q, want redis", store.backend)
	}
	if err := store.repo.Ping(context.Background()); err != nil {
		t.Errorf("Ping() = %v", err)
	}
}

func TestOpenSessionStore_Unreachable_FallsBackInDevelopment(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		backend string
	}{
		{"redis", "redis://127.0.0.1:1/0", backendRedis},
		{"postgres", "postgres://u:p@127.0.0.1:1/db?sslmode=disable", backendPostgres},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := &mockCollector{}
			store, err := openSessionStore(context.Background(), testStoreConfig("development", tt.url), collector, slog.Default())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer store.Close()

			if store.backend != backendMemory {
				t.Errorf("backend = %q, want memory", store.backend)
			}
			if len(collector.fallbacks) != 1 || collector.fallbacks[0] != tt.backend {
				t.Errorf("fallbacks = %v, want [%s]", collector.fallbacks, tt.backend)
			}
		})
	}
}

func TestOpenSessionStore_Unreachable_FailsInProduction(t *testing.T) {
	collector := &mockCollector{}
	_, err := openSessionStore(context.Background(), testStoreConfig(config.EnvProduction, "redis://127.0.0.1:1/0"), collector, slog.Default())
	if !errors.Is(err, model.ErrStoreUnavailable) {
		t.Errorf("error = %v, want ErrStoreUnavailable", err)
	}
	if len(collector.fallbacks) != 0 {
		t.Errorf("fallbacks = %v, want none in production", collector.fallbacks)
	}
}

func TestOpenSessionStore_UnsupportedScheme(t *testing.T) {
	if _, err := openSessionStore(context.Background(), testStoreConfig("development", "mysql://localhost/db"), &mockCollector{}, slog.Default()); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}
