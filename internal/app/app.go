// Package app はpaygateの起動処理と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/paygate/internal/auth"
	"github.com/hitoshi/paygate/internal/config"
	"github.com/hitoshi/paygate/internal/database"
	"github.com/hitoshi/paygate/internal/handler"
	"github.com/hitoshi/paygate/internal/logger"
	"github.com/hitoshi/paygate/internal/metrics"
	"github.com/hitoshi/paygate/internal/middleware"
	"github.com/hitoshi/paygate/internal/payment"
	"github.com/hitoshi/paygate/internal/session"
	"github.com/hitoshi/paygate/internal/worker/cleanup"
)

// shutdownTimeout は処理中リクエストの完了を待つ最大時間。
const shutdownTimeout = 30 * time.Second

// backgroundJob はサーバーと並行して実行する定期ジョブ。
type backgroundJob interface {
	RunLoop(ctx context.Context) error
}

// Init はアプリケーションの初期化を行う。
// 本番モード以外では.envファイルを読み込み、環境変数からConfigを生成して
// JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "info")

	// 2. 開発時のみ.envを読み込む。既に設定済みの環境変数は上書きしない
	if !strings.EqualFold(os.Getenv("APP_ENV"), config.EnvProduction) {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to load .env file", slog.String("error", err.Error()))
		}
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		var missing *config.MissingError
		if errors.As(err, &missing) {
			slog.Error("missing required configuration", slog.Any("variables", missing.Names))
		}
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("env", cfg.AppEnv),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandCleanup:
		return runCleanup(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// セッションストアに接続し、全依存関係をワイヤリングしてHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 2. セッションストア
	store, err := openSessionStore(ctx, cfg, collector, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.Close()

	// 3. ルーター
	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitPayment))
	defer limiter.Stop()

	deps := newRouterDeps(cfg, store, collector, registry, limiter)
	server := &http.Server{
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", ":"+cfg.ServerPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", cfg.ServerPort, err)
	}

	var job backgroundJob
	if j := store.cleanupJob(slog.Default()); j != nil {
		j.Interval = cfg.SessionCleanupInterval
		job = j
	}

	if err := serve(ctx, server, ln, job); err != nil {
		return err
	}
	slog.Info("API server stopped gracefully")
	return nil
}

// newRouterDeps は設定と接続済みのセッションストアからルーターの依存関係を組み立てる。
func newRouterDeps(
	cfg *config.Config,
	store *sessionStore,
	collector *metrics.Collector,
	gatherer prometheus.Gatherer,
	limiter *middleware.RateLimiter,
) *handler.RouterDeps {
	sessions := session.NewManager(store.repo, session.Config{
		Secret:       cfg.SessionSecret,
		MaxAge:       cfg.SessionMaxAge,
		TouchAfter:   cfg.SessionTouchAfter,
		CookieSecure: cfg.CookieSecure(),
	})

	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleCallbackURL,
		Timeout:      cfg.ProviderTimeout,
	})

	gateway := payment.NewRazorpayClient(payment.RazorpayConfig{
		KeyID:     cfg.RazorpayKeyID,
		KeySecret: cfg.RazorpayKeySecret,
		BaseURL:   cfg.RazorpayAPIURL,
		Timeout:   cfg.GatewayTimeout,
	}, slog.Default())

	return &handler.RouterDeps{
		Logger:            slog.Default(),
		Sessions:          sessions,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		HSTS:              cfg.CookieSecure(),

		AuthService: auth.NewService(oauthProvider, sessions),
		AuthConfig: handler.AuthHandlerConfig{
			LandingURL:   cfg.LandingURL,
			ProfileURL:   cfg.ProfileURL,
			CookieSecure: cfg.CookieSecure(),
		},

		PaymentBroker:       payment.NewBroker(gateway, cfg.RazorpayKeyID, cfg.RazorpayKeySecret, collector),
		ExposeGatewayErrors: !cfg.IsProduction(),

		HealthChecker:  sessions,
		Metrics:        collector,
		MetricsHandler: metrics.Handler(gatherer),
	}
}

// serve はHTTPサーバーと定期ジョブを1つのerrgroupで実行する。
// ctxのキャンセル、リスナーの失敗、ジョブの失敗またはpanicのいずれかで全体を停止し、
// 処理中のリクエストをshutdownTimeoutまで待ってから返る。
func serve(ctx context.Context, server *http.Server, ln net.Listener, job backgroundJob) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	if job != nil {
		g.Go(func() (err error) {
			// ジョブ内のpanicはプロセスを落とさず、サーバーを停止させる
			defer func() {
				if p := recover(); p != nil {
					slog.Error("background job panicked", slog.Any("panic", p))
					err = fmt.Errorf("background job panicked: %v", p)
				}
			}()
			return job.RunLoop(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// runMigrate はセッションテーブルのマイグレーションを実行する。
// PostgreSQLストア以外ではマイグレーションは不要なためエラーを返す。
func runMigrate(cfg *config.Config) error {
	if err := requirePostgres(cfg); err != nil {
		return err
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.SessionStoreURL)),
	)
	if err := database.RunMigrations(cfg.SessionStoreURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runCleanup は期限切れセッションの削除を1回だけ実行する。
// cronなど外部スケジューラからの起動を想定している。
func runCleanup(cfg *config.Config) error {
	if err := requirePostgres(cfg); err != nil {
		return err
	}

	db, err := database.Open(cfg.SessionStoreURL)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	return cleanup.NewCleanupJob(db, slog.Default()).Run(ctx)
}

func requirePostgres(cfg *config.Config) error {
	backend, err := backendFor(cfg.SessionStoreURL)
	if err != nil {
		return err
	}
	if backend != backendPostgres {
		return fmt.Errorf("command requires a postgres SESSION_STORE_URL, got %s store", backend)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	if len(raw) > 20 {
		return raw[:12] + "***@..."
	}
	return "***"
}
