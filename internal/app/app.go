package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"

	"github.com/hitoshi/chatline/internal/auth"
	"github.com/hitoshi/chatline/internal/chat"
	"github.com/hitoshi/chatline/internal/config"
	"github.com/hitoshi/chatline/internal/database"
	"github.com/hitoshi/chatline/internal/handler"
	"github.com/hitoshi/chatline/internal/logger"
	"github.com/hitoshi/chatline/internal/metrics"
	"github.com/hitoshi/chatline/internal/middleware"
	"github.com/hitoshi/chatline/internal/relay"
	"github.com/hitoshi/chatline/internal/repository"
	"github.com/hitoshi/chatline/internal/user"
	"github.com/hitoshi/chatline/internal/worker/cleanup"
)

const (
	// shutdownTimeout はグレースフルシャットダウンの待ち時間。
	shutdownTimeout = 30 * time.Second
	// startupPingTimeout は起動時のDB疎通確認のタイムアウト。
	startupPingTimeout = 10 * time.Second
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		fmt.Fprint(w, Usage())
		return err
	}
	if cmd == CommandHelp {
		fmt.Fprint(w, Usage())
		return nil
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
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
		slog.String("port", cfg.ServerPort),
		slog.Bool("relay_enabled", cfg.RelayEnabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// hubConfig は設定値からチャットHubの設定を組み立てる。
func hubConfig(cfg *config.Config) chat.HubConfig {
	return chat.HubConfig{
		MessageRate:  rate.Limit(cfg.WSMessageRate),
		MessageBurst: cfg.WSMessageBurst,
		Location:     cfg.Location,
		SaveTimeout:  cfg.WSSaveTimeout,
		Broadcaster: chat.BroadcasterConfig{
			MaxInFlight: cfg.WSMaxInFlight,
			SendTimeout: cfg.WSSendTimeout,
		},
	}
}

// newMetricsRegistry はチャットのメトリクスとランタイムのメトリクスを登録したレジストリを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, startupPingTimeout); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("database connection established")
	return db, nil
}

// runServe はチャットサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	messageRepo := repository.NewPostgresMessageRepo(db)

	// 3. ドメインサービスの初期化
	authService := auth.NewService(userRepo, sessionRepo, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
	})
	userService := user.NewService(userRepo, sessionRepo, 0)

	// 4. チャットHubとメトリクス
	reg, collector := newMetricsRegistry()
	hub := chat.NewHub(messageRepo, hubConfig(cfg), slog.Default(), collector)

	// 5. 複数インスタンス間のリレー（REDIS_URL設定時のみ）
	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	if cfg.RelayEnabled() {
		closeRelay, err := startRelay(relayCtx, cfg, hub)
		if err != nil {
			return err
		}
		defer closeRelay()
	}

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)
	defer rateLimiter.Stop()

	authConfig := handler.AuthHandlerConfig{
		CookieDomain:  cfg.CookieDomain,
		CookieSecure:  cfg.CookieSecure,
		SessionMaxAge: cfg.SessionMaxAge,
	}
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),
		PanicRecorder:  collector,

		AuthService: authService,
		AuthConfig:  authConfig,
		UserService: userService,

		ChatServer: hub,
		UserFinder: userRepo,
		Presence:   hub.Registry(),
		WSConfig: handler.WSHandlerConfig{
			Transport: chat.WebSocketConfig{
				ReadLimit:    cfg.WSReadLimit,
				PingInterval: cfg.WSPingInterval,
			},
			AllowedOrigin:  cfg.CORSAllowedOrigin,
			RequireSession: cfg.WSRequireSession,
		},
		MessageLister: messageRepo,
		HistoryLimit:  cfg.HistoryLimit,
		Location:      cfg.Location,
	})

	// 7. HTTPサーバーの起動
	// WriteTimeoutはアップグレード後の接続には適用されない（gorilla/websocketが解除する）
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
	}
	ln = netutil.LimitListener(ln, cfg.WSMaxConnections)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("chat server starting",
			slog.String("addr", server.Addr),
			slog.Int("max_connections", cfg.WSMaxConnections),
		)
		serveErr <- server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
	}
	slog.Info("shutting down chat server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 新規接続の受付を止めてから、アップグレード済みの接続を閉じる
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := hub.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("hub shutdown failed: %w", err)
	}
	stopRelay()

	slog.Info("chat server stopped gracefully")
	return nil
}

// startRelay はRedisに接続してリレーの購読を開始する。
// 購読が確立するまではローカル配信を続け、確立後にHubのファンアウトを切り替える。
// 購読が終了した場合はローカル配信に戻す。
func startRelay(ctx context.Context, cfg *config.Config, hub *chat.Hub) (func(), error) {
	rdb, err := relay.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	rl := relay.New(rdb, cfg.RedisChannel, slog.Default())
	ready := make(chan struct{})
	runDone := make(chan struct{})
	switched := make(chan struct{})

	go func() {
		defer close(switched)
		select {
		case <-ready:
			hub.SetFanout(rl)
		case <-runDone:
		}
	}()
	go func() {
		if err := rl.Run(ctx, hub, ready); err != nil {
			slog.Error("relay stopped with error", slog.String("error", err.Error()))
		}
		close(runDone)
		<-switched
		hub.SetFanout(nil)
	}()

	return func() {
		if err := rdb.Close(); err != nil {
			slog.Warn("failed to close redis client", slog.String("error", err.Error()))
		}
	}, nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、クリーンアップジョブを定期実行する。
// ctxがキャンセルされるとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	job := cleanup.NewCleanupJob(db, slog.Default(), cfg.MessageRetentionDays)

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Int("message_retention_days", cfg.MessageRetentionDays),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
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
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
