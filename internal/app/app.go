package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/mixmatch/internal/backend"
	"github.com/hitoshi/mixmatch/internal/catalog"
	"github.com/hitoshi/mixmatch/internal/config"
	"github.com/hitoshi/mixmatch/internal/database"
	"github.com/hitoshi/mixmatch/internal/facet"
	"github.com/hitoshi/mixmatch/internal/handler"
	"github.com/hitoshi/mixmatch/internal/identity"
	"github.com/hitoshi/mixmatch/internal/ledger"
	"github.com/hitoshi/mixmatch/internal/logger"
	"github.com/hitoshi/mixmatch/internal/metrics"
	"github.com/hitoshi/mixmatch/internal/middleware"
	"github.com/hitoshi/mixmatch/internal/sampler"
	"github.com/hitoshi/mixmatch/internal/security"
	"github.com/hitoshi/mixmatch/internal/session"
	"github.com/hitoshi/mixmatch/internal/token"
	"github.com/hitoshi/mixmatch/internal/upstream"
)

// storeConnectTimeout は起動時の台帳ストアへの疎通確認のタイムアウト。
const storeConnectTimeout = 10 * time.Second

// HTTPサーバーのタイムアウト
const (
	serverReadTimeout  = 15 * time.Second
	serverWriteTimeout = 15 * time.Second
	serverIdleTimeout  = 60 * time.Second
)

// recommendTimeout はレコメンド1回の処理時間の上限。
// 書き込み期限より前に打ち切り、503を返せるだけの余裕を残す。
const recommendTimeout = serverWriteTimeout - 3*time.Second

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
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		return runHealthcheck(healthcheckPort(args))
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.PortFor(cmd == CommandService)),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandService:
		return runService(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runGateway(cfg)
	}
}

// newRegistry はプロセス・Goランタイムのメトリクスを含むレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// newUpstream は上流サービス1つ分の転送クライアントを生成する。
func newUpstream(cfg *config.Config, name, baseURL string, collector *metrics.Collector) *upstream.Client {
	return upstream.NewClient(upstream.Options{
		Name:             name,
		BaseURL:          baseURL,
		Timeout:          cfg.UpstreamTimeout,
		FailureThreshold: uint32(max(cfg.BreakerFailureThreshold, 1)),
		OpenTimeout:      cfg.BreakerOpenTimeout,
		Logger:           slog.Default(),
		Metrics:          collector,
	})
}

// runGateway はクライアント向けゲートウェイとして起動する。
// IdPとカクテルサービスへのクライアントを構成し、HTTPサーバーを起動する。
func runGateway(cfg *config.Config) error {
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 1. 上流クライアントの初期化
	authClient := newUpstream(cfg, "auth", cfg.AuthServiceURL, collector)
	cocktailClient := backend.NewClient(newUpstream(cfg, "cocktail", cfg.CocktailServiceURL, collector))

	// 2. ドメインサービスの初期化
	tokenManager := token.NewManager(authClient, slog.Default())
	recommender := sampler.New(cocktailClient, collector, slog.Default())
	facetLoader := facet.NewLoader(cocktailClient, collector, slog.Default())

	// 3. ルーターの構築
	router := handler.NewGatewayRouter(&handler.GatewayDeps{
		CommonDeps: handler.CommonDeps{
			Logger:            slog.Default(),
			Metrics:           collector,
			MetricsHandler:    metrics.Handler(reg),
			CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		},
		AllowedOrigins: []string{cfg.CORSAllowedOrigin, cfg.BaseURL},
		Tokens:         tokenManager,
		Cookies: session.NewWriter(session.CookieConfig{
			Secure: cfg.CookieSecure,
			Domain: cfg.CookieDomain,
		}),
		Backend: cocktailClient,
		Sampler: recommender,
		Facets:  facetLoader,
		Cocktail: handler.CocktailHandlerConfig{
			ExcludeHistory: cfg.SamplerExcludeHistory,
			RandomTimeout:  recommendTimeout,
		},
	})

	slog.Info("gateway configured",
		slog.String("auth_service_url", cfg.AuthServiceURL),
		slog.String("cocktail_service_url", cfg.CocktailServiceURL),
		slog.Bool("sampler_exclude_history", cfg.SamplerExcludeHistory),
	)

	return serve(router, cfg.PortFor(false), "gateway")
}

// runService はカクテルサービスとして起動する。
// 台帳ストアに接続し、カタログクライアントと判定履歴を構成してHTTPサーバーを起動する。
func runService(cfg *config.Config) error {
	if err := cfg.ValidateService(); err != nil {
		return err
	}

	verifier, err := identity.NewVerifier(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("failed to create token verifier: %w", err)
	}

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 1. 台帳ストアの接続
	store, checker, closeStore, err := openLedgerStore(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// 2. ドメインサービスの初期化
	catalogClient := catalog.NewClient(
		newUpstream(cfg, "catalog", cfg.CatalogAPIURL, collector),
		security.NewContentSanitizer(),
		slog.Default(),
	)
	ledgerService := ledger.NewService(store, collector, slog.Default())

	// 3. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitRecord))
	defer rateLimiter.Stop()

	router := handler.NewServiceRouter(&handler.ServiceDeps{
		CommonDeps: handler.CommonDeps{
			Logger:            slog.Default(),
			Metrics:           collector,
			MetricsHandler:    metrics.Handler(reg),
			HealthChecker:     checker,
			CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		},
		Verifier:    verifier,
		RateLimiter: rateLimiter,
		Catalog:     catalogClient,
		Ledger:      ledgerService,
	})

	return serve(router, cfg.PortFor(true), "cocktail service")
}

// openLedgerStore はLEDGER_BACKENDに応じた台帳ストアを開く。
// 返り値のcloseは接続を閉じる。
func openLedgerStore(ctx context.Context, cfg *config.Config) (ledger.Store, handler.HealthChecker, func(), error) {
	switch cfg.LedgerBackend {
	case config.LedgerPostgres:
		db, err := database.OpenAndPing(ctx, cfg.DatabaseURL, storeConnectTimeout)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
		return ledger.NewPostgresStore(db), db, func() { db.Close() }, nil

	case config.LedgerRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, storeConnectTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("redis connection established")
		return ledger.NewRedisStore(client), redisPinger{client}, func() { client.Close() }, nil

	default:
		slog.Warn("in-memory ledger store is in use; judgments are lost on restart")
		return ledger.NewMemoryStore(), nil, func() {}, nil
	}
}

// redisPinger はRedisクライアントをhandler.HealthCheckerに適合させる。
type redisPinger struct {
	client redis.UniversalClient
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// serve はHTTPサーバーを起動し、SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func serve(router http.Handler, port, name string) error {
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// healthcheckPort はヘルスチェック対象のポートを返す。
// SERVER_PORTを優先し、未設定なら "healthcheck service" でサービスのデフォルトポートを使う。
func healthcheckPort(args []string) string {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	if len(args) > 1 && ParseCommand(args[1:]) == CommandService {
		return config.DefaultServicePort
	}
	return config.DefaultGatewayPort
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
