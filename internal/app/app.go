package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/pipnation/internal/auth"
	"github.com/hitoshi/pipnation/internal/config"
	"github.com/hitoshi/pipnation/internal/database"
	"github.com/hitoshi/pipnation/internal/handler"
	"github.com/hitoshi/pipnation/internal/logger"
	"github.com/hitoshi/pipnation/internal/metrics"
	"github.com/hitoshi/pipnation/internal/middleware"
	"github.com/hitoshi/pipnation/internal/profile"
	"github.com/hitoshi/pipnation/internal/repository"
	"github.com/hitoshi/pipnation/internal/security"
	"github.com/hitoshi/pipnation/internal/supabase"
	"github.com/hitoshi/pipnation/internal/worker/cleanup"
	"github.com/hitoshi/pipnation/internal/worker/proofcheck"
)

const (
	// providerTimeout は認証プロバイダー呼び出しのタイムアウト。
	providerTimeout = 10 * time.Second
	// jwtLeeway はローカルJWT検証で許容する時計のずれ。
	jwtLeeway = 30 * time.Second
	// shutdownTimeout はグレースフルシャットダウンの待ち時間。
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再設定する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		return runHealthcheck(getenvDefault("SERVER_PORT", "8080"), os.Getenv("API_BASE_PATH"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cmd.IsClientCommand() {
		var rest []string
		if len(args) > 1 {
			rest = args[1:]
		}
		return runClient(ctx, w, cmd, rest)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_path", cfg.APIBasePath),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg, args[1:])
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// openRedis はREDIS_URLが設定されている場合にRedisクライアントを生成する。
// 接続できない場合も検証キャッシュなしで動作できるため、警告のみ出して返す。
func openRedis(ctx context.Context, redisURL string, logger *slog.Logger) (*redis.Client, error) {
	if redisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis is unreachable, token cache will fall back to the verifier",
			slog.String("error", err.Error()),
		)
	}
	return rdb, nil
}

// newTokenVerifier はトークン検証器を構成する。
// JWTシークレットがあればローカル検証、なければ認証プロバイダーに問い合わせる。
// Redisがあれば検証結果をキャッシュする。
func newTokenVerifier(cfg *config.Config, provider *supabase.Client, rdb redis.Cmdable, logger *slog.Logger) auth.TokenVerifier {
	var verifier auth.TokenVerifier
	if cfg.SupabaseJWTSecret != "" {
		verifier = auth.NewJWTVerifier(cfg.SupabaseJWTSecret, jwtLeeway)
	} else {
		verifier = auth.NewProviderVerifier(provider)
	}

	if rdb != nil {
		verifier = auth.NewCachedVerifier(verifier, rdb, cfg.TokenCacheTTL, logger)
	}
	return verifier
}

// newMetricsRegistry はプロセス・Goランタイムのメトリクスを含むレジストリを生成する。
func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// buildRouter は全依存関係をワイヤリングしたHTTPハンドラーを返す。
// dbとrdbはnilでもよい（テスト用）。
func buildRouter(cfg *config.Config, db *sql.DB, rdb redis.Cmdable, reg *prometheus.Registry, logger *slog.Logger) (http.Handler, *middleware.RateLimiter) {
	// 1. リポジトリの初期化
	kv := repository.NewPostgresKVStore(db)
	profileRepo := repository.NewKVProfileRepo(kv)
	ftmoRepo := repository.NewKVFTMORepo(kv)

	// 2. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 3. 認証プロバイダーとトークン検証
	provider := supabase.NewClient(&http.Client{Timeout: providerTimeout}, logger, supabase.Config{
		URL:            cfg.SupabaseURL,
		AnonKey:        cfg.SupabaseAnonKey,
		ServiceRoleKey: cfg.SupabaseServiceRoleKey,
	})
	verifier := newTokenVerifier(cfg, provider, rdb, logger)

	// 4. ドメインサービスの初期化
	signupService := auth.NewSignupService(provider, profileRepo, sanitizer, logger)
	profileService := profile.NewService(profileRepo, ftmoRepo, ssrfGuard, sanitizer, cfg.QuizPassingScore, logger)

	// 5. メトリクス
	collector := metrics.NewCollector(reg)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitSignup),
		logger,
	)

	var pinger handler.Pinger
	if db != nil {
		pinger = db
	}

	deps := &handler.RouterDeps{
		Logger:            logger,
		TokenVerifier:     verifier,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		BasePath:          cfg.APIBasePath,

		Health: handler.HealthConfig{
			HasURL:         cfg.SupabaseURL != "",
			HasAnonKey:     cfg.SupabaseAnonKey != "",
			HasServiceRole: cfg.SupabaseServiceRoleKey != "",
		},
		DB: pinger,

		SignupService:  signupService,
		ProfileService: profileService,

		Recorder:       collector,
		MetricsHandler: metrics.Handler(reg),
	}

	return handler.NewRouter(deps), rateLimiter
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default()

	// 1. DB接続
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("database connection established")

	// 2. トークン検証キャッシュ
	rdb, err := openRedis(ctx, cfg.RedisURL, logger)
	if err != nil {
		return err
	}
	var cache redis.Cmdable
	if rdb != nil {
		defer rdb.Close()
		cache = rdb
	}

	if !cfg.HasAuthProvider() {
		logger.Warn("auth provider is not configured; authenticated routes will fail until SUPABASE_URL and SUPABASE_ANON_KEY are set")
	}

	// 3. ルーターの構築
	router, rateLimiter := buildRouter(cfg, db, cache, newMetricsRegistry(), logger)
	defer rateLimiter.Stop()

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、証跡URL確認ジョブとFTMO提出クリーンアップジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default()

	// 1. DB接続
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	ftmoRepo := repository.NewKVFTMORepo(repository.NewPostgresKVStore(db))

	// 3. 証跡URL確認ジョブ
	ssrfGuard := security.NewSSRFGuard()
	collector := metrics.NewCollector(newMetricsRegistry())
	checker := proofcheck.NewChecker(
		ftmoRepo, ssrfGuard, ssrfGuard.NewSafeClient(cfg.ProofCheckTimeout),
		collector, logger, cfg.ProofCheckMaxConcurrent,
	)

	// 4. クリーンアップジョブ
	cleanupJob := cleanup.NewCleanupJob(ftmoRepo, cfg.FTMORetentionDays, logger)

	logger.Info("worker starting",
		slog.Duration("proof_check_interval", cfg.ProofCheckInterval),
		slog.Int("max_concurrent", cfg.ProofCheckMaxConcurrent),
		slog.Int("retention_days", cfg.FTMORetentionDays),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cleanupJob.StartDaily(ctx)
	}()

	// 証跡URL確認ジョブをメインgoroutineで実行（ブロッキング）
	checker.Start(ctx, cfg.ProofCheckInterval)
	wg.Wait()

	logger.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// args: なし / "up" で全適用、"down [n]" でn件（既定1件）巻き戻し、"version" で現在のバージョンを表示。
func runMigrate(cfg *config.Config, args []string) error {
	action := "up"
	if len(args) > 0 {
		action = args[0]
	}

	slog.Info("running database migrations",
		slog.String("action", action),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case "up":
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid rollback steps %q: %w", args[1], err)
			}
			steps = n
		}
		if err := database.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
	case "version":
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		slog.Info("database migration version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
		return nil
	default:
		return fmt.Errorf("unknown migrate action %q (want up, down or version)", action)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port, basePath string) error {
	url := fmt.Sprintf("http://localhost:%s%s/health", port, config.NormalizeBasePath(basePath))
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

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
