// Package main - точка входа webhook-бэкенда казино-бота.
//
// Один процесс обслуживает:
// - webhook Telegram по секретному пути (идемпотентная обработка апдейтов)
// - JSON API для веб-приложения (/api/...)
// - health/readiness пробы и /metrics
// - фоновые задачи обслуживания (очистка claim-записей, прогрев рейтинга)
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/casino-hub/casino-hub/config"

	// Application layer
	"github.com/casino-hub/casino-hub/internal/application/command"
	"github.com/casino-hub/casino-hub/internal/application/query"
	"github.com/casino-hub/casino-hub/internal/domain/player"
	"github.com/casino-hub/casino-hub/internal/domain/update"

	// Infrastructure layer
	"github.com/casino-hub/casino-hub/internal/infrastructure/external/telegram"
	"github.com/casino-hub/casino-hub/internal/infrastructure/persistence/bolt"
	"github.com/casino-hub/casino-hub/internal/infrastructure/persistence/postgres"
	"github.com/casino-hub/casino-hub/internal/infrastructure/persistence/redis"
	"github.com/casino-hub/casino-hub/internal/infrastructure/scheduler"
	"github.com/casino-hub/casino-hub/internal/infrastructure/scheduler/jobs"

	// Interface layer
	httpserver "github.com/casino-hub/casino-hub/internal/interface/http"
	"github.com/casino-hub/casino-hub/internal/interface/http/handlers"
	webhook "github.com/casino-hub/casino-hub/internal/interface/telegram"
	"github.com/casino-hub/casino-hub/internal/interface/telegram/handler"

	// Packages
	"github.com/casino-hub/casino-hub/pkg/logger"
	"github.com/casino-hub/casino-hub/pkg/retry"
)

// purgeInterval - как часто удаляются старые записи об обработанных апдейтах.
const purgeInterval = time.Hour

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	if len(os.Args) > 1 && os.Args[1] == "store-token" {
		if err := storeToken(os.Stdin); err != nil {
			fmt.Fprintf(os.Stderr, "store-token: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Level:     cfg.Observability.LogLevel,
		Format:    logger.Format(cfg.Observability.LogFormat),
		AddCaller: !cfg.IsProduction(),
	})
	defer func() { _ = log.Sync() }()

	log.Info("starting casino bot",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("claim_store", cfg.Storage.ClaimStore),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ПУЛ СОЕДИНЕНИЙ POSTGRES
	// После холодного деплоя база может принимать соединения не сразу.
	// ─────────────────────────────────────────────────────────────────────────
	poolCfg := postgres.DefaultConfig()
	poolCfg.URL = cfg.Database.URL
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.AcquireTimeout = cfg.Database.AcquireTimeout
	poolCfg.HealthCheckPeriod = cfg.Database.HealthCheckPeriod

	connectRetrier := retry.DatabaseConnectRetrier(cfg.Database.ConnectRetries, func(attempt int, err error, delay time.Duration) {
		log.Warn("database not ready, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	})
	var pool *postgres.Pool
	err := connectRetrier.Do(ctx, func(ctx context.Context) error {
		p, err := postgres.NewPool(ctx, poolCfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database pool")
		pool.Close()
	}()
	log.Info("database pool ready",
		logger.Int("max_conns", int(poolCfg.MaxConns)),
		logger.Duration("acquire_timeout", poolCfg.AcquireTimeout),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. МИГРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	migrator := postgres.NewMigrator(pool)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if status, err := migrator.Status(ctx); err != nil {
		log.Warn("failed to get migration status", logger.Err(err))
	} else {
		applied := 0
		for _, m := range status {
			if m.IsApplied {
				applied++
			}
		}
		log.Info("migrations completed", logger.Int("applied", applied), logger.Int("total", len(status)))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (опционально)
	// Без Redis рейтинг читается из базы, claim-записи хранятся в Postgres/Bolt.
	// ─────────────────────────────────────────────────────────────────────────
	var (
		cache            *redis.Cache
		leaderboardCache player.LeaderboardCache
	)
	if cfg.Redis.Enabled || cfg.Storage.ClaimStore == config.ClaimStoreRedis {
		redisCfg := redis.DefaultConfig()
		redisCfg.URL = cfg.Redis.URL
		redisCfg.Namespace = cfg.Redis.Namespace
		cache, err = redis.NewCache(ctx, redisCfg)
		switch {
		case err != nil && cfg.Storage.ClaimStore == config.ClaimStoreRedis:
			return fmt.Errorf("failed to connect to redis: %w", err)
		case err != nil:
			log.Warn("redis unavailable, leaderboard cache disabled", logger.Err(err))
			cache = nil
		default:
			defer func() { _ = cache.Close() }()
			leaderboardCache = redis.NewLeaderboardCache(cache, cfg.Redis.LeaderboardTTL)
			log.Info("redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ХРАНИЛИЩЕ CLAIM-ЗАПИСЕЙ
	// ─────────────────────────────────────────────────────────────────────────
	var (
		claimer update.Claimer
		purge   jobs.PurgeFunc
	)
	switch cfg.Storage.ClaimStore {
	case config.ClaimStoreRedis:
		// Записи истекают по TTL, очистка не нужна.
		claimer = redis.NewUpdateStore(cache, cfg.Storage.ClaimRetention)
	case config.ClaimStoreBolt:
		store, err := bolt.Open(cfg.Storage.BoltPath)
		if err != nil {
			return fmt.Errorf("failed to open bolt store: %w", err)
		}
		defer func() { _ = store.Close() }()
		claimer = store
		purge = func(_ context.Context, retention time.Duration) (int64, error) {
			n, err := store.Purge(retention)
			return int64(n), err
		}
	default:
		store := postgres.NewUpdateStore(pool)
		claimer = store
		purge = store.Purge
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	players := postgres.NewPlayerRepository(pool)

	syncProfile := command.NewSyncProfileHandler(players, leaderboardCache, log)
	claimBonus := command.NewClaimBonusHandler(players, leaderboardCache, log)
	grantBalance := command.NewGrantBalanceHandler(players, leaderboardCache, cfg.Telegram.AdminID, log)
	touchPlayer := command.NewTouchPlayerHandler(syncProfile)

	getPlayer := query.NewGetPlayerHandler(players)
	getLeaderboard := query.NewGetLeaderboardHandler(players, leaderboardCache, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. TELEGRAM
	// ─────────────────────────────────────────────────────────────────────────
	clientCfg := telegram.DefaultClientConfig(cfg.Telegram.Token)
	clientCfg.ServerURL = cfg.Telegram.APIServerURL
	client, err := telegram.NewClient(clientCfg, log)
	if err != nil {
		return fmt.Errorf("failed to create telegram client: %w", err)
	}

	bot := handler.NewBot(handler.Deps{
		Messenger:    client,
		SyncProfile:  syncProfile,
		TouchPlayer:  touchPlayer,
		ClaimBonus:   claimBonus,
		GrantBalance: grantBalance,
		WebAppURL:    cfg.Telegram.WebAppURL,
		BotUsername:  cfg.Telegram.Username,
		Logger:       log,
	})

	routerCfg := webhook.DefaultRouterConfig(cfg.Telegram.WebhookPath)
	routerCfg.BotUsername = cfg.Telegram.Username
	routerCfg.SecretToken = cfg.Telegram.WebhookSecret
	routerCfg.RequireSecret = cfg.Telegram.UseSecretHeader
	routerCfg.HandlerTimeout = cfg.Telegram.HandlerTimeout
	routerCfg.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	router := webhook.NewRouter(routerCfg, claimer, bot, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ФОНОВЫЕ ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{Logger: log})
	if purge != nil {
		if err := sched.Register(jobs.NewPurgeClaimsJob(purge, cfg.Storage.ClaimRetention, log), scheduler.Every(purgeInterval)); err != nil {
			return fmt.Errorf("failed to register purge job: %w", err)
		}
	}
	if leaderboardCache != nil {
		job := jobs.NewRefreshLeaderboardJob(players, leaderboardCache, log)
		if err := sched.Register(job, scheduler.Every(cfg.Redis.LeaderboardTTL)); err != nil {
			return fmt.Errorf("failed to register leaderboard job: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("postgres", handlers.NewPingCheck(pool))
	if cache != nil {
		health.AddOptionalCheck("redis", handlers.NewPingCheck(cache))
	}

	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.RateLimitPerMinute = cfg.HTTP.RateLimit
	httpCfg.Version = cfg.App.Version

	server := httpserver.NewServer(httpCfg, httpserver.Dependencies{
		Webhook:        router,
		GetPlayer:      getPlayer,
		GetLeaderboard: getLeaderboard,
		ClaimBonus:     claimBonus,
		SyncProfile:    syncProfile,
		HealthChecker:  health,
		Metrics: []httpserver.MetricsSource{
			{Name: "webhook", Snapshot: func() any { return router.Stats() }},
			{Name: "pool", Snapshot: func() any { return pool.Stats() }},
			{Name: "telegram", Snapshot: func() any { return client.Breaker() }},
			{Name: "jobs", Snapshot: func() any { return sched.ListJobs() }},
		},
		Logger: log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 10. ЗАПУСК
	// ─────────────────────────────────────────────────────────────────────────
	serverErr := server.StartAsync()

	if err := sched.Start(ctx, true); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// Webhook регистрируется после старта сервера, чтобы первый апдейт
	// не получил connection refused.
	if cfg.Telegram.WebhookURL != "" {
		registerWebhook(ctx, client, cfg, log)
	} else {
		log.Warn("RENDER_EXTERNAL_HOSTNAME not set, webhook not registered")
	}
	// Меню команд не критично: бот работает и без него.
	if err := client.SetCommands(ctx, bot.Commands()); err != nil {
		log.Warn("failed to update command menu", logger.Err(err))
	}

	log.Info("casino bot is running",
		logger.String("address", server.Address()),
		logger.String("webhook_path", redactPath(router.Path())),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 11. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err, ok := <-serverErr:
		if ok && err != nil {
			log.Error("http server failed", logger.Err(err))
			runErr = err
		}
	}

	log.Info("starting graceful shutdown", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	// Сначала перестаём принимать запросы и дожидаемся обработчиков webhook,
	// затем останавливаем задачи. Пул и хранилища закрываются через defer.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
	}
	if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
		log.Error("failed to stop scheduler", logger.Err(err))
	}

	if cfg.Telegram.DeleteWebhookOnShutdown {
		if err := client.DeleteWebhook(shutdownCtx); err != nil {
			log.Warn("failed to delete webhook", logger.Err(err))
		}
	}

	log.Info("shutdown completed")
	return runErr
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// registerWebhook points Telegram at this instance. Failure is logged, not
// fatal: the previous registration usually still targets the same URL.
func registerWebhook(ctx context.Context, client *telegram.Client, cfg config.Config, log *logger.Logger) {
	r := retry.WebhookRetrier(func(attempt int, err error, delay time.Duration) {
		log.Warn("webhook registration failed, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	})
	err := r.Do(ctx, func(ctx context.Context) error {
		_, err := client.EnsureWebhook(ctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret)
		if err != nil && !telegram.IsFailure(err) {
			// Неверный URL или токен: повтор не поможет.
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		log.Error("webhook registration failed", logger.Err(err))
	}
}

// storeToken сохраняет токен из stdin в keyring ОС, чтобы BOT_TOKEN не
// хранился в .env. Сервис берётся из KEYRING_SERVICE.
//
//	echo "$TOKEN" | KEYRING_SERVICE=casino-hub bot store-token
func storeToken(in io.Reader) error {
	service := os.Getenv("KEYRING_SERVICE")
	if service == "" {
		return errors.New("KEYRING_SERVICE is required")
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return errors.New("empty token on stdin")
	}
	return config.StoreToken(service, token)
}

func redactPath(path string) string {
	const keep = 12
	if len(path) <= keep {
		return path
	}
	return path[:keep] + "..."
}
