package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/fortunebot/internal/admin"
	"github.com/hitoshi/fortunebot/internal/bot"
	"github.com/hitoshi/fortunebot/internal/config"
	"github.com/hitoshi/fortunebot/internal/database"
	"github.com/hitoshi/fortunebot/internal/deck"
	"github.com/hitoshi/fortunebot/internal/fortune"
	"github.com/hitoshi/fortunebot/internal/gemini"
	"github.com/hitoshi/fortunebot/internal/handler"
	"github.com/hitoshi/fortunebot/internal/interpret"
	"github.com/hitoshi/fortunebot/internal/metrics"
	"github.com/hitoshi/fortunebot/internal/middleware"
	"github.com/hitoshi/fortunebot/internal/repository"
	"github.com/hitoshi/fortunebot/internal/security"
	"github.com/hitoshi/fortunebot/internal/telegram"
	"github.com/hitoshi/fortunebot/internal/user"
	"github.com/hitoshi/fortunebot/internal/worker/poll"
)

// telegramTimeoutMargin はロングポーリングの待機時間に上乗せするHTTPタイムアウト。
const telegramTimeoutMargin = 10 * time.Second

// components は起動時に組み立てた依存関係一式。
type components struct {
	telegram   *telegram.Client
	tracker    *user.Tracker
	provider   *interpret.Provider
	dispatcher *bot.Dispatcher
	router     http.Handler
	poller     *poll.Poller // ポーリングモードのみ
	limiter    *middleware.KeyedLimiter

	closers []func() error
}

// Close は組み立て時に開いたリソースを逆順に解放する。
func (c *components) Close() error {
	if c.limiter != nil {
		c.limiter.Stop()
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// build は設定に従って全依存関係をワイヤリングする。
// 失敗した場合はそれまでに開いたリソースを解放してエラーを返す。
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*components, error) {
	c := &components{}
	built := false
	defer func() {
		if !built {
			c.Close()
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. ユーザーデータのストア
	repo, err := c.openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	c.tracker = user.NewTracker(repo, logger, collector, user.Config{
		Location: loc,
		Mode:     user.PersistenceMode(cfg.PersistenceMode),
	})

	// 3. AI解釈
	sanitizer := security.NewMessageSanitizer()

	// nilの*gemini.Clientをインターフェースに入れるとnil判定できないため、変数を分ける
	var gen interpret.Generator
	if cfg.AIConfigured() {
		gen = gemini.NewClient(&http.Client{Timeout: 2 * cfg.GeminiAttemptTimeout}, gemini.Config{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
		}, logger)
	}
	c.provider = interpret.NewProvider(gen, interpret.Config{
		Models:            cfg.GeminiModels,
		AttemptTimeout:    cfg.GeminiAttemptTimeout,
		Enabled:           cfg.UseAIInterpretations,
		RequestsPerMinute: cfg.GeminiRateLimit,
	}, logger, collector, sanitizer)

	// 4. ドメインサービス
	tarotDeck := deck.New()
	composer := fortune.NewComposer(c.tracker, c.provider, tarotDeck, logger, collector)
	adminService := admin.NewService(cfg.AdminID, c.tracker, c.provider, tarotDeck, logger)

	// 5. Telegram
	c.telegram = telegram.NewClient(
		&http.Client{Timeout: cfg.PollTimeout + telegramTimeoutMargin},
		cfg.TelegramAPIURL, cfg.BotToken, logger, collector,
	)
	me, err := c.telegram.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify bot token: %w", err)
	}

	c.limiter = middleware.NewKeyedLimiter(middleware.PerMinute(cfg.RateLimitCommands))
	c.dispatcher = bot.NewDispatcher(bot.Deps{
		Sender:              c.telegram,
		Fortune:             composer,
		Users:               c.tracker,
		AI:                  c.provider,
		Admin:               adminService,
		Deck:                tarotDeck,
		Limiter:             c.limiter,
		Recorder:            collector,
		Escaper:             sanitizer,
		Logger:              logger,
		AIRequestsPerMinute: cfg.GeminiRateLimit,
		BotUsername:         me.Username,
	})

	// 6. HTTPルーター
	deps := &handler.RouterDeps{
		Logger:         logger,
		HealthChecker:  c.tracker,
		MetricsHandler: metrics.Handler(reg),
	}
	if cfg.TelegramMode == config.TelegramModeWebhook {
		deps.Updates = c.dispatcher
		deps.WebhookSecret = cfg.TelegramWebhookSecret
	} else {
		c.poller = poll.NewPoller(c.telegram, c.dispatcher, logger, cfg.PollTimeout, cfg.MaxConcurrentUpdates)
	}
	c.router = handler.NewRouter(deps)

	logger.Info("components initialized",
		slog.String("bot_username", me.Username),
		slog.String("store", repo.Location()),
		slog.String("persistence_mode", cfg.PersistenceMode),
		slog.String("telegram_mode", cfg.TelegramMode),
		slog.Bool("ai_available", c.provider.IsAvailable()),
		slog.Bool("ai_enabled", c.provider.IsEnabled()),
		slog.String("timezone", loc.String()),
	)

	built = true
	return c, nil
}

// openStore はSTORE_BACKENDに対応するリポジトリを生成する。
func (c *components) openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.UserRecordRepository, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL, database.DefaultPoolConfig())
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, db.Close)

		version, err := database.RunMigrations(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		logger.Info("database connection established", slog.Uint64("migration_version", uint64(version)))
		return repository.NewPostgresUserRecordRepo(db, logger), nil

	case config.StoreBackendRedis:
		rdb, err := repository.NewRedisClient(ctx, repository.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, rdb.Close)
		logger.Info("redis connection established", slog.String("addr", cfg.RedisAddr))
		return repository.NewRedisUserRecordRepo(rdb, cfg.RedisKey, logger), nil

	default:
		return repository.NewFileUserRecordRepo(cfg.UserDataFile, logger), nil
	}
}
