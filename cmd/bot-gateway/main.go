package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"lobang-bot/internal/adapters/bot"
	"lobang-bot/internal/adapters/chat"
	"lobang-bot/internal/adapters/detect"
	"lobang-bot/internal/adapters/jobstatus"
	"lobang-bot/internal/adapters/objectstore"
	"lobang-bot/internal/adapters/places"
	"lobang-bot/internal/adapters/repo"
	"lobang-bot/internal/adapters/sessionstore"
	"lobang-bot/internal/adapters/websearch"
	"lobang-bot/internal/adapters/whatsapp"
	"lobang-bot/internal/domain"
	"lobang-bot/internal/infra/cache"
	"lobang-bot/internal/infra/config"
	"lobang-bot/internal/infra/db"
	infrahttp "lobang-bot/internal/infra/http"
	"lobang-bot/internal/infra/log"
	"lobang-bot/internal/infra/metrics"
	"lobang-bot/internal/infra/openai"
	"lobang-bot/internal/infra/queue"
	"lobang-bot/internal/usecase/alerts"
	"lobang-bot/internal/usecase/creator"
	"lobang-bot/internal/usecase/deals"
	"lobang-bot/internal/usecase/location"
	"lobang-bot/migrations"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection failed")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := repoAdapter.ApplyMigrations(ctx, migrations.Files); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}
	cancel()

	redisClient := cache.NewClient(cfg.RedisAddr)
	botCfg := cfg.BotConfig()

	sessions := sessionstore.New(redisClient, logger, cfg.Session.PrimaryTable, cfg.Session.FallbackTable, botCfg.SessionTTL)
	geocoder := places.NewClient(cfg.Places.APIKey, cfg.Places.BaseURL, cfg.Store.CountryCode, cfg.Places.Timeout)
	searcher := websearch.NewClient(cfg.Search.APIKey, cfg.Search.EngineID, cfg.Search.BaseURL, cfg.Store.CountryCode, cfg.Search.Timeout)
	store := objectstore.NewClient(cfg.Storage.BaseURL, cfg.Storage.Bucket, cfg.Storage.APIKey, cfg.Storage.Timeout)
	openaiClient := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
	statusStore := jobstatus.NewStore(redisClient, botCfg.SessionTTL)

	var genQueue domain.GenerationQueue
	if cfg.Queues.AMQPURL != "" {
		rabbit, err := queue.NewRabbitGenerationQueue(cfg.Queues.AMQPURL, cfg.Queues.Generation)
		if err != nil {
			logger.Fatal().Err(err).Msg("rabbitmq connection failed")
		}
		defer rabbit.Close()
		genQueue = rabbit
	} else {
		genQueue = queue.NewRedisGenerationQueue(redisClient, cfg.Queues.Generation)
	}

	dealService := deals.NewService(repoAdapter, searcher, botCfg.CountryName, botCfg.SearchRadiusKM, logger)
	locationService := location.NewService(geocoder, botCfg.Country, location.DefaultPopularPlaces(), logger)
	alertService := alerts.NewService(repoAdapter, logger)
	creatorService := creator.NewService(geocoder, repoAdapter, store, genQueue, statusStore, logger)

	waClient := whatsapp.NewClient(whatsapp.Config{
		Token:         cfg.WhatsApp.Token,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		BaseURL:       cfg.WhatsApp.BaseURL,
		Timeout:       cfg.WhatsApp.Timeout,
	})

	engine := bot.NewEngine(bot.Config{
		Bot:           botCfg,
		Sessions:      sessions,
		Deals:         dealService,
		Location:      locationService,
		Alerts:        alertService,
		Creator:       creatorService,
		Chat:          chat.NewAssistant(openaiClient, cfg.OpenAI.Model, cfg.OpenAI.Timeout),
		Detector:      detect.NewLLM(openaiClient, cfg.OpenAI.Model, cfg.OpenAI.Timeout),
		Sender:        waClient,
		Media:         waClient,
		Decorations:   cache.NewRedis(redisClient),
		SuppressDupes: cfg.WhatsApp.SuppressDupes,
		ChatMaxTurns:  cfg.Limits.ChatMaxTurns,
		Logger:        logger,
	})

	srv := infrahttp.NewServer(logger)
	bot.NewWebhookHandler(engine, cfg.WhatsApp.VerifyToken, logger).Register(srv.Router)

	go func() {
		if err := srv.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("shutting down bot gateway")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
