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
	"lobang-bot/internal/adapters/generator"
	"lobang-bot/internal/adapters/jobstatus"
	"lobang-bot/internal/adapters/repo"
	"lobang-bot/internal/adapters/whatsapp"
	"lobang-bot/internal/domain"
	"lobang-bot/internal/infra/cache"
	"lobang-bot/internal/infra/config"
	"lobang-bot/internal/infra/db"
	infrahttp "lobang-bot/internal/infra/http"
	"lobang-bot/internal/infra/log"
	"lobang-bot/internal/infra/metrics"
	"lobang-bot/internal/infra/queue"
	"lobang-bot/internal/usecase/creator"
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

	redisClient := cache.NewClient(cfg.RedisAddr)
	botCfg := cfg.BotConfig()

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

	waClient := whatsapp.NewClient(whatsapp.Config{
		Token:         cfg.WhatsApp.Token,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		BaseURL:       cfg.WhatsApp.BaseURL,
		Timeout:       cfg.WhatsApp.Timeout,
	})

	worker := creator.NewWorker(
		genQueue,
		jobstatus.NewStore(redisClient, botCfg.SessionTTL),
		repo.NewPostgres(pool),
		generator.NewClient(cfg.Generator.BaseURL, cfg.Generator.APIKey, cfg.Generator.Timeout),
		bot.NewNotifier(waClient, logger),
		cfg.Generator.Timeout,
		logger,
	)

	srv := infrahttp.NewServer(logger)
	go func() {
		if err := srv.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go worker.Run(ctx)
	logger.Info().Msg("generation worker started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("shutting down generation worker")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
