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
	"lobang-bot/internal/adapters/repo"
	"lobang-bot/internal/adapters/sessionstore"
	"lobang-bot/internal/adapters/websearch"
	"lobang-bot/internal/adapters/whatsapp"
	"lobang-bot/internal/infra/cache"
	"lobang-bot/internal/infra/config"
	"lobang-bot/internal/infra/db"
	infrahttp "lobang-bot/internal/infra/http"
	"lobang-bot/internal/infra/log"
	"lobang-bot/internal/infra/metrics"
	"lobang-bot/internal/usecase/alerts"
	"lobang-bot/internal/usecase/deals"
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

	repoAdapter := repo.NewPostgres(pool)
	sessions := sessionstore.New(redisClient, logger, cfg.Session.PrimaryTable, cfg.Session.FallbackTable, botCfg.SessionTTL)
	searcher := websearch.NewClient(cfg.Search.APIKey, cfg.Search.EngineID, cfg.Search.BaseURL, cfg.Store.CountryCode, cfg.Search.Timeout)

	waClient := whatsapp.NewClient(whatsapp.Config{
		Token:         cfg.WhatsApp.Token,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		BaseURL:       cfg.WhatsApp.BaseURL,
		Timeout:       cfg.WhatsApp.Timeout,
	})

	dealService := deals.NewService(repoAdapter, searcher, botCfg.CountryName, botCfg.SearchRadiusKM, logger)
	alertService := alerts.NewService(repoAdapter, logger)
	notifier := bot.NewNotifier(waClient, logger)
	dispatcher := alerts.NewDispatcher(alertService, dealService, notifier, sessions, botCfg.MaxDeals, logger)

	srv := infrahttp.NewServer(logger)
	go func() {
		if err := srv.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go dispatcher.Run(ctx, time.Minute)
	logger.Info().Msg("alert dispatcher started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("shutting down alert dispatcher")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
