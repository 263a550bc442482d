package config

import (
	"log"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"lobang-bot/internal/domain"
)

// AppConfig describes the configuration of all services.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Store struct {
		ID          string  `envconfig:"STORE_ID" default:"lobang-sg"`
		CountryCode string  `envconfig:"COUNTRY_CODE" default:"SG"`
		CountryName string  `envconfig:"COUNTRY_NAME" default:"Singapore"`
		Timezone    string  `envconfig:"STORE_TIMEZONE" default:"Asia/Singapore"`
		MinLat      float64 `envconfig:"COUNTRY_MIN_LAT" default:"1.15"`
		MaxLat      float64 `envconfig:"COUNTRY_MAX_LAT" default:"1.48"`
		MinLng      float64 `envconfig:"COUNTRY_MIN_LNG" default:"103.59"`
		MaxLng      float64 `envconfig:"COUNTRY_MAX_LNG" default:"104.10"`
		Categories  string  `envconfig:"DEAL_CATEGORIES" default:"Food & Dining,Events,Fashion"`
		CatalogID   string  `envconfig:"WA_CATALOG_ID"`
	} `envconfig:""`

	WhatsApp struct {
		Token         string        `envconfig:"WA_TOKEN"`
		PhoneNumberID string        `envconfig:"WA_PHONE_NUMBER_ID"`
		VerifyToken   string        `envconfig:"WA_VERIFY_TOKEN"`
		BaseURL       string        `envconfig:"WA_BASE_URL" default:"https://graph.facebook.com/v19.0"`
		Timeout       time.Duration `envconfig:"WA_TIMEOUT" default:"15s"`
		SuppressDupes bool          `envconfig:"WA_SUPPRESS_DUPLICATES" default:"false"`
	} `envconfig:""`

	Session struct {
		TTLHours      int    `envconfig:"SESSION_TTL_HOURS" default:"24"`
		PrimaryTable  string `envconfig:"SESSION_TABLE" default:"sessions"`
		FallbackTable string `envconfig:"SESSION_FALLBACK_TABLE" default:"sessions_fallback"`
	} `envconfig:""`

	PGDSN     string `envconfig:"PG_DSN"`
	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	Places struct {
		APIKey  string        `envconfig:"PLACES_API_KEY"`
		BaseURL string        `envconfig:"PLACES_BASE_URL"`
		Timeout time.Duration `envconfig:"PLACES_TIMEOUT" default:"15s"`
	} `envconfig:""`

	Search struct {
		APIKey   string        `envconfig:"SEARCH_API_KEY"`
		EngineID string        `envconfig:"SEARCH_ENGINE_ID"`
		BaseURL  string        `envconfig:"SEARCH_BASE_URL"`
		Timeout  time.Duration `envconfig:"SEARCH_TIMEOUT" default:"15s"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"15s"`
	} `envconfig:""`

	Generator struct {
		BaseURL string        `envconfig:"GENERATOR_BASE_URL"`
		APIKey  string        `envconfig:"GENERATOR_API_KEY"`
		Timeout time.Duration `envconfig:"GENERATOR_TIMEOUT" default:"2m"`
	} `envconfig:""`

	Storage struct {
		BaseURL string        `envconfig:"STORAGE_BASE_URL"`
		Bucket  string        `envconfig:"STORAGE_BUCKET" default:"restaurant-uploads"`
		APIKey  string        `envconfig:"STORAGE_API_KEY"`
		Timeout time.Duration `envconfig:"STORAGE_TIMEOUT" default:"30s"`
	} `envconfig:""`

	Queues struct {
		AMQPURL    string `envconfig:"AMQP_URL"`
		Generation string `envconfig:"GENERATION_QUEUE_KEY" default:"generation_jobs"`
	} `envconfig:""`

	Limits struct {
		MaxDeals       int     `envconfig:"MAX_DEALS" default:"3"`
		SearchRadiusKM float64 `envconfig:"SEARCH_RADIUS_KM" default:"5"`
		ChatMaxTurns   int     `envconfig:"CHAT_MAX_TURNS" default:"10"`
	} `envconfig:""`
}

// Load reads the config from the environment.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// BotConfig derives the per-tenant bag passed through handlers.
func (c AppConfig) BotConfig() domain.BotConfig {
	categories := make([]string, 0, 4)
	for _, cat := range strings.Split(c.Store.Categories, ",") {
		cat = strings.TrimSpace(cat)
		if cat != "" {
			categories = append(categories, cat)
		}
	}
	return domain.BotConfig{
		StoreID:     c.Store.ID,
		CountryCode: c.Store.CountryCode,
		CountryName: c.Store.CountryName,
		Timezone:    c.Store.Timezone,
		Country: domain.BoundingBox{
			MinLat: c.Store.MinLat,
			MaxLat: c.Store.MaxLat,
			MinLng: c.Store.MinLng,
			MaxLng: c.Store.MaxLng,
		},
		Categories:     categories,
		SearchRadiusKM: c.Limits.SearchRadiusKM,
		MaxDeals:       c.Limits.MaxDeals,
		SessionTTL:     time.Duration(c.Session.TTLHours) * time.Hour,
		CatalogID:      c.Store.CatalogID,
	}
}
