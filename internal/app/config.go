package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/service/gateway"
	"github.com/vladislavdragonenkov/storefront/internal/service/sweeper"
)

// Config описывает настройки запуска приложения. Все значения
// переопределяются переменными окружения с префиксом STOREFRONT_.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KafkaBrokers  []string

	Currency           string
	ShippingFeeMinor   int64
	CardMinAmountMinor int64

	Redirect gateway.RedirectConfig

	AbandonTimeout time.Duration
	SweepInterval  time.Duration
	SweepBatchSize int
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних
// зависимостей: in-memory хранилища, без Kafka и Redis.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:           ":8080",
		MetricsAddr:        ":9090",
		Currency:           "LKR",
		ShippingFeeMinor:   1000,
		CardMinAmountMinor: gateway.DefaultCardMinAmountMinor,
		AbandonTimeout:     sweeper.DefaultAbandonTimeout,
		SweepInterval:      sweeper.DefaultSweepInterval,
		SweepBatchSize:     sweeper.DefaultSweepBatchSize,
	}
}

// LoadConfig читает конфигурацию из переменных окружения поверх дефолтов.
func LoadConfig() Config {
	cfg := DefaultConfig()

	cfg.HTTPAddr = envString("STOREFRONT_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envString("STOREFRONT_METRICS_ADDR", cfg.MetricsAddr)

	cfg.PostgresDSN = envString("STOREFRONT_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.RedisAddr = envString("STOREFRONT_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envString("STOREFRONT_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = int(envInt64("STOREFRONT_REDIS_DB", int64(cfg.RedisDB)))
	if brokers := envString("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	cfg.Currency = envString("STOREFRONT_CURRENCY", cfg.Currency)
	cfg.ShippingFeeMinor = envInt64("STOREFRONT_SHIPPING_FEE_MINOR", cfg.ShippingFeeMinor)
	cfg.CardMinAmountMinor = envInt64("STOREFRONT_CARD_MIN_AMOUNT_MINOR", cfg.CardMinAmountMinor)

	cfg.Redirect.MerchantID = envString("STOREFRONT_MERCHANT_ID", cfg.Redirect.MerchantID)
	cfg.Redirect.MerchantSecret = envString("STOREFRONT_MERCHANT_SECRET", cfg.Redirect.MerchantSecret)
	cfg.Redirect.ReturnURL = envString("STOREFRONT_RETURN_URL", cfg.Redirect.ReturnURL)
	cfg.Redirect.CancelURL = envString("STOREFRONT_CANCEL_URL", cfg.Redirect.CancelURL)
	cfg.Redirect.NotifyURL = envString("STOREFRONT_NOTIFY_URL", cfg.Redirect.NotifyURL)
	cfg.Redirect.CheckoutURL = envString("STOREFRONT_CHECKOUT_URL", cfg.Redirect.CheckoutURL)

	cfg.AbandonTimeout = envDuration("STOREFRONT_ABANDON_TIMEOUT", cfg.AbandonTimeout)
	cfg.SweepInterval = envDuration("STOREFRONT_SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.SweepBatchSize = int(envInt64("STOREFRONT_SWEEP_BATCH_SIZE", int64(cfg.SweepBatchSize)))

	return cfg
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
