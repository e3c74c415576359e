package app

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("unexpected http addr: %s", cfg.HTTPAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("unexpected metrics addr: %s", cfg.MetricsAddr)
	}
	if cfg.Currency != "LKR" {
		t.Errorf("unexpected currency: %s", cfg.Currency)
	}
	if cfg.ShippingFeeMinor != 1000 {
		t.Errorf("unexpected shipping fee: %d", cfg.ShippingFeeMinor)
	}
	if cfg.AbandonTimeout != 30*time.Minute {
		t.Errorf("unexpected abandon timeout: %s", cfg.AbandonTimeout)
	}
	if cfg.SweepInterval != 10*time.Minute {
		t.Errorf("unexpected sweep interval: %s", cfg.SweepInterval)
	}
	if cfg.SweepBatchSize != 500 {
		t.Errorf("unexpected sweep batch size: %d", cfg.SweepBatchSize)
	}
	if cfg.PostgresDSN != "" || cfg.RedisAddr != "" || len(cfg.KafkaBrokers) != 0 {
		t.Error("external dependencies must be disabled by default")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("STOREFRONT_HTTP_ADDR", ":18080")
	t.Setenv("STOREFRONT_POSTGRES_DSN", "postgres://app:app@db:5432/storefront")
	t.Setenv("STOREFRONT_REDIS_ADDR", "redis:6379")
	t.Setenv("STOREFRONT_REDIS_DB", "3")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("STOREFRONT_SHIPPING_FEE_MINOR", "2500")
	t.Setenv("STOREFRONT_ABANDON_TIMEOUT", "45m")
	t.Setenv("STOREFRONT_MERCHANT_ID", "121XXXX")

	cfg := LoadConfig()

	if cfg.HTTPAddr != ":18080" {
		t.Errorf("unexpected http addr: %s", cfg.HTTPAddr)
	}
	if cfg.PostgresDSN != "postgres://app:app@db:5432/storefront" {
		t.Errorf("unexpected dsn: %s", cfg.PostgresDSN)
	}
	if cfg.RedisAddr != "redis:6379" || cfg.RedisDB != 3 {
		t.Errorf("unexpected redis settings: %s/%d", cfg.RedisAddr, cfg.RedisDB)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "kafka-1:9092" {
		t.Errorf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
	if cfg.ShippingFeeMinor != 2500 {
		t.Errorf("unexpected shipping fee: %d", cfg.ShippingFeeMinor)
	}
	if cfg.AbandonTimeout != 45*time.Minute {
		t.Errorf("unexpected abandon timeout: %s", cfg.AbandonTimeout)
	}
	if cfg.Redirect.MerchantID != "121XXXX" {
		t.Errorf("unexpected merchant id: %s", cfg.Redirect.MerchantID)
	}
}

func TestLoadConfigIgnoresInvalidValues(t *testing.T) {
	t.Setenv("STOREFRONT_SHIPPING_FEE_MINOR", "not-a-number")
	t.Setenv("STOREFRONT_SWEEP_INTERVAL", "soon")

	cfg := LoadConfig()

	if cfg.ShippingFeeMinor != 1000 {
		t.Errorf("invalid int must fall back to default, got %d", cfg.ShippingFeeMinor)
	}
	if cfg.SweepInterval != 10*time.Minute {
		t.Errorf("invalid duration must fall back to default, got %s", cfg.SweepInterval)
	}
}
