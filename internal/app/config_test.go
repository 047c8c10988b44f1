package app

import (
	"reflect"
	"testing"

	"github.com/vladislavdragonenkov/mediashop/internal/messaging/kafka"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"MEDIASHOP_GRPC_ADDR",
		"MEDIASHOP_METRICS_ADDR",
		"MEDIASHOP_POSTGRES_DSN",
		"MEDIASHOP_REDIS_ADDR",
		"KAFKA_BROKERS",
		"MEDIASHOP_OUTBOX_TOPIC",
		"MEDIASHOP_SEED_CATALOG",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfigFromEnv()

	if cfg.GRPCAddr != ":50051" || cfg.MetricsAddr != ":9090" {
		t.Fatalf("addresses: %+v", cfg)
	}
	if cfg.PostgresDSN != "" || cfg.RedisAddr != "" || len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("external stores must default to disabled: %+v", cfg)
	}
	if cfg.OutboxTopic != kafka.TopicOrderEvents {
		t.Fatalf("outbox topic = %q", cfg.OutboxTopic)
	}
	if !cfg.SeedCatalog {
		t.Fatal("seed catalog must default to true")
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("MEDIASHOP_GRPC_ADDR", ":6000")
	t.Setenv("MEDIASHOP_METRICS_ADDR", ":6001")
	t.Setenv("MEDIASHOP_POSTGRES_DSN", "postgres://app:app@db:5432/mediashop")
	t.Setenv("MEDIASHOP_REDIS_ADDR", "redis:6379")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092, ,")
	t.Setenv("MEDIASHOP_OUTBOX_TOPIC", "orders.events.v2")
	t.Setenv("MEDIASHOP_SEED_CATALOG", "false")

	cfg := LoadConfigFromEnv()

	if cfg.GRPCAddr != ":6000" || cfg.MetricsAddr != ":6001" {
		t.Fatalf("addresses: %+v", cfg)
	}
	if cfg.PostgresDSN != "postgres://app:app@db:5432/mediashop" || cfg.RedisAddr != "redis:6379" {
		t.Fatalf("store settings: %+v", cfg)
	}
	// Пустые элементы списка брокеров отбрасываются.
	want := []string{"kafka-1:9092", "kafka-2:9092"}
	if !reflect.DeepEqual(cfg.KafkaBrokers, want) {
		t.Fatalf("brokers = %v, want %v", cfg.KafkaBrokers, want)
	}
	if cfg.OutboxTopic != "orders.events.v2" {
		t.Fatalf("topic = %q", cfg.OutboxTopic)
	}
	if cfg.SeedCatalog {
		t.Fatal("seed catalog override must apply")
	}
}
