package app

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/vladislavdragonenkov/mediashop/internal/messaging/kafka"
)

// Config описывает настройки запуска fulfillment-сервиса.
//
// Пустой PostgresDSN означает in-memory хранилище, пустой RedisAddr
// оставляет корзины в памяти, пустой список брокеров отключает Kafka.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	PostgresDSN string
	RedisAddr   string

	KafkaBrokers []string
	OutboxTopic  string

	// SeedCatalog наполняет in-memory каталог демо-товарами.
	SeedCatalog bool
}

// DefaultConfig возвращает базовые адреса и in-memory хранилища.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",
		OutboxTopic: kafka.TopicOrderEvents,
		SeedCatalog: true,
	}
}

// LoadConfigFromEnv собирает конфигурацию из окружения.
// Файл .env подхватывается, если он есть; его отсутствие не ошибка.
func LoadConfigFromEnv() Config {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if v := os.Getenv("MEDIASHOP_GRPC_ADDR"); v != "" {
		cfg.GRPCAddr = v
	}
	if v := os.Getenv("MEDIASHOP_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("MEDIASHOP_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("MEDIASHOP_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitBrokers(v)
	}
	if v := os.Getenv("MEDIASHOP_OUTBOX_TOPIC"); v != "" {
		cfg.OutboxTopic = v
	}
	if v := os.Getenv("MEDIASHOP_SEED_CATALOG"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.SeedCatalog = parsed
		}
	}

	return cfg
}

func splitBrokers(raw string) []string {
	parts := strings.Split(raw, ",")
	brokers := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}
