package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	base "github.com/zakkycrypt01/voile/libs/config"
	"github.com/spf13/viper"
)

type DBConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

type KafkaTopics struct {
	UnlockRequested string
	UnlockCancelled string
	OffersCreated   string
	OffersCancelled string
	DealsMatched    string
	DeadLetter      string
}

type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
	Topics        KafkaTopics
}

type Config struct {
	App    base.AppConfig
	DB     DBConfig
	Kafka  KafkaConfig
	PoolID string
}

func Load() (*Config, error) {
	appCfg, err := base.Load(os.Getenv("VOILE_CONFIG"))
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("VOILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := os.Getenv("VOILE_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.consumer_group", "matching-service")
	v.SetDefault("kafka.topics.unlock_requested", "unlock.requested")
	v.SetDefault("kafka.topics.unlock_cancelled", "unlock.cancelled")
	v.SetDefault("kafka.topics.offers_created", "offers.created")
	v.SetDefault("kafka.topics.offers_cancelled", "offers.cancelled")
	v.SetDefault("kafka.topics.deals_matched", "deals.matched")
	v.SetDefault("kafka.topics.dead_letter", "matching.dlq")
	v.SetDefault("pool_id", "main")

	cfg := &Config{
		App: *appCfg,
		DB: DBConfig{
			Host:     envString("POSTGRES_HOST", "localhost"),
			Port:     envInt("POSTGRES_PORT", 5432),
			Name:     envString("POSTGRES_DB", "voile"),
			User:     envString("POSTGRES_USER", "voile"),
			Password: envString("POSTGRES_PASSWORD", "voile"),
			SSLMode:  envString("POSTGRES_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Brokers:       envCSV("KAFKA_BROKERS", v.GetStringSlice("kafka.brokers")),
			ConsumerGroup: envString("KAFKA_CONSUMER_GROUP", v.GetString("kafka.consumer_group")),
			Topics: KafkaTopics{
				UnlockRequested: envString("KAFKA_UNLOCK_REQUESTED_TOPIC", v.GetString("kafka.topics.unlock_requested")),
				UnlockCancelled: envString("KAFKA_UNLOCK_CANCELLED_TOPIC", v.GetString("kafka.topics.unlock_cancelled")),
				OffersCreated:   envString("KAFKA_OFFERS_CREATED_TOPIC", v.GetString("kafka.topics.offers_created")),
				OffersCancelled: envString("KAFKA_OFFERS_CANCELLED_TOPIC", v.GetString("kafka.topics.offers_cancelled")),
				DealsMatched:    envString("KAFKA_DEALS_MATCHED_TOPIC", v.GetString("kafka.topics.deals_matched")),
				DeadLetter:      envString("KAFKA_DLQ_TOPIC", v.GetString("kafka.topics.dead_letter")),
			},
		},
		PoolID: envString("VOILE_POOL_ID", v.GetString("pool_id")),
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if cfg.Kafka.ConsumerGroup == "" {
		return nil, fmt.Errorf("kafka consumer group required")
	}
	if cfg.PoolID == "" {
		return nil, fmt.Errorf("pool id required")
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envCSV(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
