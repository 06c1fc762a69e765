package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

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
	UnlockRequested       string
	UnlockCancelled       string
	DealsAccepted         string
	SettlementsAuthorized string
	DeadLetter            string
}

type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
	Topics        KafkaTopics
}

type RateConfig struct {
	Limit     int
	Window    time.Duration
	RedisAddr string
}

type Config struct {
	App       base.AppConfig
	DB        DBConfig
	Kafka     KafkaConfig
	Rate      RateConfig
	JWTSecret string
	FaucetCap uint64
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
	v.SetDefault("kafka.consumer_group", "useraccount-service")
	v.SetDefault("kafka.topics.unlock_requested", "unlock.requested")
	v.SetDefault("kafka.topics.unlock_cancelled", "unlock.cancelled")
	v.SetDefault("kafka.topics.deals_accepted", "deals.accepted")
	v.SetDefault("kafka.topics.settlements_authorized", "settlements.authorized")
	v.SetDefault("kafka.topics.dead_letter", "useraccount.dlq")

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
				UnlockRequested:       envString("KAFKA_UNLOCK_REQUESTED_TOPIC", v.GetString("kafka.topics.unlock_requested")),
				UnlockCancelled:       envString("KAFKA_UNLOCK_CANCELLED_TOPIC", v.GetString("kafka.topics.unlock_cancelled")),
				DealsAccepted:         envString("KAFKA_DEALS_ACCEPTED_TOPIC", v.GetString("kafka.topics.deals_accepted")),
				SettlementsAuthorized: envString("KAFKA_SETTLEMENTS_AUTHORIZED_TOPIC", v.GetString("kafka.topics.settlements_authorized")),
				DeadLetter:            envString("KAFKA_DLQ_TOPIC", v.GetString("kafka.topics.dead_letter")),
			},
		},
		Rate: RateConfig{
			Limit:     envInt("VOILE_RATE_LIMIT", 30),
			Window:    envDuration("VOILE_RATE_WINDOW", time.Minute),
			RedisAddr: envString("VOILE_REDIS_ADDR", ""),
		},
		JWTSecret: envString("VOILE_JWT_SECRET", ""),
		FaucetCap: envUint64("VOILE_FAUCET_CAP", 0),
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if cfg.Kafka.ConsumerGroup == "" {
		return nil, fmt.Errorf("kafka consumer group required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("VOILE_JWT_SECRET required")
	}
	if cfg.Rate.Limit <= 0 || cfg.Rate.Window <= 0 {
		return nil, fmt.Errorf("rate limit and window must be positive")
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

func envUint64(key string, def uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
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
