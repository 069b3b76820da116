package pubsub

import (
	"fmt"
	"time"
)

const defaultBufferSize = 256

// Config holds the configuration for the pub/sub system.
type Config struct {
	Driver     string      `mapstructure:"driver"` // redis, kafka, memory
	BufferSize int         `mapstructure:"buffer_size"`
	Redis      RedisConfig `mapstructure:"redis"`
	Kafka      KafkaConfig `mapstructure:"kafka"`
}

// RedisConfig holds Redis-specific configuration.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig holds Kafka-specific configuration. Every gateway instance
// must use its own GroupID, otherwise instances split the stream instead of
// each seeing all of it.
type KafkaConfig struct {
	Brokers    string   `mapstructure:"brokers"`
	GroupID    string   `mapstructure:"group_id"`
	Partitions int      `mapstructure:"partitions"`
	Topics     []string `mapstructure:"topics"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Driver:     "redis",
		BufferSize: defaultBufferSize,
		Redis: RedisConfig{
			Address:      "localhost:6379",
			PoolSize:     10,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Partitions: 8,
			Topics:     []string{TopicChatToGateway},
		},
	}
}

// NewPubSub creates a new PubSub instance based on the configuration.
func NewPubSub(cfg Config) (PubSub, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	switch cfg.Driver {
	case "kafka":
		return NewKafkaPubSub(cfg.Kafka, cfg.BufferSize)
	case "redis", "":
		return NewRedisPubSub(cfg.Redis, cfg.BufferSize)
	case "memory":
		return NewMemoryPubSub(cfg.BufferSize), nil
	default:
		return nil, fmt.Errorf("unsupported pubsub driver: %s", cfg.Driver)
	}
}
