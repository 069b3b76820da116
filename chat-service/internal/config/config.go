package config

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/weiawesome/wes-io-dm/internal/conversation"
	"github.com/weiawesome/wes-io-dm/internal/idgen"
	pkgconfig "github.com/weiawesome/wes-io-dm/pkg/config"
	"github.com/weiawesome/wes-io-dm/pkg/database"
	pkglog "github.com/weiawesome/wes-io-dm/pkg/log"
	"github.com/weiawesome/wes-io-dm/pkg/pubsub"
)

type Config struct {
	Instance   InstanceConfig
	Server     ServerConfig
	GRPC       GRPCConfig
	WebSocket  WebSocketConfig
	Auth       AuthConfig
	Typing     TypingConfig
	Store      conversation.Config
	Database   database.Config
	IDs        idgen.Config `mapstructure:"ids"`
	Redis      RedisConfig
	Presence   PresenceConfig
	Membership MembershipConfig
	UserDir    UserDirConfig `mapstructure:"userdir"`
	PubSub     pubsub.Config `mapstructure:"pubsub"`
	Events     EventsConfig
	Log        pkglog.Config
}

type InstanceConfig struct {
	ID string
}

type ServerConfig struct {
	Host string
	Port int
}

type GRPCConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBufferSize int           `mapstructure:"send_buffer_size"`
}

type AuthConfig struct {
	JWTSecret           string `mapstructure:"jwt_secret"`
	Issuer              string
	AllowInsecureUserID bool `mapstructure:"allow_insecure_user_id"`
}

type TypingConfig struct {
	ExcludeSender bool `mapstructure:"exclude_sender"`
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type PresenceConfig struct {
	Driver string // redis, memory
	TTL    time.Duration
}

type MembershipConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	CDC      CDCConfig
}

// CDCConfig enables cache invalidation from Debezium when Brokers is set.
type CDCConfig struct {
	Brokers string
	Topic   string
	GroupID string `mapstructure:"group_id"`
}

type UserDirConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// EventsConfig configures the dm-events stream. An empty Brokers disables
// it.
type EventsConfig struct {
	Brokers    string
	Topic      string
	Partitions int
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("config", "./config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("instance.id", "")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8088)
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50052)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.send_buffer_size", 256)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "wes-io-dm")
	v.SetDefault("auth.allow_insecure_user_id", false)
	v.SetDefault("typing.exclude_sender", true)
	v.SetDefault("store.driver", conversation.DriverSQL)
	v.SetDefault("store.max_text_length", conversation.DefaultMaxTextLength)
	v.SetDefault("store.auto_migrate", true)
	v.SetDefault("store.sql.driver", "postgres")
	v.SetDefault("store.sql.host", "localhost")
	v.SetDefault("store.sql.port", 5432)
	v.SetDefault("store.sql.user", "postgres")
	v.SetDefault("store.sql.password", "postgres")
	v.SetDefault("store.sql.dbname", "wes_io_dm")
	v.SetDefault("store.sql.sslmode", "disable")
	v.SetDefault("store.sql.log_level", "warn")
	v.SetDefault("store.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo.database", "wes_io_dm")
	v.SetDefault("store.mongo.collection", "conversations")
	v.SetDefault("store.mongo.timeout", "5s")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "wes_io_dm")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("ids.kind", idgen.KindULID)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("presence.driver", "redis")
	v.SetDefault("presence.ttl", "24h")
	v.SetDefault("membership.cache_ttl", "5m")
	v.SetDefault("membership.cdc.brokers", "")
	v.SetDefault("membership.cdc.topic", "dbserver.public.connection_requests")
	v.SetDefault("membership.cdc.group_id", "chat-service-membership")
	v.SetDefault("userdir.cache_ttl", "10m")
	v.SetDefault("pubsub.driver", "redis")
	v.SetDefault("pubsub.buffer_size", 256)
	v.SetDefault("pubsub.redis.address", "localhost:6379")
	v.SetDefault("pubsub.kafka.partitions", 8)
	v.SetDefault("pubsub.kafka.topics", []string{pubsub.TopicChatToGateway})
	v.SetDefault("events.brokers", "")
	v.SetDefault("events.topic", "dm-events")
	v.SetDefault("events.partitions", 8)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "chat-service")

	// Override from environment
	if err := pkgconfig.BindEnvs(v, map[string]string{
		"instance.id":                 "INSTANCE_ID",
		"server.port":                 "PORT",
		"grpc.port":                   "GRPC_PORT",
		"auth.jwt_secret":             "JWT_SECRET",
		"auth.allow_insecure_user_id": "ALLOW_INSECURE_USER_ID",
		"store.driver":                "STORE_DRIVER",
		"store.mongo.uri":             "MONGO_URI",
		"database.host":               "DB_HOST",
		"database.password":           "DB_PASSWORD",
		"redis.address":               "REDIS_ADDRESS",
		"redis.password":              "REDIS_PASSWORD",
		"pubsub.driver":               "PUBSUB_DRIVER",
		"pubsub.redis.address":        "REDIS_ADDRESS",
		"pubsub.kafka.brokers":        "KAFKA_BROKERS",
		"events.brokers":              "KAFKA_BROKERS",
		"membership.cdc.brokers":      "CDC_KAFKA_BROKERS",
	}); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Store.Mongo.Timeout = parseDuration(v, "store.mongo.timeout", 5*time.Second)
	cfg.Presence.TTL = parseDuration(v, "presence.ttl", 24*time.Hour)
	cfg.Membership.CacheTTL = parseDuration(v, "membership.cache_ttl", 5*time.Minute)
	cfg.UserDir.CacheTTL = parseDuration(v, "userdir.cache_ttl", 10*time.Minute)

	if cfg.Instance.ID == "" {
		cfg.Instance.ID = uuid.NewString()
	}
	// Each gateway must see every relayed event.
	if cfg.PubSub.Kafka.GroupID == "" {
		cfg.PubSub.Kafka.GroupID = "chat-gateway-" + cfg.Instance.ID
	}

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	return pkgconfig.Duration(v, key, defaultVal)
}
