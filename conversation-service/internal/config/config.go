package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/weiawesome/wes-io-dm/internal/conversation"
	"github.com/weiawesome/wes-io-dm/internal/idgen"
	pkgconfig "github.com/weiawesome/wes-io-dm/pkg/config"
	"github.com/weiawesome/wes-io-dm/pkg/database"
	pkglog "github.com/weiawesome/wes-io-dm/pkg/log"
)

type Config struct {
	Server   ServerConfig
	Auth     AuthConfig
	Store    conversation.Config
	Database database.Config
	IDs      idgen.Config `mapstructure:"ids"`
	Redis    RedisConfig
	Presence PresenceConfig
	UserDir  UserDirConfig `mapstructure:"userdir"`
	Log      pkglog.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string
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

type UserDirConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("config", "./config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8089)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "wes-io-dm")
	v.SetDefault("store.driver", conversation.DriverSQL)
	v.SetDefault("store.max_text_length", conversation.DefaultMaxTextLength)
	v.SetDefault("store.auto_migrate", false)
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
	v.SetDefault("userdir.cache_ttl", "10m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "conversation-service")

	// Override from environment
	if err := pkgconfig.BindEnvs(v, map[string]string{
		"server.port":       "PORT",
		"auth.jwt_secret":   "JWT_SECRET",
		"store.driver":      "STORE_DRIVER",
		"store.mongo.uri":   "MONGO_URI",
		"store.sql.host":    "STORE_DB_HOST",
		"database.host":     "DB_HOST",
		"database.password": "DB_PASSWORD",
		"redis.address":     "REDIS_ADDRESS",
		"redis.password":    "REDIS_PASSWORD",
	}); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Store.Mongo.Timeout = parseDuration(v, "store.mongo.timeout", 5*time.Second)
	cfg.Presence.TTL = parseDuration(v, "presence.ttl", 24*time.Hour)
	cfg.UserDir.CacheTTL = parseDuration(v, "userdir.cache_ttl", 10*time.Minute)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	return pkgconfig.Duration(v, key, defaultVal)
}
