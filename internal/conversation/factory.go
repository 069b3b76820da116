package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/weiawesome/wes-io-dm/internal/idgen"
	"github.com/weiawesome/wes-io-dm/pkg/database"
)

const (
	DriverSQL   = "sql"
	DriverMongo = "mongo"
)

// Config selects and configures the backing engine.
type Config struct {
	Driver        string          `mapstructure:"driver"`
	MaxTextLength int             `mapstructure:"max_text_length"`
	AutoMigrate   bool            `mapstructure:"auto_migrate"`
	SQL           database.Config `mapstructure:"sql"`
	Mongo         MongoConfig     `mapstructure:"mongo"`
}

// CloseFunc releases the engine's connections.
type CloseFunc func(context.Context) error

// NewStore opens the configured engine.
func NewStore(ctx context.Context, cfg Config, ids idgen.Generator) (Store, CloseFunc, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverSQL:
		db, err := database.New(&cfg.SQL)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		s := NewGormStore(db, ids, cfg.MaxTextLength)
		if cfg.AutoMigrate {
			if err := s.Migrate(ctx); err != nil {
				_ = sqlDB.Close()
				return nil, nil, fmt.Errorf("migrate conversations: %w", err)
			}
		}
		return s, func(context.Context) error { return sqlDB.Close() }, nil

	case DriverMongo:
		s, err := NewMongoStore(ctx, cfg.Mongo, ids, cfg.MaxTextLength)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
