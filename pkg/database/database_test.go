package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type widget struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex"`
}

func TestDialector_UnsupportedDriver(t *testing.T) {
	_, err := Dialector(&Config{Driver: "oracle"})
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestDialector_SQLiteRequiresPath(t *testing.T) {
	_, err := Dialector(&Config{Driver: "sqlite"})
	assert.Error(t, err)
}

func TestDialector_KnownDrivers(t *testing.T) {
	for _, d := range []string{"postgres", "mysql"} {
		dial, err := Dialector(&Config{Driver: d, Host: "localhost", Port: 1, DBName: "x"})
		require.NoError(t, err, d)
		assert.Equal(t, d, dial.Name())
	}
}

func TestNew_SQLiteTranslatesDuplicateKey(t *testing.T) {
	db, err := New(&Config{
		Driver:   "sqlite",
		FilePath: filepath.Join(t.TempDir(), "test.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db, &widget{}))

	require.NoError(t, db.Create(&widget{Name: "a"}).Error)
	err = db.Create(&widget{Name: "a"}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestLogger_LogModeReturnsCopy(t *testing.T) {
	base := NewLogger("warn", 0).(*zerologGorm)
	quiet := base.LogMode(logger.Silent).(*zerologGorm)

	assert.Equal(t, logger.Warn, base.level)
	assert.Equal(t, logger.Silent, quiet.level)
	assert.Equal(t, 200*time.Millisecond, base.slow)

	called := false
	quiet.Trace(context.Background(), time.Now(), func() (string, int64) {
		called = true
		return "", 0
	}, nil)
	assert.False(t, called)
}
