package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-ledger/config"
	"go.uber.org/zap/zapcore"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "loans.db", cfg.Database.Path)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_FileThenEnv(t *testing.T) {
	// GIVEN: a YAML file setting port and database
	// WHEN: LOANLEDGER_SERVER_PORT is also set
	// THEN: the environment wins over the file, the file over defaults

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
  shutdown_timeout: 5s
database:
  driver: memory
logging:
  level: debug
  format: console
`), 0o600))
	t.Setenv("LOANLEDGER_SERVER_PORT", "9100")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	t.Setenv("LOANLEDGER_DATABASE_DRIVER", "postgres")
	_, err = config.Load("")
	assert.ErrorContains(t, err, "database.driver")
}

func TestNewLogger(t *testing.T) {
	logger, err := config.NewLogger(config.LoggingConfig{Level: "warn", Format: "json"}, "")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	logger, err = config.NewLogger(config.LoggingConfig{Level: "warn", Format: "console"}, "debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = config.NewLogger(config.LoggingConfig{Level: "loud"}, "")
	assert.Error(t, err)
	_, err = config.NewLogger(config.LoggingConfig{Format: "xml"}, "")
	assert.Error(t, err)
}
