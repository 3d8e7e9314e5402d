package floorbot

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func DefaultTestConfig(t testing.TB) *Config {
	t.Helper()
	tmpdir := t.TempDir()
	cfg := DefaultConfig()

	cfg.DatabaseType = dbTypeSQLite
	cfg.Database = filepath.Join(
		tmpdir,
		fmt.Sprintf(
			"%s.sqlite3",
			strings.ReplaceAll(t.Name(), "/", "_"),
		),
	)
	cfg.StartupTimeout = 5 * time.Second
	cfg.ShutdownTimeout = 10 * time.Second

	// no outbound throttling in tests
	cfg.RequestsPerSecond = 0

	logLevel := slog.LevelWarn
	cfg.LogLevel.Set(logLevel)
	cfg.DatabaseLogLevel.Set(logLevel)
	cfg.Marketplace.LogLevel.Set(logLevel)
	cfg.CNFT.LogLevel.Set(logLevel)
	cfg.Discord.LogLevel.Set(logLevel)
	cfg.Discord.DiscordGoLogLevel.Set(logLevel)
	cfg.API.LogLevel.Set(logLevel)

	return cfg
}

func newTestBot(t testing.TB, cfg *Config) *Bot {
	t.Helper()
	bot, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(
		func() {
			_ = bot.Close()
		},
	)
	return bot
}
