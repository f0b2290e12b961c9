package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeclock/internal/timetrack"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "data/timeclock.db", cfg.Database.Path)
	assert.Equal(t, 2, cfg.Database.MaxRetries)
	assert.Equal(t, 8090, cfg.Monitoring.HealthCheckPort)
	assert.Equal(t, 24*time.Hour, cfg.Backup.Interval())
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel())

	policy, err := cfg.Policy.Build()
	require.NoError(t, err)
	def := timetrack.DefaultPolicy()
	assert.Equal(t, def.Location.String(), policy.Location.String())
	assert.Equal(t, def.MinRest, policy.MinRest)
	assert.Equal(t, def.MaxWeeklyWork, policy.MaxWeeklyWork)
	assert.True(t, policy.StrictGate)
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("TIMECLOCK_TEST_DSN", "postgres://clock@db/timeclock")
	t.Setenv("TIMECLOCK_TEST_KEY", "secret")

	cfg, err := Parse([]byte(`
http:
  api_key: ${TIMECLOCK_TEST_KEY}
database:
  driver: Postgres
  dsn: ${TIMECLOCK_TEST_DSN}
`))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://clock@db/timeclock", cfg.Database.DSN)
	assert.Equal(t, "secret", cfg.HTTP.APIKey)
}

func TestParse_Policy(t *testing.T) {
	cfg, err := Parse([]byte(`
policy:
  timezone: Europe/Madrid
  min_rest_minutes: 30
  lunch_window_start_hour: 13
  lunch_window_end_hour: 16
  max_lunch_minutes: 45
  max_daily_work_minutes: 480
  max_weekly_work_minutes: 2400
  strict_gate: false
`))
	require.NoError(t, err)

	policy, err := cfg.Policy.Build()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Madrid", policy.Location.String())
	assert.Equal(t, 30*time.Minute, policy.MinRest)
	assert.Equal(t, 13, policy.LunchWindowStart)
	assert.Equal(t, 16, policy.LunchWindowEnd)
	assert.Equal(t, 45*time.Minute, policy.MaxLunch)
	assert.Equal(t, 8*time.Hour, policy.MaxDailyWork)
	assert.Equal(t, 40*time.Hour, policy.MaxWeeklyWork)
	assert.False(t, policy.StrictGate)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"UnknownDriver", "database:\n  driver: mongo\n"},
		{"PostgresWithoutDSN", "database:\n  driver: postgres\n"},
		{"KafkaWithoutBrokers", "kafka:\n  enabled: true\n"},
		{"TelegramPlaceholderToken", "telegram:\n  enabled: true\n  bot_token: YOUR_BOT_TOKEN_HERE\n"},
		{"BadTimezone", "policy:\n  timezone: Mars/Olympus\n"},
		{"EmptyLunchWindow", "policy:\n  lunch_window_start_hour: 15\n  lunch_window_end_hour: 14\n"},
		{"LunchWindowStartWithoutEnd", "policy:\n  lunch_window_start_hour: 13\n"},
		{"BadLogLevel", "log:\n  level: loud\n"},
		{"Malformed", "http: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_CreatesDatabaseDir(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "nested", "clock.db")
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  path: "+dbPath+"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dbPath, cfg.Database.Path)
	assert.DirExists(t, filepath.Dir(dbPath))

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestWatchPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("policy:\n  min_rest_minutes: 60\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := zerolog.New(io.Discard)

	updates := make(chan timetrack.Policy, 4)
	err := WatchPolicy(ctx, path, 10*time.Millisecond, &logger, func(p timetrack.Policy) {
		updates <- p
	})
	require.NoError(t, err)

	// an invalid edit is skipped
	require.NoError(t, os.WriteFile(path, []byte("policy:\n  timezone: Nowhere/Land\n"), 0o600))
	bump(t, path, time.Now().Add(time.Second))

	select {
	case p := <-updates:
		t.Fatalf("unexpected update %+v", p)
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(path, []byte("policy:\n  min_rest_minutes: 15\n"), 0o600))
	bump(t, path, time.Now().Add(2*time.Second))

	select {
	case p := <-updates:
		assert.Equal(t, 15*time.Minute, p.MinRest)
	case <-time.After(2 * time.Second):
		t.Fatal("policy update not delivered")
	}
}

func bump(t *testing.T, path string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestWatchPolicy_MissingFile(t *testing.T) {
	logger := zerolog.New(io.Discard)
	err := WatchPolicy(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"), time.Second, &logger, nil)
	assert.Error(t, err)
}
