package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"timeclock/internal/timetrack"
)

// WatchPolicy polls the config file and calls onUpdate with the rebuilt
// policy whenever the file changes. Invalid edits are logged and skipped so
// the running policy stays in effect.
func WatchPolicy(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, onUpdate func(timetrack.Policy)) error {
	if path == "" {
		path = DefaultPath
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				lastMod = info.ModTime()

				policy, err := LoadPolicy(path)
				if err != nil {
					logger.Warn().Err(err).Str("path", path).Msg("Ignoring invalid policy update")
					continue
				}
				logger.Info().
					Str("timezone", policy.Location.String()).
					Bool("strict_gate", policy.StrictGate).
					Msg("Policy reloaded")
				if onUpdate != nil {
					onUpdate(policy)
				}
			}
		}
	}()

	return nil
}

// LoadPolicy reads path and returns only its policy section.
func LoadPolicy(path string) (timetrack.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return timetrack.Policy{}, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return timetrack.Policy{}, err
	}
	return cfg.Policy.Build()
}
