package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gigurra/subsaver/internal"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// app holds the wired store and everything that must be closed with it.
type app struct {
	cfg     *internal.Config
	log     zerolog.Logger
	store   *internal.Store
	replica *internal.RedisReplica
}

func openApp(ctx context.Context) *app {
	a, err := newApp(ctx, configPath)
	if err != nil {
		fail("starting", err)
	}
	return a
}

func newApp(ctx context.Context, path string) (*app, error) {
	cfg, err := internal.LoadConfigWithEnv(path)
	if err != nil {
		return nil, err
	}
	log := internal.NewLogger(cfg.Log)

	a := &app{cfg: cfg, log: log}

	var replica internal.Replica
	if cfg.Replica.Enabled {
		r, err := internal.NewRedisReplica(ctx, cfg.Replica, log)
		if err != nil {
			log.Warn().Err(err).Msg("replica unavailable, using local storage only")
		} else {
			a.replica = r
			replica = r
		}
	}

	var rates internal.RateSource
	if cfg.Rates.Enabled {
		rates = internal.NewHTTPRateSource(cfg.Rates)
	}

	notifier := internal.NewLocalNotifier(cfg.Notifications.Authorized, os.Stdout, log)
	a.store = internal.NewStore(internal.StoreOptions{
		Storage:         internal.NewStorage(internal.NewFileBlobStore(afero.NewOsFs(), cfg.DataFile), replica, log),
		Rates:           rates,
		Reminders:       internal.NewReminderScheduler(notifier, cfg.Notifications.Title, nil, log),
		Effects:         internal.NewEffectQueue(internal.EffectQueueConfig{}, log),
		DefaultCurrency: cfg.DefaultCurrency,
		Log:             log,
	})

	if err := a.store.Load(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("loading %s: %w", cfg.DataFile, err)
	}
	return a, nil
}

// Close waits for pending side effects and releases the replica connection.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Debug().Err(err).Msg("closing store")
	}
	if a.replica != nil {
		if err := a.replica.Close(); err != nil {
			a.log.Debug().Err(err).Msg("closing replica")
		}
	}
}
