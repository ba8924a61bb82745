package main

import (
	"context"
	"fmt"

	"github.com/warp/trialdb/config"
	"github.com/warp/trialdb/store/postgres"
	"github.com/warp/trialdb/store/sqlite"
	"github.com/warp/trialdb/trial"
)

// openStore connects to the configured engine.
func openStore(ctx context.Context, cfg config.Config) (trial.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverPostgres:
		pg := cfg.Postgres
		s, err := postgres.New(ctx, postgres.Options{
			DSN:      pg.DSN,
			Host:     pg.Host,
			Port:     pg.Port,
			User:     pg.User,
			Password: pg.Password,
			Database: pg.Database,
			Schema:   pg.Schema,
			SSLMode:  pg.SSLMode,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, &trial.ConfigurationError{Op: "open store", Err: fmt.Errorf("unknown driver %q", cfg.Driver)}
}
