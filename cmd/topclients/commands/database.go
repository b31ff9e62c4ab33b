package commands

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/teranos/topclients/am"
	"github.com/teranos/topclients/db"
	"github.com/teranos/topclients/errors"
	"github.com/teranos/topclients/logger"
)

// loadConfig loads am config and applies the --db override.
func loadConfig(cmd *cobra.Command) (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
		override := *cfg
		override.Database.Path = dbPath
		cfg = &override
	}
	return cfg, nil
}

// openDatabase opens and migrates the configured database.
func openDatabase(cfg *am.Config) (*sql.DB, error) {
	database, err := db.OpenWithMigrations(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", cfg.Database.Path)
	}
	return database, nil
}
