package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"

	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/config"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/database"
)

// schema is the part of golang-migrate this tool drives.
type schema interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Version() (uint, bool, error)
}

func main() {
	var (
		action  = flag.String("action", "up", "Migration action: up, down, status, force")
		steps   = flag.Int("steps", 0, "Number of migrations to apply (up) or roll back (down); 0 = all")
		version = flag.Int("version", -1, "Version to force (force action)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	m, err := database.NewMigrator(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to create migrator", "error", err)
		os.Exit(1)
	}
	defer m.Close()

	if err := runAction(m, *action, *steps, *version); err != nil {
		slog.Error("migration failed", "action", *action, "error", err)
		os.Exit(1)
	}

	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		slog.Info("no migrations applied")
	case err != nil:
		slog.Error("failed to read schema version", "error", err)
		os.Exit(1)
	default:
		slog.Info("schema version", "version", v, "dirty", dirty)
	}
}

func runAction(m schema, action string, steps, version int) error {
	var err error
	switch action {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "status":
		return nil
	case "force":
		if version < 0 {
			return fmt.Errorf("force requires -version")
		}
		err = m.Force(version)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
