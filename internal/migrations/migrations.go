package migrations

import (
	"database/sql"
	_ "embed"

	"github.com/intentlabs/agentbook/internal/db"
	"github.com/intentlabs/agentbook/internal/logger"
)

//go:embed 001_initial.sql
var mig001 string

// RunMigrations applies the state store schema to the database at dbPath.
func RunMigrations(log *logger.Logger, dbPath string) error {
	return db.RunMigrations(log, dbPath, all())
}

// RunMigrationsDB applies the state store schema against an open database.
func RunMigrationsDB(log *logger.Logger, sqlDB *sql.DB) error {
	return db.RunMigrationsDB(log, sqlDB, all())
}

func all() []db.Migration {
	return []db.Migration{
		{
			ID:  "001_initial.sql",
			SQL: mig001,
		},
	}
}
