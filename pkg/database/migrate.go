package database

import (
	"database/sql"
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
)

const migrationTable = "schema_migrations"

// Migrate applies (or with down=true, rolls back) migrations from source.
// max limits how many are applied; zero means all.
func Migrate(db *sql.DB, source migrate.MigrationSource, down bool, max int) (int, error) {
	ms := migrate.MigrationSet{TableName: migrationTable}

	dir := migrate.Up
	if down {
		dir = migrate.Down
	}

	n, err := ms.ExecMax(db, "postgres", source, dir, max)
	if err != nil {
		return n, fmt.Errorf("migrate %s: %w", directionName(dir), err)
	}
	return n, nil
}

// PendingMigrations lists the IDs that an upward run would apply.
func PendingMigrations(db *sql.DB, source migrate.MigrationSource) ([]string, error) {
	ms := migrate.MigrationSet{TableName: migrationTable}

	planned, _, err := ms.PlanMigration(db, "postgres", source, migrate.Up, 0)
	if err != nil {
		return nil, fmt.Errorf("plan migrations: %w", err)
	}

	ids := make([]string, 0, len(planned))
	for _, m := range planned {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

func directionName(d migrate.MigrationDirection) string {
	if d == migrate.Down {
		return "down"
	}
	return "up"
}
