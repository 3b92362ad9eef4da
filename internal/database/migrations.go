package database

import (
	"database/sql"
	"fmt"
)

type migration struct {
	name string
	up   func(*sql.DB) error
}

var migrations = []migration{
	{"create_client_packages_table", execAll(
		`CREATE TABLE IF NOT EXISTS client_packages (
			id TEXT PRIMARY KEY,
			package_id TEXT UNIQUE NOT NULL,
			display_name TEXT,
			command TEXT NOT NULL,
			args TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_client_packages_package_id ON client_packages(package_id)`,
	)},
	{"create_audit_logs_table", execAll(
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			action TEXT NOT NULL,
			resource_type TEXT NOT NULL,
			resource_id TEXT,
			outcome TEXT NOT NULL DEFAULT 'success',
			details TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action)`,
	)},
	{"add_client_packages_actions_column", func(db *sql.DB) error {
		return addColumnIfNotExists(db, "client_packages", "actions", "TEXT NOT NULL DEFAULT '[]'")
	}},
	{"add_audit_logs_robot_column", func(db *sql.DB) error {
		if err := addColumnIfNotExists(db, "audit_logs", "robot", "TEXT"); err != nil {
			return err
		}
		_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_logs_robot ON audit_logs(robot)`)
		return err
	}},
}

func execAll(stmts ...string) func(*sql.DB) error {
	return func(db *sql.DB) error {
		for _, stmt := range stmts {
			if _, err := db.Exec(stmt); err != nil {
				return err
			}
		}
		return nil
	}
}

func runMigrations(db *sql.DB) error {
	if err := createMigrationsTable(db); err != nil {
		return err
	}

	batch, err := nextBatch(db)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		done, err := hasMigrationRun(db, m.name)
		if err != nil {
			return err
		}
		if done {
			continue
		}
		if err := m.up(db); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		if err := recordMigration(db, m.name, batch); err != nil {
			return err
		}
	}
	return nil
}

func createMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		migration TEXT UNIQUE NOT NULL,
		batch INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func recordMigration(db *sql.DB, name string, batch int) error {
	_, err := db.Exec(`INSERT INTO migrations (migration, batch) VALUES (?, ?)`, name, batch)
	return err
}

func hasMigrationRun(db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM migrations WHERE migration = ?`, name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func nextBatch(db *sql.DB) (int, error) {
	var batch sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(batch) FROM migrations`).Scan(&batch); err != nil {
		return 0, err
	}
	return int(batch.Int64) + 1, nil
}

func addColumnIfNotExists(db *sql.DB, table, column, definition string) error {
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column,
	).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err = db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}
