package database

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	return db
}

func TestRecordMigration(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if err := createMigrationsTable(db); err != nil {
		t.Fatalf("failed to create migrations table: %v", err)
	}
	if err := recordMigration(db, "test_migration", 1); err != nil {
		t.Fatalf("failed to record migration: %v", err)
	}

	var name string
	var batch int
	err := db.QueryRow(`SELECT migration, batch FROM migrations WHERE migration = ?`, "test_migration").
		Scan(&name, &batch)
	if err != nil {
		t.Fatalf("failed to query migration: %v", err)
	}
	if name != "test_migration" || batch != 1 {
		t.Errorf("got (%q, %d), want (test_migration, 1)", name, batch)
	}

	hasRun, err := hasMigrationRun(db, "test_migration")
	if err != nil {
		t.Fatalf("failed to check migration: %v", err)
	}
	if !hasRun {
		t.Error("expected recorded migration to be reported as run")
	}
	hasRun, _ = hasMigrationRun(db, "nonexistent")
	if hasRun {
		t.Error("expected unknown migration to be reported as not run")
	}
}

func TestRunMigrations(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if err := runMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	for _, table := range []string{"client_packages", "audit_logs", "migrations"} {
		var count int
		err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}

	var recorded int
	if err := db.QueryRow(`SELECT COUNT(*) FROM migrations`).Scan(&recorded); err != nil {
		t.Fatalf("failed to count migrations: %v", err)
	}
	if recorded != len(migrations) {
		t.Errorf("expected %d recorded migrations, got %d", len(migrations), recorded)
	}
}

func TestRunMigrationsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := runMigrations(db); err != nil {
			t.Fatalf("run %d failed: %v", i+1, err)
		}
	}

	var batches int
	if err := db.QueryRow(`SELECT COUNT(DISTINCT batch) FROM migrations`).Scan(&batches); err != nil {
		t.Fatalf("failed to count batches: %v", err)
	}
	if batches != 1 {
		t.Errorf("second run should not record anything, got %d batches", batches)
	}
}

func TestMigrationUpgradesOldSchema(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	// A database created before the actions and robot columns existed.
	_, err := db.Exec(`
		CREATE TABLE client_packages (
			id TEXT PRIMARY KEY,
			package_id TEXT UNIQUE NOT NULL,
			display_name TEXT,
			command TEXT NOT NULL,
			args TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE audit_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			action TEXT NOT NULL,
			resource_type TEXT NOT NULL,
			resource_id TEXT,
			outcome TEXT NOT NULL DEFAULT 'success',
			details TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		INSERT INTO client_packages (id, package_id, command) VALUES ('c1', 'org.ros.nav', '/usr/bin/nav');
	`)
	if err != nil {
		t.Fatalf("failed to create old schema: %v", err)
	}

	if err := runMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	var actions string
	if err := db.QueryRow(`SELECT actions FROM client_packages WHERE id = 'c1'`).Scan(&actions); err != nil {
		t.Fatalf("failed to read migrated row: %v", err)
	}
	if actions != "[]" {
		t.Errorf("expected default actions '[]', got %q", actions)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('audit_logs') WHERE name = 'robot'`).Scan(&count)
	if err != nil {
		t.Fatalf("failed to inspect audit_logs: %v", err)
	}
	if count != 1 {
		t.Error("audit_logs should have a robot column after migration")
	}
}

func TestAddColumnIfNotExists(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE t (id INTEGER)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := addColumnIfNotExists(db, "t", "extra", "TEXT"); err != nil {
			t.Fatalf("call %d failed: %v", i+1, err)
		}
	}
}
