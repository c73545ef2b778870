package db

import (
	"testing"
)

func TestMigrate_CreatesAllTables(t *testing.T) {
	database, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	if err := Migrate(database); err != nil {
		t.Fatal(err)
	}

	tables := []string{
		"schema_version",
		"markets",
		"market_snapshots",
		"cycles",
		"order_decisions",
		"submissions",
		"bankroll_snapshots",
	}

	for _, table := range tables {
		row := database.QueryRow(
			`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, table)
		var count int
		if err := row.Scan(&count); err != nil {
			t.Fatalf("checking table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s not found", table)
		}
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	database, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	// Run twice; should not error.
	if err := Migrate(database); err != nil {
		t.Fatal(err)
	}
	if err := Migrate(database); err != nil {
		t.Fatal(err)
	}

	var versions int
	if err := database.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&versions); err != nil {
		t.Fatal(err)
	}
	if versions != 1 {
		t.Errorf("expected 1 schema version row, got %d", versions)
	}

	v, err := Version(database)
	if err != nil {
		t.Fatal(err)
	}
	if v != SchemaVersion {
		t.Errorf("expected schema version %d, got %d", SchemaVersion, v)
	}
}

func TestMigrate_ForeignKeysEnforced(t *testing.T) {
	database, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	if err := Migrate(database); err != nil {
		t.Fatal(err)
	}

	// A snapshot for an unknown market must be refused.
	_, err = database.Exec(`
		INSERT INTO market_snapshots (market_id, bid, ask, midpoint, spread, volume, taken_at)
		VALUES ('missing', 0.45, 0.55, 0.5, 0.1, 10, '2026-01-01T00:00:00Z')`)
	if err == nil {
		t.Error("expected foreign key violation")
	}

	_, err = database.Exec(`INSERT INTO markets (id, token_id) VALUES ('m1', 'YES')`)
	if err != nil {
		t.Fatal(err)
	}
	_, err = database.Exec(`
		INSERT INTO market_snapshots (market_id, bid, ask, midpoint, spread, volume, taken_at)
		VALUES ('m1', 0.45, 0.55, 0.5, 0.1, 10, '2026-01-01T00:00:00Z')`)
	if err != nil {
		t.Fatal(err)
	}
}
