package db

import (
	"database/sql"
	"testing"
)

// NewTestDB returns an empty asset database for t, schema applied, closed
// when the test ends. Each call gets its own in-memory database.
func NewTestDB(t testing.TB) *sql.DB {
	t.Helper()

	conn, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		if err := conn.Close(); err != nil {
			t.Errorf("close test db: %v", err)
		}
	})

	if err := EnsureSchema(conn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	var fk int
	if err := conn.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil || fk != 1 {
		t.Fatalf("foreign keys not enforced (fk=%d, err=%v)", fk, err)
	}

	return conn
}
