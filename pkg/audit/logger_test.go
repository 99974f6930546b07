package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestLogger(t *testing.T) *SQLiteLogger {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	l := NewSQLiteLogger(sqlDB)
	if err := l.Init(); err != nil {
		t.Fatalf("initializing schema: %v", err)
	}
	return l
}

func countEntries(t *testing.T, l *SQLiteLogger) int {
	t.Helper()
	var n int
	if err := l.db.QueryRow("SELECT COUNT(*) FROM audit_log").Scan(&n); err != nil {
		t.Fatalf("counting entries: %v", err)
	}
	return n
}

func TestLogFillsDefaults(t *testing.T) {
	l := newTestLogger(t)
	defer l.Close()

	entry := &Entry{Action: "create_problem", UserID: "u1"}
	if err := l.Log(context.Background(), entry); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if entry.EntryID == "" || entry.Timestamp == 0 {
		t.Errorf("defaults not filled: %+v", entry)
	}
	if entry.Status != "success" || entry.Transport != "http" {
		t.Errorf("status/transport = %q/%q, want success/http", entry.Status, entry.Transport)
	}

	var status, transport string
	err := l.db.QueryRow("SELECT status, transport FROM audit_log WHERE entry_id = ?",
		entry.EntryID).Scan(&status, &transport)
	if err != nil {
		t.Fatalf("reading entry back: %v", err)
	}
	if status != "success" || transport != "http" {
		t.Errorf("stored status/transport = %q/%q", status, transport)
	}
}

func TestLogErrorStatus(t *testing.T) {
	l := newTestLogger(t)
	defer l.Close()

	entry := &Entry{Action: "validate_solution", Error: "solution already validated"}
	if err := l.Log(context.Background(), entry); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if entry.Status != "error" {
		t.Errorf("status = %q, want error", entry.Status)
	}
}

func TestLogAsyncFlushOnClose(t *testing.T) {
	l := newTestLogger(t)

	for i := 0; i < 5; i++ {
		l.LogAsync(&Entry{Action: "submit_solution", Transport: "mcp"})
	}
	// Close drains the buffer before returning.
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := countEntries(t, l); n != 5 {
		t.Errorf("entries after close = %d, want 5", n)
	}
}

func TestCloseIdempotent(t *testing.T) {
	l := newTestLogger(t)
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
