package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Policy fixes the reward and reputation increments the validation engine
// applies. Values come from the [rewards] config section.
type Policy struct {
	StartingBalance     float64
	ValidatorFeePercent float64
	RejectReviewFee     float64
	SolverReputation    int
	ValidatorReputation int
}

type DB struct {
	*sql.DB
	policy Policy
}

func Open(path string, policy Policy) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db := &DB{DB: sqlDB, policy: policy}
	if err := db.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return db, nil
}

func (db *DB) migrate() error {
	_, err := db.Exec(schema)
	return err
}

// Policy returns the reward policy the engine was opened with.
func (db *DB) Policy() Policy {
	return db.policy
}
