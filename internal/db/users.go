package db

import (
	"database/sql"
	"fmt"
	"time"
)

type User struct {
	ID           string     `json:"id"`
	Handle       string     `json:"handle"`
	Email        *string    `json:"email,omitempty"`
	TokenBalance float64    `json:"token_balance"`
	Reputation   int        `json:"reputation"`
	IsValidator  bool       `json:"is_validator"`
	LedgerFrozen bool       `json:"ledger_frozen,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty"`
}

type CreateUserInput struct {
	Handle       string
	Email        string
	PasswordHash string
}

// CreateUser inserts a user and posts the signup grant in one transaction,
// so the balance-equals-sum-of-postings invariant holds from the first read.
func (db *DB) CreateUser(input CreateUserInput) (*User, error) {
	id := NewID()
	var emailPtr *string
	if input.Email != "" {
		emailPtr = &input.Email
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO users (id, handle, email, password_hash)
		VALUES (?, ?, ?, ?)`, id, input.Handle, emailPtr, input.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	if db.policy.StartingBalance > 0 {
		err = db.postTx(tx, postInput{
			UserID:      id,
			Amount:      db.policy.StartingBalance,
			Type:        TxSignupGrant,
			Description: "Signup grant",
		})
		if err != nil {
			return nil, fmt.Errorf("posting signup grant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return db.GetUserByID(id)
}

func (db *DB) GetUserByHandle(handle string) (*User, string, error) {
	u := &User{}
	var email sql.NullString
	var lastSeen sql.NullTime
	var passwordHash string
	err := db.QueryRow(`
		SELECT id, handle, email, password_hash, token_balance, reputation,
		       is_validator, ledger_frozen, created_at, last_seen_at
		FROM users WHERE handle = ?`, handle).Scan(
		&u.ID, &u.Handle, &email, &passwordHash, &u.TokenBalance, &u.Reputation,
		&u.IsValidator, &u.LedgerFrozen, &u.CreatedAt, &lastSeen)
	if err != nil {
		return nil, "", err
	}
	if email.Valid {
		u.Email = &email.String
	}
	if lastSeen.Valid {
		u.LastSeenAt = &lastSeen.Time
	}
	return u, passwordHash, nil
}

func (db *DB) GetUserByID(id string) (*User, error) {
	u := &User{}
	var email sql.NullString
	var lastSeen sql.NullTime
	err := db.QueryRow(`
		SELECT id, handle, email, token_balance, reputation,
		       is_validator, ledger_frozen, created_at, last_seen_at
		FROM users WHERE id = ?`, id).Scan(
		&u.ID, &u.Handle, &email, &u.TokenBalance, &u.Reputation,
		&u.IsValidator, &u.LedgerFrozen, &u.CreatedAt, &lastSeen)
	if err != nil {
		return nil, err
	}
	if email.Valid {
		u.Email = &email.String
	}
	if lastSeen.Valid {
		u.LastSeenAt = &lastSeen.Time
	}
	return u, nil
}

// SetValidatorByHandle grants or revokes the validator flag. The flag is
// only ever set out-of-band (CLI), never through the HTTP API.
func (db *DB) SetValidatorByHandle(handle string, isValidator bool) error {
	res, err := db.Exec("UPDATE users SET is_validator = ? WHERE handle = ?", isValidator, handle)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// TouchLastSeen updates the user's last_seen_at timestamp.
func (db *DB) TouchLastSeen(userID string) error {
	_, err := db.Exec("UPDATE users SET last_seen_at = datetime('now') WHERE id = ?", userID)
	return err
}
