package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

// Transaction types. The ledger accepts nothing else (schema CHECK).
const (
	TxSignupGrant      = "signup_grant"
	TxProblemPost      = "problem_post"
	TxSolutionReward   = "solution_reward"
	TxValidationReward = "validation_reward"
)

type Transaction struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Amount      float64   `json:"amount"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	ProblemID   *string   `json:"problem_id,omitempty"`
	SolutionID  *string   `json:"solution_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type postInput struct {
	UserID      string
	Amount      float64
	Type        string
	Description string
	ProblemID   *string
	SolutionID  *string
}

// balanceEpsilon absorbs float64 representation error when comparing the
// cached balance against the recomputed sum of postings.
const balanceEpsilon = 1e-6

// postTx appends one ledger entry and moves the cached balance inside the
// caller's transaction. The cached balance is written nowhere else.
func (db *DB) postTx(tx *sql.Tx, in postInput) error {
	if in.Amount == 0 {
		return ErrInvalidAmount
	}

	var frozen bool
	err := tx.QueryRow("SELECT ledger_frozen FROM users WHERE id = ?", in.UserID).Scan(&frozen)
	if err != nil {
		return fmt.Errorf("loading ledger state: %w", err)
	}
	if frozen {
		return ErrLedgerFrozen
	}

	_, err = tx.Exec(`
		INSERT INTO transactions (id, user_id, amount, type, description, problem_id, solution_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		NewID(), in.UserID, in.Amount, in.Type, in.Description, in.ProblemID, in.SolutionID)
	if err != nil {
		return fmt.Errorf("appending transaction: %w", err)
	}

	_, err = tx.Exec("UPDATE users SET token_balance = token_balance + ? WHERE id = ?", in.Amount, in.UserID)
	if err != nil {
		return fmt.Errorf("updating balance: %w", err)
	}
	return nil
}

// Post appends a standalone ledger entry in its own transaction. Workflow
// operations post through postTx inside their own transactional boundary;
// Post exists for out-of-band adjustments.
func (db *DB) Post(userID string, amount float64, txType, description string) error {
	return db.retryBusy(func() error {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if err := db.postTx(tx, postInput{
			UserID:      userID,
			Amount:      amount,
			Type:        txType,
			Description: description,
		}); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// BalanceOf returns the cached balance, which equals the sum of the user's
// postings unless CheckLedger has detected drift.
func (db *DB) BalanceOf(userID string) (float64, error) {
	var balance float64
	err := db.QueryRow("SELECT token_balance FROM users WHERE id = ?", userID).Scan(&balance)
	return balance, err
}

// GetUserTransactions returns the user's postings, newest first.
func (db *DB) GetUserTransactions(userID string, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, user_id, amount, type, description, problem_id, solution_id, created_at
		FROM transactions WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*Transaction
	for rows.Next() {
		t := &Transaction{}
		var problemID, solutionID sql.NullString
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Description,
			&problemID, &solutionID, &t.CreatedAt); err != nil {
			return nil, err
		}
		if problemID.Valid {
			t.ProblemID = &problemID.String
		}
		if solutionID.Valid {
			t.SolutionID = &solutionID.String
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// LedgerDrift reports one user whose cached balance disagrees with the sum
// of their postings.
type LedgerDrift struct {
	UserID   string  `json:"user_id"`
	Handle   string  `json:"handle"`
	Cached   float64 `json:"cached_balance"`
	Computed float64 `json:"computed_balance"`
}

// CheckLedger recomputes the user's balance from the transaction log and
// compares it to the cache. On drift the user's postings are frozen and
// ErrInvariantViolation is returned; the discrepancy is never silently
// corrected.
func (db *DB) CheckLedger(userID string) error {
	drift, err := db.checkOne(userID)
	if err != nil {
		return err
	}
	if drift == nil {
		return nil
	}
	if _, err := db.Exec("UPDATE users SET ledger_frozen = 1 WHERE id = ?", userID); err != nil {
		return fmt.Errorf("freezing ledger: %w", err)
	}
	slog.Error("ledger invariant violation, postings frozen",
		"user_id", drift.UserID, "cached", drift.Cached, "computed", drift.Computed)
	return fmt.Errorf("user %s: cached %.6f, computed %.6f: %w",
		userID, drift.Cached, drift.Computed, ErrInvariantViolation)
}

// VerifyAllLedgers runs the invariant check across every user and returns
// the drifting ones. Drifting users are frozen as a side effect.
func (db *DB) VerifyAllLedgers() ([]LedgerDrift, error) {
	rows, err := db.Query("SELECT id FROM users")
	if err != nil {
		return nil, err
	}
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	var drifts []LedgerDrift
	for _, id := range ids {
		drift, err := db.checkOne(id)
		if err != nil {
			return nil, err
		}
		if drift != nil {
			if _, err := db.Exec("UPDATE users SET ledger_frozen = 1 WHERE id = ?", id); err != nil {
				return nil, fmt.Errorf("freezing ledger: %w", err)
			}
			slog.Error("ledger invariant violation, postings frozen",
				"user_id", drift.UserID, "cached", drift.Cached, "computed", drift.Computed)
			drifts = append(drifts, *drift)
		}
	}
	return drifts, nil
}

func (db *DB) checkOne(userID string) (*LedgerDrift, error) {
	var handle string
	var cached, computed float64
	err := db.QueryRow(`
		SELECT u.handle, u.token_balance,
		       COALESCE((SELECT SUM(amount) FROM transactions WHERE user_id = u.id), 0)
		FROM users u WHERE u.id = ?`, userID).Scan(&handle, &cached, &computed)
	if err != nil {
		return nil, err
	}
	if math.Abs(cached-computed) <= balanceEpsilon {
		return nil, nil
	}
	return &LedgerDrift{UserID: userID, Handle: handle, Cached: cached, Computed: computed}, nil
}

// ReconcileUser resets the cached balance to the sum of postings and thaws
// the user. Operator action after investigating a reported drift.
func (db *DB) ReconcileUser(userID string) error {
	return db.retryBusy(func() error {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.Exec(`
			UPDATE users SET
				token_balance = COALESCE((SELECT SUM(amount) FROM transactions WHERE user_id = users.id), 0),
				ledger_frozen = 0
			WHERE id = ?`, userID)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
}

// retryBusy re-runs fn when SQLite reports a locked database, which happens
// under concurrent write transactions even with busy_timeout set.
func (db *DB) retryBusy(fn func() error) error {
	const maxRetries = 5
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "SQLITE_BUSY") && !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		time.Sleep(time.Duration(10*(attempt+1)) * time.Millisecond)
	}
	return err
}
