package db

import (
	"fmt"
	"strings"
	"time"
)

type Problem struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	AuthorID     string    `json:"author_id"`
	AuthorHandle string    `json:"author_handle,omitempty"`
	RewardAmount float64   `json:"reward_amount"`
	CreatedAt    time.Time `json:"created_at"`
}

type CreateProblemInput struct {
	AuthorID    string
	Title       string
	Description string
	Reward      float64
}

// CreateProblem inserts a problem and escrows the reward by debiting the
// author in the same transaction. The reward is fixed at creation; no
// update or delete path exists.
func (db *DB) CreateProblem(input CreateProblemInput) (*Problem, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" || len(title) > 200 {
		return nil, ErrInvalidTitle
	}
	if strings.TrimSpace(input.Description) == "" {
		return nil, ErrInvalidDescription
	}
	if input.Reward <= 0 {
		return nil, ErrInvalidReward
	}

	id := NewID()
	err := db.retryBusy(func() error {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var balance float64
		if err := tx.QueryRow("SELECT token_balance FROM users WHERE id = ?", input.AuthorID).Scan(&balance); err != nil {
			return fmt.Errorf("loading author: %w", err)
		}
		if balance < input.Reward {
			return ErrInsufficientBalance
		}

		_, err = tx.Exec(`
			INSERT INTO problems (id, title, description, author_id, reward_amount)
			VALUES (?, ?, ?, ?, ?)`,
			id, title, input.Description, input.AuthorID, input.Reward)
		if err != nil {
			return fmt.Errorf("creating problem: %w", err)
		}

		err = db.postTx(tx, postInput{
			UserID:      input.AuthorID,
			Amount:      -input.Reward,
			Type:        TxProblemPost,
			Description: "Posted problem: " + title,
			ProblemID:   &id,
		})
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return db.GetProblem(id)
}

func (db *DB) GetProblem(id string) (*Problem, error) {
	p := &Problem{}
	err := db.QueryRow(`
		SELECT p.id, p.title, p.description, p.author_id, u.handle, p.reward_amount, p.created_at
		FROM problems p JOIN users u ON u.id = p.author_id
		WHERE p.id = ?`, id).Scan(
		&p.ID, &p.Title, &p.Description, &p.AuthorID, &p.AuthorHandle, &p.RewardAmount, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListProblems returns problems newest first.
func (db *DB) ListProblems(limit int) ([]*Problem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT p.id, p.title, p.description, p.author_id, u.handle, p.reward_amount, p.created_at
		FROM problems p JOIN users u ON u.id = p.author_id
		ORDER BY p.created_at DESC, p.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*Problem
	for rows.Next() {
		p := &Problem{}
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.AuthorID, &p.AuthorHandle,
			&p.RewardAmount, &p.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// ProblemStatus is the derived lifecycle projection. It is recomputed from
// the solution set on every read and stored nowhere.
type ProblemStatus struct {
	Status            string `json:"status"`
	ApprovedSolutions int    `json:"approved_solutions"`
	PendingSolutions  int    `json:"pending_solutions"`
}

// StatusFromCounts maps solution counts to the problem status: solved wins
// over in_review wins over open.
func StatusFromCounts(approved, pending int) string {
	switch {
	case approved > 0:
		return "solved"
	case pending > 0:
		return "in_review"
	default:
		return "open"
	}
}

func (db *DB) GetProblemStatus(problemID string) (*ProblemStatus, error) {
	var exists int
	if err := db.QueryRow("SELECT 1 FROM problems WHERE id = ?", problemID).Scan(&exists); err != nil {
		return nil, err
	}

	var approved, pending int
	err := db.QueryRow(`
		SELECT
			COUNT(CASE WHEN status = 'approved' THEN 1 END),
			COUNT(CASE WHEN status = 'pending' THEN 1 END)
		FROM solutions WHERE problem_id = ?`, problemID).Scan(&approved, &pending)
	if err != nil {
		return nil, err
	}
	return &ProblemStatus{
		Status:            StatusFromCounts(approved, pending),
		ApprovedSolutions: approved,
		PendingSolutions:  pending,
	}, nil
}

// Stats are the marketplace-wide totals.
type Stats struct {
	TotalProblems    int `json:"total_problems"`
	TotalSolutions   int `json:"total_solutions"`
	TotalUsers       int `json:"total_users"`
	PendingSolutions int `json:"pending_solutions"`
}

func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	err := db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM problems),
			(SELECT COUNT(*) FROM solutions),
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM solutions WHERE status = 'pending')`).Scan(
		&s.TotalProblems, &s.TotalSolutions, &s.TotalUsers, &s.PendingSolutions)
	if err != nil {
		return nil, err
	}
	return s, nil
}
