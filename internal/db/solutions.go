package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type Solution struct {
	ID           string    `json:"id"`
	ProblemID    string    `json:"problem_id"`
	SolverID     string    `json:"solver_id"`
	SolverHandle string    `json:"solver_handle,omitempty"`
	Content      string    `json:"content"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// PendingSolution is a pending solution joined with the problem a validator
// needs to judge it.
type PendingSolution struct {
	Solution
	ProblemTitle  string  `json:"problem_title"`
	ProblemReward float64 `json:"problem_reward"`
}

// SubmitSolution creates a pending solution. One attempt per solver per
// problem, any status: the UNIQUE(problem_id, solver_id) constraint closes
// the check-then-insert race, and rejection does not reopen the slot.
func (db *DB) SubmitSolution(problemID, solverID, content string) (*Solution, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	var authorID string
	err := db.QueryRow("SELECT author_id FROM problems WHERE id = ?", problemID).Scan(&authorID)
	if err != nil {
		return nil, err
	}
	if authorID == solverID {
		return nil, ErrSelfSolve
	}

	id := NewID()
	_, err = db.Exec(`
		INSERT INTO solutions (id, problem_id, solver_id, content)
		VALUES (?, ?, ?, ?)`, id, problemID, solverID, content)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrDuplicateSubmission
		}
		return nil, fmt.Errorf("creating solution: %w", err)
	}
	return db.GetSolution(id)
}

func (db *DB) GetSolution(id string) (*Solution, error) {
	s := &Solution{}
	err := db.QueryRow(`
		SELECT s.id, s.problem_id, s.solver_id, u.handle, s.content, s.status, s.created_at
		FROM solutions s JOIN users u ON u.id = s.solver_id
		WHERE s.id = ?`, id).Scan(
		&s.ID, &s.ProblemID, &s.SolverID, &s.SolverHandle, &s.Content, &s.Status, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetSolutionsForProblem returns all solutions for a problem, oldest first.
func (db *DB) GetSolutionsForProblem(problemID string) ([]*Solution, error) {
	rows, err := db.Query(`
		SELECT s.id, s.problem_id, s.solver_id, u.handle, s.content, s.status, s.created_at
		FROM solutions s JOIN users u ON u.id = s.solver_id
		WHERE s.problem_id = ?
		ORDER BY s.created_at ASC, s.rowid ASC`, problemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSolutionRows(rows)
}

// ListPendingSolutions returns every pending solution with its problem,
// oldest first so the review queue is fair.
func (db *DB) ListPendingSolutions(limit int) ([]*PendingSolution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT s.id, s.problem_id, s.solver_id, u.handle, s.content, s.status, s.created_at,
		       p.title, p.reward_amount
		FROM solutions s
		JOIN users u ON u.id = s.solver_id
		JOIN problems p ON p.id = s.problem_id
		WHERE s.status = 'pending'
		ORDER BY s.created_at ASC, s.rowid ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*PendingSolution
	for rows.Next() {
		ps := &PendingSolution{}
		if err := rows.Scan(&ps.ID, &ps.ProblemID, &ps.SolverID, &ps.SolverHandle,
			&ps.Content, &ps.Status, &ps.CreatedAt, &ps.ProblemTitle, &ps.ProblemReward); err != nil {
			return nil, err
		}
		results = append(results, ps)
	}
	return results, rows.Err()
}

func scanSolutionRows(rows *sql.Rows) ([]*Solution, error) {
	var results []*Solution
	for rows.Next() {
		s := &Solution{}
		if err := rows.Scan(&s.ID, &s.ProblemID, &s.SolverID, &s.SolverHandle,
			&s.Content, &s.Status, &s.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, s)
	}
	return results, rows.Err()
}
