package db

import (
	"database/sql"
	"fmt"
	"time"
)

type Validation struct {
	ID          string    `json:"id"`
	SolutionID  string    `json:"solution_id"`
	ValidatorID string    `json:"validator_id"`
	Decision    string    `json:"decision"`
	Feedback    *string   `json:"feedback,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate applies a validator's decision to a pending solution. The status
// transition, the validation record, the ledger postings and the reputation
// bumps commit as one transaction; a conflicting concurrent call loses the
// conditional status update and gets ErrAlreadyValidated.
func (db *DB) Validate(solutionID, validatorID, decision string, feedback string) (*Validation, error) {
	if decision != "approved" && decision != "rejected" {
		return nil, ErrInvalidDecision
	}

	var v *Validation
	err := db.retryBusy(func() error {
		var err error
		v, err = db.validateOnce(solutionID, validatorID, decision, feedback)
		return err
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (db *DB) validateOnce(solutionID, validatorID, decision, feedback string) (*Validation, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var isValidator bool
	if err := tx.QueryRow("SELECT is_validator FROM users WHERE id = ?", validatorID).Scan(&isValidator); err != nil {
		return nil, fmt.Errorf("loading validator: %w", err)
	}
	if !isValidator {
		return nil, ErrNotValidator
	}

	var solverID, authorID, title, problemID string
	var reward float64
	err = tx.QueryRow(`
		SELECT s.solver_id, s.problem_id, p.author_id, p.title, p.reward_amount
		FROM solutions s JOIN problems p ON p.id = s.problem_id
		WHERE s.id = ?`, solutionID).Scan(&solverID, &problemID, &authorID, &title, &reward)
	if err != nil {
		return nil, err
	}
	if validatorID == solverID {
		return nil, ErrSelfValidate
	}
	if validatorID == authorID {
		return nil, ErrAuthorValidate
	}

	// Conditional transition out of pending. Exactly one concurrent
	// validation can flip it; everyone else sees zero rows.
	res, err := tx.Exec("UPDATE solutions SET status = ? WHERE id = ? AND status = 'pending'",
		decision, solutionID)
	if err != nil {
		return nil, fmt.Errorf("transitioning solution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrAlreadyValidated
	}

	id := NewID()
	var feedbackPtr *string
	if feedback != "" {
		feedbackPtr = &feedback
	}
	_, err = tx.Exec(`
		INSERT INTO validations (id, solution_id, validator_id, decision, feedback)
		VALUES (?, ?, ?, ?, ?)`, id, solutionID, validatorID, decision, feedbackPtr)
	if err != nil {
		return nil, fmt.Errorf("creating validation: %w", err)
	}

	switch decision {
	case "approved":
		err = db.postTx(tx, postInput{
			UserID:      solverID,
			Amount:      reward,
			Type:        TxSolutionReward,
			Description: "Solution approved for: " + title,
			ProblemID:   &problemID,
			SolutionID:  &solutionID,
		})
		if err != nil {
			return nil, err
		}
		if fee := reward * db.policy.ValidatorFeePercent / 100; fee > 0 {
			err = db.postTx(tx, postInput{
				UserID:      validatorID,
				Amount:      fee,
				Type:        TxValidationReward,
				Description: "Validated solution for: " + title,
				ProblemID:   &problemID,
				SolutionID:  &solutionID,
			})
			if err != nil {
				return nil, err
			}
		}
		if err := bumpReputation(tx, solverID, db.policy.SolverReputation); err != nil {
			return nil, err
		}
		if err := bumpReputation(tx, validatorID, db.policy.ValidatorReputation); err != nil {
			return nil, err
		}
	case "rejected":
		if fee := db.policy.RejectReviewFee; fee > 0 {
			err = db.postTx(tx, postInput{
				UserID:      validatorID,
				Amount:      fee,
				Type:        TxValidationReward,
				Description: "Reviewed solution for: " + title,
				ProblemID:   &problemID,
				SolutionID:  &solutionID,
			})
			if err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return db.GetValidation(id)
}

func bumpReputation(tx *sql.Tx, userID string, delta int) error {
	if delta <= 0 {
		return nil
	}
	_, err := tx.Exec("UPDATE users SET reputation = reputation + ? WHERE id = ?", delta, userID)
	return err
}

func (db *DB) GetValidation(id string) (*Validation, error) {
	v := &Validation{}
	var feedback *string
	err := db.QueryRow(`
		SELECT id, solution_id, validator_id, decision, feedback, created_at
		FROM validations WHERE id = ?`, id).Scan(
		&v.ID, &v.SolutionID, &v.ValidatorID, &v.Decision, &feedback, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	v.Feedback = feedback
	return v, nil
}

// GetValidationForSolution returns the validation record for a solution, or
// sql.ErrNoRows while it is still pending.
func (db *DB) GetValidationForSolution(solutionID string) (*Validation, error) {
	v := &Validation{}
	var feedback *string
	err := db.QueryRow(`
		SELECT id, solution_id, validator_id, decision, feedback, created_at
		FROM validations WHERE solution_id = ?`, solutionID).Scan(
		&v.ID, &v.SolutionID, &v.ValidatorID, &v.Decision, &feedback, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	v.Feedback = feedback
	return v, nil
}
