package db

import (
	"errors"
	"sync"
	"testing"
)

// marketplace is the standard four-party fixture: an author with an open
// problem, a solver with a pending solution, and a validator.
type marketplace struct {
	db        *DB
	author    *User
	solver    *User
	validator *User
	problem   *Problem
	solution  *Solution
}

func newMarketplace(t *testing.T) *marketplace {
	t.Helper()
	database := newTestDB(t)
	m := &marketplace{
		db:        database,
		author:    mustCreateUser(t, database),
		solver:    mustCreateUser(t, database),
		validator: mustCreateValidator(t, database),
	}
	m.problem = mustCreateProblem(t, database, m.author, 20)
	s, err := database.SubmitSolution(m.problem.ID, m.solver.ID, "swap the operands")
	if err != nil {
		t.Fatalf("submitting solution: %v", err)
	}
	m.solution = s
	return m
}

func TestValidateApprove(t *testing.T) {
	m := newMarketplace(t)

	v, err := m.db.Validate(m.solution.ID, m.validator.ID, "approved", "clean fix")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v.Decision != "approved" || v.SolutionID != m.solution.ID || v.ValidatorID != m.validator.ID {
		t.Errorf("validation = %+v", v)
	}
	if v.Feedback == nil || *v.Feedback != "clean fix" {
		t.Errorf("feedback = %v, want clean fix", v.Feedback)
	}

	s, err := m.db.GetSolution(m.solution.ID)
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != "approved" {
		t.Errorf("solution status = %q, want approved", s.Status)
	}

	// Solver gets the full reward, validator 5% of it.
	solver, _ := m.db.GetUserByID(m.solver.ID)
	if !almostEqual(solver.TokenBalance, 120) {
		t.Errorf("solver balance = %v, want 120", solver.TokenBalance)
	}
	if solver.Reputation != 10 {
		t.Errorf("solver reputation = %d, want 10", solver.Reputation)
	}
	validator, _ := m.db.GetUserByID(m.validator.ID)
	if !almostEqual(validator.TokenBalance, 101) {
		t.Errorf("validator balance = %v, want 101", validator.TokenBalance)
	}
	if validator.Reputation != 5 {
		t.Errorf("validator reputation = %d, want 5", validator.Reputation)
	}

	// The reward posting links back to problem and solution.
	txs, _ := m.db.GetUserTransactions(m.solver.ID, 10)
	reward := txs[0]
	if reward.Type != TxSolutionReward || !almostEqual(reward.Amount, 20) {
		t.Errorf("reward posting = %+v", reward)
	}
	if reward.SolutionID == nil || *reward.SolutionID != m.solution.ID {
		t.Errorf("reward posting not linked to solution: %+v", reward)
	}

	for _, id := range []string{m.author.ID, m.solver.ID, m.validator.ID} {
		assertBalanceInvariant(t, m.db, id)
	}
}

func TestValidateReject(t *testing.T) {
	m := newMarketplace(t)

	v, err := m.db.Validate(m.solution.ID, m.validator.ID, "rejected", "does not compile")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v.Decision != "rejected" {
		t.Errorf("decision = %q", v.Decision)
	}

	s, _ := m.db.GetSolution(m.solution.ID)
	if s.Status != "rejected" {
		t.Errorf("solution status = %q, want rejected", s.Status)
	}

	// No tokens and no reputation move on rejection with a zero review fee.
	solver, _ := m.db.GetUserByID(m.solver.ID)
	validator, _ := m.db.GetUserByID(m.validator.ID)
	if !almostEqual(solver.TokenBalance, 100) || solver.Reputation != 0 {
		t.Errorf("solver = %v tokens / %d rep, want 100 / 0", solver.TokenBalance, solver.Reputation)
	}
	if !almostEqual(validator.TokenBalance, 100) || validator.Reputation != 0 {
		t.Errorf("validator = %v tokens / %d rep, want 100 / 0", validator.TokenBalance, validator.Reputation)
	}
}

func TestValidateRejectWithReviewFee(t *testing.T) {
	policy := testPolicy()
	policy.RejectReviewFee = 0.5
	database, err := Open(t.TempDir()+"/fee.db", policy)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })

	author := mustCreateUser(t, database)
	solver := mustCreateUser(t, database)
	validator := mustCreateValidator(t, database)
	p := mustCreateProblem(t, database, author, 20)
	s, err := database.SubmitSolution(p.ID, solver.ID, "guess")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := database.Validate(s.ID, validator.ID, "rejected", ""); err != nil {
		t.Fatal(err)
	}
	v, _ := database.GetUserByID(validator.ID)
	if !almostEqual(v.TokenBalance, 100.5) {
		t.Errorf("validator balance = %v, want 100.5", v.TokenBalance)
	}
	txs, _ := database.GetUserTransactions(validator.ID, 10)
	if txs[0].Type != TxValidationReward || !almostEqual(txs[0].Amount, 0.5) {
		t.Errorf("review fee posting = %+v", txs[0])
	}
	assertBalanceInvariant(t, database, validator.ID)
}

func TestValidateGuards(t *testing.T) {
	m := newMarketplace(t)
	civilian := mustCreateUser(t, m.db)

	// The author can also hold the validator flag; the role check must
	// still refuse them on their own problem.
	if err := m.db.SetValidatorByHandle(m.author.Handle, true); err != nil {
		t.Fatal(err)
	}
	if err := m.db.SetValidatorByHandle(m.solver.Handle, true); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name        string
		validatorID string
		decision    string
		want        error
	}{
		{"bad decision", m.validator.ID, "maybe", ErrInvalidDecision},
		{"not a validator", civilian.ID, "approved", ErrNotValidator},
		{"solver validates own solution", m.solver.ID, "approved", ErrSelfValidate},
		{"author validates own problem", m.author.ID, "approved", ErrAuthorValidate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := m.db.Validate(m.solution.ID, tc.validatorID, tc.decision, ""); !errors.Is(err, tc.want) {
				t.Errorf("error = %v, want %v", err, tc.want)
			}
		})
	}

	// None of the refused attempts may have touched the solution.
	s, _ := m.db.GetSolution(m.solution.ID)
	if s.Status != "pending" {
		t.Errorf("solution status = %q, want pending", s.Status)
	}
}

func TestValidateAlreadyValidated(t *testing.T) {
	m := newMarketplace(t)
	second := mustCreateValidator(t, m.db)

	if _, err := m.db.Validate(m.solution.ID, m.validator.ID, "rejected", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.db.Validate(m.solution.ID, second.ID, "approved", ""); !errors.Is(err, ErrAlreadyValidated) {
		t.Errorf("error = %v, want ErrAlreadyValidated", err)
	}
	// First decision stands.
	s, _ := m.db.GetSolution(m.solution.ID)
	if s.Status != "rejected" {
		t.Errorf("status = %q, want rejected", s.Status)
	}
}

func TestValidateConcurrentSingleWinner(t *testing.T) {
	m := newMarketplace(t)

	const validators = 8
	vs := make([]*User, validators)
	for i := range vs {
		vs[i] = mustCreateValidator(t, m.db)
	}

	var wg sync.WaitGroup
	errs := make([]error, validators)
	for i := range vs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.db.Validate(m.solution.ID, vs[i].ID, "approved", "")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrAlreadyValidated):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("%d validations succeeded, want exactly 1", winners)
	}

	// The reward was paid exactly once.
	solver, _ := m.db.GetUserByID(m.solver.ID)
	if !almostEqual(solver.TokenBalance, 120) {
		t.Errorf("solver balance = %v, want 120", solver.TokenBalance)
	}
	if solver.Reputation != 10 {
		t.Errorf("solver reputation = %d, want 10", solver.Reputation)
	}
	assertBalanceInvariant(t, m.db, m.solver.ID)
}

func TestGetValidationForSolution(t *testing.T) {
	m := newMarketplace(t)

	if _, err := m.db.GetValidationForSolution(m.solution.ID); err == nil {
		t.Error("expected error while pending")
	}
	if _, err := m.db.Validate(m.solution.ID, m.validator.ID, "approved", ""); err != nil {
		t.Fatal(err)
	}
	v, err := m.db.GetValidationForSolution(m.solution.ID)
	if err != nil {
		t.Fatalf("GetValidationForSolution: %v", err)
	}
	if v.ValidatorID != m.validator.ID || v.Decision != "approved" {
		t.Errorf("validation = %+v", v)
	}
}
