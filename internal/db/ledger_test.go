package db

import (
	"errors"
	"testing"
)

func TestPostRejectsZeroAmount(t *testing.T) {
	database := newTestDB(t)
	u := mustCreateUser(t, database)

	if err := database.Post(u.ID, 0, TxValidationReward, "nothing"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Post(0) error = %v, want ErrInvalidAmount", err)
	}
	assertBalanceInvariant(t, database, u.ID)
}

func TestPostPositiveAndNegative(t *testing.T) {
	database := newTestDB(t)
	u := mustCreateUser(t, database)

	if err := database.Post(u.ID, 25, TxValidationReward, "bonus"); err != nil {
		t.Fatalf("Post(+25): %v", err)
	}
	if err := database.Post(u.ID, -40, TxProblemPost, "escrow"); err != nil {
		t.Fatalf("Post(-40): %v", err)
	}

	balance, err := database.BalanceOf(u.ID)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if !almostEqual(balance, 85) {
		t.Errorf("balance = %v, want 85", balance)
	}
	assertBalanceInvariant(t, database, u.ID)
}

func TestTransactionsNewestFirst(t *testing.T) {
	database := newTestDB(t)
	u := mustCreateUser(t, database)

	for i := 0; i < 3; i++ {
		if err := database.Post(u.ID, float64(i+1), TxValidationReward, "fee"); err != nil {
			t.Fatalf("Post: %v", err)
		}
	}

	txs, err := database.GetUserTransactions(u.ID, 10)
	if err != nil {
		t.Fatalf("GetUserTransactions: %v", err)
	}
	// 3 fees plus the signup grant, newest first.
	if len(txs) != 4 {
		t.Fatalf("expected 4 postings, got %d", len(txs))
	}
	if !almostEqual(txs[0].Amount, 3) || txs[3].Type != TxSignupGrant {
		t.Errorf("postings out of order: first %+v, last %+v", txs[0], txs[3])
	}
}

func TestCheckLedgerDetectsDrift(t *testing.T) {
	database := newTestDB(t)
	u := mustCreateUser(t, database)

	if err := database.CheckLedger(u.ID); err != nil {
		t.Fatalf("clean ledger reported drift: %v", err)
	}

	// Corrupt the cached balance behind the ledger's back.
	if _, err := database.Exec("UPDATE users SET token_balance = 9999 WHERE id = ?", u.ID); err != nil {
		t.Fatal(err)
	}

	err := database.CheckLedger(u.ID)
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("CheckLedger error = %v, want ErrInvariantViolation", err)
	}

	// Drift must freeze postings, not fix the balance.
	if err := database.Post(u.ID, 5, TxValidationReward, "fee"); !errors.Is(err, ErrLedgerFrozen) {
		t.Errorf("posting to frozen user error = %v, want ErrLedgerFrozen", err)
	}
	balance, _ := database.BalanceOf(u.ID)
	if !almostEqual(balance, 9999) {
		t.Errorf("drifted balance was silently corrected to %v", balance)
	}
}

func TestVerifyAllLedgers(t *testing.T) {
	database := newTestDB(t)
	good := mustCreateUser(t, database)
	bad := mustCreateUser(t, database)

	if _, err := database.Exec("UPDATE users SET token_balance = 1 WHERE id = ?", bad.ID); err != nil {
		t.Fatal(err)
	}

	drifts, err := database.VerifyAllLedgers()
	if err != nil {
		t.Fatalf("VerifyAllLedgers: %v", err)
	}
	if len(drifts) != 1 || drifts[0].UserID != bad.ID {
		t.Fatalf("drifts = %+v, want exactly %s", drifts, bad.ID)
	}
	if !almostEqual(drifts[0].Computed, 100) || !almostEqual(drifts[0].Cached, 1) {
		t.Errorf("drift = %+v, want cached 1 computed 100", drifts[0])
	}

	u, err := database.GetUserByID(good.ID)
	if err != nil {
		t.Fatal(err)
	}
	if u.LedgerFrozen {
		t.Error("clean user was frozen")
	}
}

func TestReconcileUser(t *testing.T) {
	database := newTestDB(t)
	u := mustCreateUser(t, database)

	if _, err := database.Exec("UPDATE users SET token_balance = 1 WHERE id = ?", u.ID); err != nil {
		t.Fatal(err)
	}
	if err := database.CheckLedger(u.ID); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("CheckLedger error = %v, want ErrInvariantViolation", err)
	}

	if err := database.ReconcileUser(u.ID); err != nil {
		t.Fatalf("ReconcileUser: %v", err)
	}
	if err := database.CheckLedger(u.ID); err != nil {
		t.Fatalf("ledger still drifting after reconcile: %v", err)
	}

	balance, _ := database.BalanceOf(u.ID)
	if !almostEqual(balance, 100) {
		t.Errorf("reconciled balance = %v, want 100", balance)
	}
	if err := database.Post(u.ID, 5, TxValidationReward, "fee"); err != nil {
		t.Errorf("posting after reconcile: %v", err)
	}
}
