package api

import (
	"log/slog"
	"net/http"

	"github.com/hazyhaar/poinet/internal/db"
)

// handleLedgerIntegrity recomputes every user's balance from the transaction
// log and reports drift. Drifting users are frozen until reconciled; the
// check never corrects a discrepancy on its own.
func (a *API) handleLedgerIntegrity(w http.ResponseWriter, r *http.Request) {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	user, err := a.db.GetUserByID(claims.UserID)
	if err != nil {
		a.writeError(w, err, "user not found")
		return
	}
	if !user.IsValidator {
		jsonError(w, "only validators can run integrity checks", http.StatusForbidden)
		return
	}

	drifts, err := a.db.VerifyAllLedgers()
	if err != nil {
		slog.Error("ledger verification failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if drifts == nil {
		drifts = []db.LedgerDrift{}
	}
	jsonResp(w, http.StatusOK, map[string]interface{}{
		"ok":     len(drifts) == 0,
		"drifts": drifts,
	})
}
