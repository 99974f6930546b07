package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/poinet/internal/db"
)

func (a *API) handleSubmitSolution(w http.ResponseWriter, r *http.Request) {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req struct {
		ProblemID string `json:"problem_id"`
		Content   string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if strings.Contains(err.Error(), "too large") {
			jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ProblemID == "" {
		jsonError(w, "problem_id is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	solution, err := a.db.SubmitSolution(req.ProblemID, claims.UserID, req.Content)
	a.record("submit_solution", claims.UserID, start, req, err)
	if err != nil {
		a.writeError(w, err, "problem not found")
		return
	}

	jsonResp(w, http.StatusCreated, solution)
}

func (a *API) handleListPendingSolutions(w http.ResponseWriter, r *http.Request) {
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
		jsonError(w, db.ErrNotValidator.Error(), http.StatusForbidden)
		return
	}

	pending, err := a.db.ListPendingSolutions(queryLimit(r, 50))
	if err != nil {
		a.writeError(w, err, "")
		return
	}
	if pending == nil {
		pending = []*db.PendingSolution{}
	}
	jsonResp(w, http.StatusOK, pending)
}
