package api

import (
	"encoding/json"
	"net/http"
	"time"
)

func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req struct {
		SolutionID string `json:"solution_id"`
		Decision   string `json:"decision"`
		Feedback   string `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SolutionID == "" {
		jsonError(w, "solution_id is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	validation, err := a.db.Validate(req.SolutionID, claims.UserID, req.Decision, req.Feedback)
	a.record("validate_solution", claims.UserID, start, req, err)
	if err != nil {
		a.writeError(w, err, "solution not found")
		return
	}

	jsonResp(w, http.StatusCreated, validation)
}
