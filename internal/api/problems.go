package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/poinet/internal/db"
)

func (a *API) handleCreateProblem(w http.ResponseWriter, r *http.Request) {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req struct {
		Title       string  `json:"title"`
		Description string  `json:"description"`
		Reward      float64 `json:"reward_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if strings.Contains(err.Error(), "too large") {
			jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	start := time.Now()
	problem, err := a.db.CreateProblem(db.CreateProblemInput{
		AuthorID:    claims.UserID,
		Title:       req.Title,
		Description: req.Description,
		Reward:      req.Reward,
	})
	a.record("create_problem", claims.UserID, start, req, err)
	if err != nil {
		a.writeError(w, err, "problem not found")
		return
	}

	jsonResp(w, http.StatusCreated, problem)
}

func (a *API) handleListProblems(w http.ResponseWriter, r *http.Request) {
	problems, err := a.db.ListProblems(queryLimit(r, 50))
	if err != nil {
		a.writeError(w, err, "")
		return
	}
	if problems == nil {
		problems = []*db.Problem{}
	}
	jsonResp(w, http.StatusOK, problems)
}

func (a *API) handleGetProblem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	problem, err := a.db.GetProblem(id)
	if err != nil {
		a.writeError(w, err, "problem not found")
		return
	}
	solutions, err := a.db.GetSolutionsForProblem(id)
	if err != nil {
		a.writeError(w, err, "problem not found")
		return
	}
	if solutions == nil {
		solutions = []*db.Solution{}
	}
	jsonResp(w, http.StatusOK, map[string]interface{}{
		"problem":   problem,
		"solutions": solutions,
	})
}

func (a *API) handleGetProblemStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.db.GetProblemStatus(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err, "problem not found")
		return
	}
	jsonResp(w, http.StatusOK, status)
}
