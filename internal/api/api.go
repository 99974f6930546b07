// Package api exposes the workflow engine over HTTP. Handlers decode JSON,
// call into the db core, and map its sentinel errors onto statuses; no
// workflow rule lives here.
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/poinet/internal/auth"
	"github.com/hazyhaar/poinet/internal/db"
	"github.com/hazyhaar/poinet/internal/levels"
	"github.com/hazyhaar/poinet/pkg/audit"
)

// handleRe validates handle format: ASCII alphanumeric, underscore, hyphen only.
var handleRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// maxBodySize is the maximum HTTP body size for content-bearing endpoints.
const maxBodySize = 200 * 1024 // 200KB

// AuthRateLimiter is the rate limiter for register/login (20 req/60s per IP).
var AuthRateLimiter = NewRateLimiter(20, 60*time.Second)

type API struct {
	db       *db.DB
	auth     *auth.Auth
	levels   *levels.Calculator
	auditLog audit.Logger
}

func New(database *db.DB, a *auth.Auth, calc *levels.Calculator) *API {
	return &API{db: database, auth: a, levels: calc}
}

// SetAuditLog enables audit logging of mutating workflow actions.
func (a *API) SetAuditLog(l audit.Logger) {
	a.auditLog = l
}

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	// Auth
	mux.HandleFunc("POST /api/register", RateLimitMiddleware(AuthRateLimiter, a.handleRegister))
	mux.HandleFunc("POST /api/login", RateLimitMiddleware(AuthRateLimiter, a.handleLogin))

	// Current user
	mux.HandleFunc("GET /api/me", a.handleGetMe)
	mux.HandleFunc("GET /api/me/reputation", a.handleGetReputation)
	mux.HandleFunc("GET /api/me/transactions", a.handleGetTransactions)

	// Problems
	mux.HandleFunc("POST /api/problems", a.handleCreateProblem)
	mux.HandleFunc("GET /api/problems", a.handleListProblems)
	mux.HandleFunc("GET /api/problems/{id}", a.handleGetProblem)
	mux.HandleFunc("GET /api/problems/{id}/status", a.handleGetProblemStatus)

	// Solutions
	mux.HandleFunc("POST /api/solutions", a.handleSubmitSolution)
	mux.HandleFunc("GET /api/solutions/pending", a.handleListPendingSolutions)

	// Validations
	mux.HandleFunc("POST /api/validations", a.handleValidate)

	// Stats & integrity
	mux.HandleFunc("GET /api/stats", a.handleGetStats)
	mux.HandleFunc("GET /api/integrity/ledger", a.handleLedgerIntegrity)
}

// --- Auth ---

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handle   string `json:"handle"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Handle == "" || req.Password == "" {
		jsonError(w, "handle and password are required", http.StatusBadRequest)
		return
	}
	if len(req.Handle) < 3 || len(req.Handle) > 30 {
		jsonError(w, "handle must be 3-30 characters", http.StatusBadRequest)
		return
	}
	if !handleRe.MatchString(req.Handle) {
		jsonError(w, "handle must contain only ASCII letters, digits, underscore or hyphen", http.StatusBadRequest)
		return
	}
	if len(req.Password) < 8 {
		jsonError(w, "password must be at least 8 characters", http.StatusBadRequest)
		return
	}

	hash, err := a.auth.HashPassword(req.Password)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	user, err := a.db.CreateUser(db.CreateUserInput{
		Handle:       req.Handle,
		Email:        req.Email,
		PasswordHash: hash,
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			jsonError(w, "handle or email already taken", http.StatusConflict)
			return
		}
		slog.Error("creating user", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	token, err := a.auth.GenerateToken(user.ID, user.Handle)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	jsonResp(w, http.StatusCreated, map[string]interface{}{
		"user":  user,
		"token": token,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handle   string `json:"handle"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, passwordHash, err := a.db.GetUserByHandle(req.Handle)
	if err != nil {
		jsonError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	if !a.auth.CheckPassword(passwordHash, req.Password) {
		jsonError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := a.auth.GenerateToken(user.ID, user.Handle)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	go a.db.TouchLastSeen(user.ID)

	jsonResp(w, http.StatusOK, map[string]interface{}{
		"user":  user,
		"token": token,
	})
}

// --- Current user ---

func (a *API) handleGetMe(w http.ResponseWriter, r *http.Request) {
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
	jsonResp(w, http.StatusOK, user)
}

func (a *API) handleGetReputation(w http.ResponseWriter, r *http.Request) {
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
	lvl, err := a.levels.LevelOf(user.Reputation)
	if err != nil {
		slog.Error("computing level", "error", err, "user_id", user.ID)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonResp(w, http.StatusOK, lvl)
}

func (a *API) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	limit := queryLimit(r, 50)
	txs, err := a.db.GetUserTransactions(claims.UserID, limit)
	if err != nil {
		a.writeError(w, err, "user not found")
		return
	}
	if txs == nil {
		txs = []*db.Transaction{}
	}
	jsonResp(w, http.StatusOK, txs)
}

// --- Stats ---

func (a *API) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.db.GetStats()
	if err != nil {
		slog.Error("computing stats", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonResp(w, http.StatusOK, stats)
}

// --- Helpers ---

// writeError maps db sentinel errors onto HTTP statuses. Anything unmapped
// is logged and reported as an internal error.
func (a *API) writeError(w http.ResponseWriter, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		jsonError(w, notFoundMsg, http.StatusNotFound)
	case errors.Is(err, db.ErrInvalidTitle),
		errors.Is(err, db.ErrInvalidDescription),
		errors.Is(err, db.ErrInvalidReward),
		errors.Is(err, db.ErrEmptyContent),
		errors.Is(err, db.ErrInvalidDecision),
		errors.Is(err, db.ErrInvalidAmount),
		errors.Is(err, db.ErrInsufficientBalance):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, db.ErrSelfSolve),
		errors.Is(err, db.ErrNotValidator),
		errors.Is(err, db.ErrSelfValidate),
		errors.Is(err, db.ErrAuthorValidate):
		jsonError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, db.ErrDuplicateSubmission),
		errors.Is(err, db.ErrAlreadyValidated):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, db.ErrLedgerFrozen), errors.Is(err, db.ErrInvariantViolation):
		// Internal fault: operators see the detail, callers do not.
		slog.Error("ledger fault", "error", err)
		jsonError(w, "ledger temporarily unavailable", http.StatusServiceUnavailable)
	default:
		slog.Error("request failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

// record writes an audit entry for a mutating workflow action.
func (a *API) record(action, userID string, start time.Time, params interface{}, err error) {
	if a.auditLog == nil {
		return
	}
	entry := &audit.Entry{
		Action:     action,
		Transport:  "http",
		UserID:     userID,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if p, e := json.Marshal(params); e == nil {
		entry.Parameters = string(p)
	}
	if err != nil {
		entry.Error = err.Error()
		entry.Status = "error"
	}
	a.auditLog.LogAsync(entry)
}

func queryLimit(r *http.Request, def int) int {
	limit := def
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 {
			limit = l
		}
	}
	return limit
}

func jsonResp(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
