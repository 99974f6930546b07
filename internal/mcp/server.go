// Package mcp registers the marketplace workflow as MCP tools so agent
// clients can browse problems, submit solutions and validate over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/poinet/internal/db"
	"github.com/hazyhaar/poinet/internal/levels"
	"github.com/hazyhaar/poinet/pkg/audit"
)

// NewServer creates an MCPServer with the marketplace tools registered.
func NewServer(database *db.DB, calc *levels.Calculator, auditLog audit.Logger) *server.MCPServer {
	srv := server.NewMCPServer(
		"poinet",
		"0.1.0",
		server.WithToolCapabilities(true),
	)

	registerListProblems(srv, database)
	registerGetProblem(srv, database)
	registerProblemStatus(srv, database)
	registerPendingSolutions(srv, database)
	registerSubmitSolution(srv, database, auditLog)
	registerValidateSolution(srv, database, auditLog)
	registerUserReputation(srv, database, calc)
	registerStats(srv, database)

	return srv
}

func registerListProblems(srv *server.MCPServer, database *db.DB) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"limit": map[string]string{"type": "integer", "description": "Maximum problems to return"},
		},
	})
	tool := mcp.NewToolWithRawSchema("list_problems", "List posted problems, newest first", schema)

	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := intArg(req.GetArguments(), "limit")
		problems, err := database.ListProblems(limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list_problems: %v", err)), nil
		}
		return jsonResult(problems)
	})
}

func registerGetProblem(srv *server.MCPServer, database *db.DB) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"problem_id": map[string]string{"type": "string", "description": "Problem ID"},
		},
		"required": []string{"problem_id"},
	})
	tool := mcp.NewToolWithRawSchema("get_problem", "Fetch a problem with its solutions", schema)

	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := stringArg(req.GetArguments(), "problem_id")
		problem, err := database.GetProblem(id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("get_problem: %v", err)), nil
		}
		solutions, err := database.GetSolutionsForProblem(id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("get_problem: %v", err)), nil
		}
		return jsonResult(map[string]any{"problem": problem, "solutions": solutions})
	})
}

func registerProblemStatus(srv *server.MCPServer, database *db.DB) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"problem_id": map[string]string{"type": "string", "description": "Problem ID"},
		},
		"required": []string{"problem_id"},
	})
	tool := mcp.NewToolWithRawSchema("problem_status", "Derived problem status (open / in_review / solved) with solution counts", schema)

	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status, err := database.GetProblemStatus(stringArg(req.GetArguments(), "problem_id"))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("problem_status: %v", err)), nil
		}
		return jsonResult(status)
	})
}

func registerPendingSolutions(srv *server.MCPServer, database *db.DB) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"limit": map[string]string{"type": "integer", "description": "Maximum solutions to return"},
		},
	})
	tool := mcp.NewToolWithRawSchema("pending_solutions", "List solutions awaiting validation, oldest first", schema)

	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pending, err := database.ListPendingSolutions(intArg(req.GetArguments(), "limit"))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("pending_solutions: %v", err)), nil
		}
		return jsonResult(pending)
	})
}

func registerSubmitSolution(srv *server.MCPServer, database *db.DB, auditLog audit.Logger) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"problem_id": map[string]string{"type": "string", "description": "Problem ID"},
			"solver_id":  map[string]string{"type": "string", "description": "User ID of the solver"},
			"content":    map[string]string{"type": "string", "description": "Solution text"},
		},
		"required": []string{"problem_id", "solver_id", "content"},
	})
	tool := mcp.NewToolWithRawSchema("submit_solution", "Submit a solution to a problem (one attempt per solver)", schema)

	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		start := time.Now()
		solution, err := database.SubmitSolution(
			stringArg(args, "problem_id"), stringArg(args, "solver_id"), stringArg(args, "content"))
		record(auditLog, "submit_solution", stringArg(args, "solver_id"), start, args, err)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("submit_solution: %v", err)), nil
		}
		return jsonResult(solution)
	})
}

func registerValidateSolution(srv *server.MCPServer, database *db.DB, auditLog audit.Logger) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"solution_id":  map[string]string{"type": "string", "description": "Solution ID"},
			"validator_id": map[string]string{"type": "string", "description": "User ID of the validator"},
			"decision":     map[string]string{"type": "string", "description": "One of: approved, rejected"},
			"feedback":     map[string]string{"type": "string", "description": "Optional feedback for the solver"},
		},
		"required": []string{"solution_id", "validator_id", "decision"},
	})
	tool := mcp.NewToolWithRawSchema("validate_solution", "Apply a validator decision, releasing the reward on approval", schema)

	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		start := time.Now()
		validation, err := database.Validate(
			stringArg(args, "solution_id"), stringArg(args, "validator_id"),
			stringArg(args, "decision"), stringArg(args, "feedback"))
		record(auditLog, "validate_solution", stringArg(args, "validator_id"), start, args, err)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("validate_solution: %v", err)), nil
		}
		return jsonResult(validation)
	})
}

func registerUserReputation(srv *server.MCPServer, database *db.DB, calc *levels.Calculator) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id": map[string]string{"type": "string", "description": "User ID"},
		},
		"required": []string{"user_id"},
	})
	tool := mcp.NewToolWithRawSchema("user_reputation", "Reputation level and progress for a user", schema)

	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, err := database.GetUserByID(stringArg(req.GetArguments(), "user_id"))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("user_reputation: %v", err)), nil
		}
		lvl, err := calc.LevelOf(user.Reputation)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("user_reputation: %v", err)), nil
		}
		return jsonResult(lvl)
	})
}

func registerStats(srv *server.MCPServer, database *db.DB) {
	schema, _ := json.Marshal(map[string]any{"type": "object", "properties": map[string]any{}})
	tool := mcp.NewToolWithRawSchema("stats", "Marketplace-wide totals", schema)

	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := database.GetStats()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats: %v", err)), nil
		}
		return jsonResult(stats)
	})
}

func record(auditLog audit.Logger, action, userID string, start time.Time, params map[string]any, err error) {
	if auditLog == nil {
		return
	}
	entry := &audit.Entry{
		Action:     action,
		Transport:  "mcp",
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
	auditLog.LogAsync(entry)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func stringArg(args map[string]any, key string) string {
	if s, ok := args[key].(string); ok {
		return s
	}
	return ""
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
