package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/poinet/internal/api"
	"github.com/hazyhaar/poinet/internal/auth"
	"github.com/hazyhaar/poinet/internal/config"
	"github.com/hazyhaar/poinet/internal/db"
	"github.com/hazyhaar/poinet/internal/levels"
	"github.com/hazyhaar/poinet/internal/mcp"
	"github.com/hazyhaar/poinet/pkg/audit"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "grant-validator":
		cmdGrantValidator(os.Args[2:])
	case "reconcile":
		cmdReconcile(os.Args[2:])
	case "mcp":
		cmdMCP(os.Args[2:])
	case "version":
		fmt.Printf("poinet %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`poinet — proof-of-intelligence problem marketplace

Usage:
  poinet serve [--config config.toml] [--addr :8080]
  poinet grant-validator [--config config.toml] [--revoke] <handle>
  poinet reconcile [--config config.toml] <handle>
  poinet mcp [--config config.toml]
  poinet version
  poinet help

Commands:
  serve            Start the HTTP server
  grant-validator  Grant (or revoke) a user's validator flag
  reconcile        Reset a frozen user's balance to the sum of their postings
  mcp              Serve the marketplace tools over MCP stdio
  version          Print version
  help             Show this help`)
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	addr := fs.String("addr", "", "listen address (overrides config)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	database, err := openDB(cfg)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer database.Close()

	auditLog := audit.NewSQLiteLogger(database.DB)
	if err := auditLog.Init(); err != nil {
		log.Fatalf("initializing audit log: %v", err)
	}
	defer auditLog.Close()

	a := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiryMin)
	calc := levels.New(cfg.Levels)
	apiHandler := api.New(database, a, calc)
	apiHandler.SetAuditLog(auditLog)

	mux := http.NewServeMux()
	apiHandler.RegisterRoutes(mux)

	log.Printf("poinet %s listening on %s", version, cfg.Server.Addr)
	log.Printf("database: %s", cfg.Database.Path)

	if err := http.ListenAndServe(cfg.Server.Addr, api.SecurityHeaders(mux)); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func cmdGrantValidator(args []string) {
	fs := flag.NewFlagSet("grant-validator", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	revoke := fs.Bool("revoke", false, "revoke instead of grant")
	fs.Parse(args)

	handle := fs.Arg(0)
	if handle == "" {
		log.Fatal("usage: poinet grant-validator [--config config.toml] [--revoke] <handle>")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	database, err := openDB(cfg)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer database.Close()

	if err := database.SetValidatorByHandle(handle, !*revoke); err != nil {
		log.Fatalf("updating %s: %v", handle, err)
	}
	if *revoke {
		log.Printf("revoked validator flag from %s", handle)
	} else {
		log.Printf("granted validator flag to %s", handle)
	}
}

func cmdReconcile(args []string) {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	fs.Parse(args)

	handle := fs.Arg(0)
	if handle == "" {
		log.Fatal("usage: poinet reconcile [--config config.toml] <handle>")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	database, err := openDB(cfg)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer database.Close()

	user, _, err := database.GetUserByHandle(handle)
	if err != nil {
		log.Fatalf("loading %s: %v", handle, err)
	}
	if err := database.ReconcileUser(user.ID); err != nil {
		log.Fatalf("reconciling %s: %v", handle, err)
	}
	if err := database.CheckLedger(user.ID); err != nil {
		log.Fatalf("post-reconcile check failed for %s: %v", handle, err)
	}
	log.Printf("reconciled ledger for %s", handle)
}

func cmdMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	database, err := openDB(cfg)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer database.Close()

	auditLog := audit.NewSQLiteLogger(database.DB)
	if err := auditLog.Init(); err != nil {
		log.Fatalf("initializing audit log: %v", err)
	}
	defer auditLog.Close()

	srv := mcp.NewServer(database, levels.New(cfg.Levels), auditLog)
	if err := mcpserver.ServeStdio(srv); err != nil {
		log.Fatalf("mcp server error: %v", err)
	}
}

func openDB(cfg *config.Config) (*db.DB, error) {
	return db.Open(cfg.Database.Path, db.Policy{
		StartingBalance:     cfg.Rewards.StartingBalance,
		ValidatorFeePercent: cfg.Rewards.ValidatorFeePercent,
		RejectReviewFee:     cfg.Rewards.RejectReviewFee,
		SolverReputation:    cfg.Rewards.SolverReputation,
		ValidatorReputation: cfg.Rewards.ValidatorReputation,
	})
}
