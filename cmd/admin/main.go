package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	adminapi "github.com/iudanet/authdir/internal/admin/api"
	"github.com/iudanet/authdir/internal/admin/cli"
	"github.com/iudanet/authdir/internal/admin/session"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	serverURL := flag.String("server", "http://localhost:8080", "Server URL")
	dbPath := flag.String("db", "authdir-admin.db", "Path to local session database")

	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// Получаем команду
	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage()
		os.Exit(1)
	}

	command := args[0]

	ctx := context.Background()

	// Открываем локальное хранилище сессии
	sessions, err := session.New(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open session database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := sessions.Close(); err != nil {
			slog.Error("failed to close session database", "error", err)
		}
	}()

	// Создаем API клиент
	apiClient := adminapi.NewClient(*serverURL)

	// Выполняем команду
	switch command {
	case "login":
		err = cli.RunLogin(ctx, apiClient, sessions, *serverURL)
	case "logout":
		err = cli.RunLogout(ctx, sessions)
	case "status":
		err = cli.RunStatus(ctx, apiClient, sessions)
	case "conflicts":
		err = cli.RunConflicts(ctx, args[1:], apiClient, sessions)
	case "conflict":
		err = cli.RunConflict(ctx, args[1:], apiClient, sessions)
	case "stats":
		err = cli.RunStats(ctx, apiClient, sessions)
	case "resolve":
		err = cli.RunResolve(ctx, args[1:], apiClient, sessions)
	case "scan":
		err = cli.RunScan(ctx, apiClient, sessions)
	case "replication":
		err = cli.RunReplication(ctx, apiClient, sessions)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		cli.PrintUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("authdir admin client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
