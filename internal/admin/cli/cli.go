// Package cli implements the authdir-admin commands.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/iudanet/authdir/internal/admin/api"
	"github.com/iudanet/authdir/internal/admin/session"
)

// PrintUsage выводит справку по командам
func PrintUsage() {
	fmt.Println("authdir admin client")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  authdir-admin [OPTIONS] COMMAND")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version           Show version information")
	fmt.Println("  --server URL        Server URL (default: http://localhost:8080)")
	fmt.Println("  --db PATH           Path to local session database (default: authdir-admin.db)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  login                       Login to an instance")
	fmt.Println("  logout                      Forget the stored session")
	fmt.Println("  status                      Show session and instance health")
	fmt.Println("  conflicts [--status S] [--kind K]   List conflicts")
	fmt.Println("  conflict <id>               Show full conflict record")
	fmt.Println("  stats                       Show conflict statistics")
	fmt.Println("  resolve <id> <strategy> [args]      Resolve a conflict")
	fmt.Println("  scan                        Trigger an out-of-schedule detection pass")
	fmt.Println("  replication                 Show replication link states")
	fmt.Println()
	fmt.Println("Resolve strategies:")
	fmt.Println("  resolve <id> choose-winner --revision <token>")
	fmt.Println("  resolve <id> merge-permissions")
	fmt.Println("  resolve <id> custom --fields '{\"username\":\"alice\", ...}'")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  authdir-admin login")
	fmt.Println("  authdir-admin conflicts --status unresolved")
	fmt.Println("  authdir-admin resolve 9be2... merge-permissions")
	fmt.Println("  authdir-admin --server https://dc2.example.com:8080 replication")
}

// authenticate loads the stored session into the API client.
func authenticate(ctx context.Context, client *api.Client, sessions *session.Store) error {
	sess, err := sessions.Get(ctx)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return fmt.Errorf("not authenticated. Please run 'authdir-admin login' first")
		}
		return fmt.Errorf("failed to load session: %w", err)
	}

	valid, err := sessions.Valid(ctx)
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if !valid {
		return fmt.Errorf("session expired. Please run 'authdir-admin login' again")
	}

	client.SetToken(sess.Token)
	return nil
}

// readInput читает строку из stdin
func readInput(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// readPassword читает пароль без отображения на экране
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // Переход на новую строку после ввода пароля
	if err != nil {
		return "", err
	}
	return string(passwordBytes), nil
}
