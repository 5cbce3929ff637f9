package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	adminapi "github.com/iudanet/authdir/internal/admin/api"
	"github.com/iudanet/authdir/internal/admin/session"
	"github.com/iudanet/authdir/pkg/api"
)

// RunLogin выполняет вход администратора и сохраняет сессию
func RunLogin(ctx context.Context, client *adminapi.Client, sessions *session.Store, serverURL string) error {
	username, err := readInput("Username: ")
	if err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	password, err := readPassword("Password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	resp, err := client.Login(ctx, api.LoginRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return err
	}

	sess := &session.Session{
		ServerURL: serverURL,
		Username:  username,
		Token:     resp.AccessToken,
		ExpiresAt: time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	if err := sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	fmt.Printf("Logged in as %s (token valid until %s)\n",
		username, sess.ExpiresAt.Format(time.RFC3339))
	return nil
}

// RunLogout удаляет сохраненную сессию
func RunLogout(ctx context.Context, sessions *session.Store) error {
	if err := sessions.Delete(ctx); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			fmt.Println("No stored session.")
			return nil
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	fmt.Println("Logged out.")
	return nil
}

// RunStatus показывает состояние сессии и здоровье инстанса
func RunStatus(ctx context.Context, client *adminapi.Client, sessions *session.Store) error {
	sess, err := sessions.Get(ctx)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		fmt.Println("Session: not authenticated")
	case err != nil:
		return fmt.Errorf("failed to load session: %w", err)
	default:
		state := "valid"
		if time.Now().After(sess.ExpiresAt) {
			state = "expired"
		}
		fmt.Printf("Session: %s as %s on %s (expires %s)\n",
			state, sess.Username, sess.ServerURL, sess.ExpiresAt.Format(time.RFC3339))
	}

	health, err := client.Health(ctx)
	if err != nil {
		fmt.Printf("Instance: unreachable (%v)\n", err)
		return nil
	}
	fmt.Printf("Instance: %s, status %s\n", health.Instance, health.Status)
	return nil
}
