package cli

import (
	"context"
	"fmt"
	"time"

	adminapi "github.com/iudanet/authdir/internal/admin/api"
	"github.com/iudanet/authdir/internal/admin/session"
)

// RunReplication выводит состояние связей репликации
func RunReplication(ctx context.Context, client *adminapi.Client, sessions *session.Store) error {
	if err := authenticate(ctx, client, sessions); err != nil {
		return err
	}

	status, err := client.ReplicationStatus(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Instance %s: replication %s\n", status.Instance, status.State)
	if len(status.Links) == 0 {
		fmt.Println("No peers configured.")
		return nil
	}

	fmt.Println()
	for _, link := range status.Links {
		fmt.Printf("%s -> %s: %s\n", link.SourceInstance, link.TargetInstance, link.State)
		fmt.Printf("  consecutive failures: %d\n", link.ConsecutiveFailures)
		fmt.Printf("  docs read/written:    %d/%d\n", link.DocsRead, link.DocsWritten)
		if !link.LastObservedAt.IsZero() {
			fmt.Printf("  last observed:        %s\n", link.LastObservedAt.Format(time.RFC3339))
		}
		fmt.Println()
	}
	return nil
}
