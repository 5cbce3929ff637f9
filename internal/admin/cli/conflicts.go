package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	adminapi "github.com/iudanet/authdir/internal/admin/api"
	"github.com/iudanet/authdir/internal/admin/session"
	"github.com/iudanet/authdir/pkg/api"
)

// RunConflicts выводит список конфликтов
func RunConflicts(ctx context.Context, args []string, client *adminapi.Client, sessions *session.Store) error {
	fs := flag.NewFlagSet("conflicts", flag.ContinueOnError)
	status := fs.String("status", "", "Filter by status (unresolved, resolving, resolved)")
	kind := fs.String("kind", "", "Filter by conflict kind")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := authenticate(ctx, client, sessions); err != nil {
		return err
	}

	resp, err := client.ListConflicts(ctx, *status, *kind)
	if err != nil {
		return err
	}

	if resp.Total == 0 {
		fmt.Println("No conflicts found.")
		return nil
	}

	fmt.Printf("Found %d conflict(s):\n\n", resp.Total)
	for _, c := range resp.Conflicts {
		fmt.Printf("%s\n", c.ID)
		fmt.Printf("  document:  %s (%s)\n", c.DocumentID, c.DocumentType)
		fmt.Printf("  kind:      %s\n", c.Kind)
		fmt.Printf("  status:    %s\n", c.Status)
		fmt.Printf("  revisions: %d\n", c.Revisions)
		fmt.Printf("  detected:  %s\n", c.DetectedAt.Format(time.RFC3339))
		fmt.Println()
	}
	return nil
}

// RunConflict выводит полную запись одного конфликта
func RunConflict(ctx context.Context, args []string, client *adminapi.Client, sessions *session.Store) error {
	if len(args) == 0 {
		return fmt.Errorf("missing conflict id. Usage: authdir-admin conflict <id>")
	}

	if err := authenticate(ctx, client, sessions); err != nil {
		return err
	}

	detail, err := client.GetConflict(ctx, args[0])
	if err != nil {
		return err
	}
	printConflictDetail(detail)
	return nil
}

// RunStats выводит сводку по конфликтам
func RunStats(ctx context.Context, client *adminapi.Client, sessions *session.Store) error {
	if err := authenticate(ctx, client, sessions); err != nil {
		return err
	}

	stats, err := client.ConflictStats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Total conflicts:          %d\n", stats.Total)
	fmt.Printf("Awaiting resolution:      %d\n", stats.RequiresManualResolution)
	if len(stats.ByKind) > 0 {
		fmt.Println("By kind:")
		for kind, count := range stats.ByKind {
			fmt.Printf("  %-24s %d\n", kind, count)
		}
	}
	return nil
}

// RunResolve применяет стратегию разрешения к конфликту
func RunResolve(ctx context.Context, args []string, client *adminapi.Client, sessions *session.Store) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: authdir-admin resolve <id> <strategy> [--revision TOKEN] [--fields JSON]")
	}
	id, strategy := args[0], args[1]

	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	revision := fs.String("revision", "", "Winning revision token (choose-winner)")
	fields := fs.String("fields", "", "JSON object with resulting fields (custom)")
	if err := fs.Parse(args[2:]); err != nil {
		return err
	}

	if err := authenticate(ctx, client, sessions); err != nil {
		return err
	}

	req := api.ResolveRequest{
		Strategy:   strategy,
		RevisionID: *revision,
	}
	if *fields != "" {
		if !json.Valid([]byte(*fields)) {
			return fmt.Errorf("--fields is not valid JSON")
		}
		req.Fields = json.RawMessage(*fields)
	}

	detail, err := client.ResolveConflict(ctx, id, req)
	if err != nil {
		return err
	}

	fmt.Println("Conflict resolved.")
	fmt.Println()
	printConflictDetail(detail)
	return nil
}

// RunScan запускает внеплановый проход детектора
func RunScan(ctx context.Context, client *adminapi.Client, sessions *session.Store) error {
	if err := authenticate(ctx, client, sessions); err != nil {
		return err
	}

	result, err := client.Scan(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Scanned:  %d conflicted document(s)\n", result.Scanned)
	fmt.Printf("Detected: %d new conflict(s)\n", result.Detected)
	fmt.Printf("Skipped:  %d already filed\n", result.Skipped)
	fmt.Printf("Failed:   %d\n", result.Failed)
	return nil
}

// printConflictDetail выводит запись конфликта со всеми ревизиями
func printConflictDetail(detail *api.ConflictDetail) {
	fmt.Printf("Conflict %s\n", detail.ID)
	fmt.Printf("  document: %s (%s)\n", detail.DocumentID, detail.DocumentType)
	fmt.Printf("  kind:     %s\n", detail.Kind)
	fmt.Printf("  status:   %s\n", detail.Status)
	fmt.Printf("  detected: %s\n", detail.DetectedAt.Format(time.RFC3339))
	fmt.Println()

	for i, rev := range detail.Revisions {
		fmt.Printf("  revision %d: %s\n", i+1, rev.RevisionToken)
		fmt.Printf("    version:       %d\n", rev.Version)
		fmt.Printf("    last modified: %s by %s\n",
			rev.LastModifiedAt.Format(time.RFC3339), rev.LastModifiedBy)
		fmt.Printf("    fields:        %s\n", string(rev.Fields))
	}

	if detail.Resolution != nil {
		res := detail.Resolution
		fmt.Println()
		fmt.Printf("  resolution:\n")
		fmt.Printf("    strategy:     %s\n", res.Strategy)
		fmt.Printf("    resolved at:  %s\n", res.ResolvedAt.Format(time.RFC3339))
		fmt.Printf("    resolved by:  %s\n", res.ResolvingInstance)
		fmt.Printf("    new revision: %s\n", res.ResultingRevisionID)
		fmt.Printf("    contributors: %v\n", res.ContributingInstances)
	}
}
