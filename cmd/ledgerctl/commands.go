package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"specledger/internal/domain"
	"specledger/internal/ledger"
)

const commandTimeout = 30 * time.Second

// run opens the environment, runs fn and closes it again.
func run(cmd *cobra.Command, fn func(ctx context.Context, e *env) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(ctx, e)
}

func entitlementSummary(userID string, ent domain.Entitlement) map[string]any {
	return map[string]any{
		"userId":           userID,
		"specCredits":      ent.SpecCredits,
		"unlimited":        ent.Unlimited,
		"canEdit":          ent.CanEdit,
		"preservedCredits": ent.PreservedCredits,
	}
}

func grantCmd() *cobra.Command {
	var (
		id, email, source, note string
		amount                  int
	)
	cmd := &cobra.Command{
		Use:     "grant",
		Short:   "Grant purchased credits to a user",
		Example: `  ledgerctl grant --email buyer@example.com --amount 3 --note "support ticket 812"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, e *env) error {
				userID, err := e.resolveUser(ctx, id, email)
				if err != nil {
					return err
				}
				g := ledger.AdminGrant{UserID: userID, Amount: amount, Source: source}
				if note != "" {
					g.Metadata = map[string]any{"note": note}
				}
				ent, err := e.ledger.AdminGrantCredits(ctx, g)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), entitlementSummary(userID, ent))
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id")
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().IntVar(&amount, "amount", 0, "credits to grant")
	cmd.Flags().StringVar(&source, "source", "ledgerctl", "grant source recorded in the audit log")
	cmd.Flags().StringVar(&note, "note", "", "free-form note recorded in the audit log")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func revokeProCmd() *cobra.Command {
	var id, email, reason string
	cmd := &cobra.Command{
		Use:   "revoke-pro",
		Short: "Revoke Pro and restore preserved credits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, e *env) error {
				userID, err := e.resolveUser(ctx, id, email)
				if err != nil {
					return err
				}
				ent, err := e.ledger.RevokePro(ctx, userID, reason)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), entitlementSummary(userID, ent))
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id")
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().StringVar(&reason, "reason", "manual", "reason recorded in the audit log")
	return cmd
}

func showCmd() *cobra.Command {
	var id, email string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a user's entitlements and subscription",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, e *env) error {
				userID, err := e.resolveUser(ctx, id, email)
				if err != nil {
					return err
				}
				view, err := e.ledger.GetEntitlements(ctx, userID)
				if err != nil {
					return err
				}
				out := map[string]any{
					"user":         view.User,
					"entitlements": entitlementSummary(userID, view.Entitlement),
				}
				if view.Subscription != nil {
					out["subscription"] = view.Subscription
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id")
	cmd.Flags().StringVar(&email, "email", "", "user email")
	return cmd
}

func claimCmd() *cobra.Command {
	var id, email string
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Apply pending entitlements for an email to an existing user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id == "" || email == "" {
				return fmt.Errorf("both --id and --email are required")
			}
			return run(cmd, func(ctx context.Context, e *env) error {
				res, err := e.ledger.ClaimPending(ctx, id, email)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"userId":     id,
					"claimed":    res.Claimed,
					"credits":    res.Credits,
					"proEnabled": res.ProEnabled,
				})
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id")
	cmd.Flags().StringVar(&email, "email", "", "purchase email")
	return cmd
}

func reconcileCmd() *cobra.Command {
	var (
		since time.Duration
		limit int
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "List processed webhook events whose effect is missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, e *env) error {
				findings, err := e.ledger.Reconcile(ctx, time.Now().Add(-since), limit)
				if err != nil {
					return err
				}
				if len(findings) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no findings")
					return nil
				}
				for _, f := range findings {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\texpected=%s\terror_logged=%t\t%s\n",
						f.EventID, f.EventName, f.ResourceID, f.Expected, f.ErrorLogged, f.ProcessedAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&since, "since", 7*24*time.Hour, "how far back to look")
	cmd.Flags().IntVar(&limit, "limit", 500, "maximum events to inspect")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the ledger schema on SQL stores",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Opening a SQL store applies the schema.
			return run(cmd, func(context.Context, *env) error {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			})
		},
	}
}
