// Command verifyctl lets operators run payment verification strategies
// directly against the ledger, bypassing the public strategy list and the
// rate limiter. Every run is written to the verification audit trail.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"course-subscription-be/internal/bootstrap"
	"course-subscription-be/internal/config"
	"course-subscription-be/internal/entity"
	"course-subscription-be/pkg/billing/guard"
	"course-subscription-be/pkg/database"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow, color.Bold)
	errColor  = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.Faint)
)

type app struct {
	container *bootstrap.Container
}

func main() {
	a := &app{}

	root := &cobra.Command{
		Use:           "verifyctl",
		Short:         "Operator tool for subscription payment verification",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	var reference string
	timestampCmd := &cobra.Command{
		Use:   "timestamp <user-id> <RFC3339 time>",
		Short: "Find the pending payment a user started around a time",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userId, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			ts, err := time.Parse(time.RFC3339, args[1])
			if err != nil {
				return fmt.Errorf("invalid time: %w", err)
			}
			result, err := a.container.Engine.VerifyByTimestamp(cmd.Context(), userId, ts, reference)
			if err != nil {
				return err
			}
			a.audit(cmd.Context(), userId, entity.MethodTimestamp, entity.Evidence{Timestamp: &ts, ReferenceId: reference}, result)
			printResult(result)
			return nil
		},
	}
	timestampCmd.Flags().StringVar(&reference, "ref", "", "transaction id or recognition id to narrow the match")

	root.AddCommand(
		&cobra.Command{
			Use:   "order <user-id> <order-id>",
			Short: "Verify a payment by provider Order ID",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				userId, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid user id: %w", err)
				}
				result, err := a.container.Engine.VerifyByOrderId(cmd.Context(), userId, args[1])
				if err != nil {
					return err
				}
				a.audit(cmd.Context(), userId, entity.MethodOrderId, entity.Evidence{OrderId: args[1]}, result)
				printResult(result)
				return nil
			},
		},
		&cobra.Command{
			Use:   "txhash <user-id> <tx-hash>",
			Short: "Verify a payment by on-chain transaction hash",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				userId, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid user id: %w", err)
				}
				result, err := a.container.Engine.VerifyByTxHash(cmd.Context(), userId, args[1])
				if err != nil {
					return err
				}
				a.audit(cmd.Context(), userId, entity.MethodTxHash, entity.Evidence{TxHash: args[1]}, result)
				printResult(result)
				return nil
			},
		},
		timestampCmd,
		&cobra.Command{
			Use:   "pending <user-id>",
			Short: "List a user's unresolved payments",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				userId, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid user id: %w", err)
				}
				rows, err := a.container.Service.GetPendingPayments(cmd.Context(), userId)
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					dimColor.Println("no pending payments")
					return nil
				}
				for _, row := range rows {
					amount := "-"
					if row.Amount != nil {
						amount = *row.Amount
					}
					fmt.Printf("%s  %s  %-12s %s\n", row.Id, row.CreatedAt.Format(time.RFC3339), row.Type, amount)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "status <user-id>",
			Short: "Show a user's subscription",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				userId, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid user id: %w", err)
				}
				status, err := a.container.Service.GetStatus(cmd.Context(), userId)
				if err != nil {
					return err
				}
				if status.Subscription == nil {
					dimColor.Println("no subscription")
					return nil
				}
				if status.Active {
					okColor.Print("ACTIVE ")
				} else {
					warnColor.Print("INACTIVE ")
				}
				sub := status.Subscription
				fmt.Printf("%s  status=%s  provider=%s  ends=%s\n", sub.Id, sub.Status, sub.Provider, sub.CurrentPeriodEnd.Format(time.RFC3339))
				return nil
			},
		},
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		errColor.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) open() error {
	cfg := config.Load()
	db, err := database.Open(cfg.Database.Driver, cfg.Database.Connection)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.container, err = bootstrap.NewContainer(db, cfg)
	return err
}

func (a *app) close() error {
	if a.container == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	return a.container.Shutdown(ctx)
}

func (a *app) audit(ctx context.Context, userId uuid.UUID, method entity.VerificationMethod, evidence entity.Evidence, result *entity.VerificationResult) {
	a.container.Guard.Record(ctx, guard.Attempt{
		UserId:   userId,
		Method:   method,
		Evidence: evidence,
		Result:   result,
		Details:  map[string]interface{}{"source": "verifyctl"},
	})
}

func printResult(result *entity.VerificationResult) {
	switch result.Outcome {
	case entity.OutcomeSuccess:
		okColor.Print("SUCCESS ")
		if result.Idempotent {
			dimColor.Print("(already applied) ")
		}
		fmt.Println(result.Message)
		if sub := result.Subscription; sub != nil {
			fmt.Printf("  subscription %s ends %s\n", sub.Id, sub.CurrentPeriodEnd.Format(time.RFC3339))
		}
	case entity.OutcomeNeedsConfirmation:
		warnColor.Print("NEEDS CONFIRMATION ")
		fmt.Println(result.Message)
		if c := result.Candidate; c != nil {
			fmt.Printf("  candidate %s created %s\n", c.Id, c.CreatedAt.Format(time.RFC3339))
		}
	default:
		errColor.Printf("%s ", result.ErrorCode())
		fmt.Println(result.Message)
	}
}
