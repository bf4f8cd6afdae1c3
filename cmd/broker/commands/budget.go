package commands

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/relaymesh/aibroker/internal/models"
)

func NewBudgetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Inspect per-user budgets and usage",
	}

	cmd.AddCommand(newBudgetStatusCommand())
	cmd.AddCommand(newBudgetUsageCommand())

	return cmd
}

func newBudgetStatusCommand() *cobra.Command {
	var tier string

	cmd := &cobra.Command{
		Use:   "status <user-id>",
		Short: "Show a user's month-to-date budget status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user ID: %w", err)
			}
			ctx := cmd.Context()

			rdb, err := openRedis(ctx)
			if err != nil {
				return err
			}
			defer rdb.Close()

			tracker, err := buildTracker(rdb)
			if err != nil {
				return err
			}

			user := models.User{ID: userID, Tier: models.UserTier(tier)}
			status, err := tracker.Status(ctx, user)
			if err != nil {
				return err
			}
			realtime, err := tracker.RealTime(ctx, userID)
			if err != nil {
				return err
			}

			if outputJSON {
				return printJSON(map[string]any{
					"status":    status,
					"real_time": realtime,
				})
			}

			fmt.Printf("Budget status for %s (%s tier)\n", userID, status.Tier)
			fmt.Printf("  Limit:             $%.2f\n", status.Limit)
			fmt.Printf("  Current usage:     $%.4f (%.1f%%)\n", status.CurrentUsage, status.PercentUsed)
			fmt.Printf("  Remaining:         $%.4f\n", status.RemainingBudget)
			fmt.Printf("  Days remaining:    %d\n", status.DaysRemaining)
			fmt.Printf("  Projected spend:   $%.4f\n", status.ProjectedSpend)
			if status.ProjectedOverage > 0 {
				fmt.Printf("  Projected overage: $%.4f\n", status.ProjectedOverage)
			}
			fmt.Printf("\nReal-time counters\n")
			fmt.Printf("  Hourly cost:    $%.4f\n", realtime.HourlyCost)
			fmt.Printf("  Daily cost:     $%.4f\n", realtime.DailyCost)
			fmt.Printf("  Monthly cost:   $%.4f\n", realtime.MonthlyCost)
			fmt.Printf("  Daily requests: %d\n", realtime.DailyRequests)
			return nil
		},
	}

	cmd.Flags().StringVar(&tier, "tier", string(models.TierFree), "subscription tier (free, creator, business, agency)")
	return cmd
}

func newBudgetUsageCommand() *cobra.Command {
	var tier string
	var days int

	cmd := &cobra.Command{
		Use:   "usage <user-id>",
		Short: "Show a user's usage breakdown over a trailing window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user ID: %w", err)
			}
			ctx := cmd.Context()

			tracker, err := buildTracker(nil)
			if err != nil {
				return err
			}

			user := models.User{ID: userID, Tier: models.UserTier(tier)}
			summary, err := tracker.UsageSummary(ctx, user, days)
			if err != nil {
				return err
			}

			if outputJSON {
				return printJSON(summary)
			}

			fmt.Printf("Usage for %s over the last %d days\n", userID, days)
			fmt.Printf("  Requests:  %d\n", summary.TotalRequests)
			fmt.Printf("  Total:     $%.4f\n", summary.TotalCost)
			fmt.Printf("  Avg/req:   $%.6f\n\n", summary.AvgCostPerRequest)

			printBreakdown("By model", summary.ModelBreakdown)
			printBreakdown("By task", summary.TaskBreakdown)

			if len(summary.DailyTrend) > 0 {
				headers := []string{"Date", "Requests", "Cost"}
				rows := make([][]string, 0, len(summary.DailyTrend))
				for _, day := range summary.DailyTrend {
					rows = append(rows, []string{
						day.Date,
						fmt.Sprintf("%d", day.Requests),
						fmt.Sprintf("$%.4f", day.Cost),
					})
				}
				fmt.Println("Daily trend")
				printTable(headers, rows)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tier, "tier", string(models.TierFree), "subscription tier (free, creator, business, agency)")
	cmd.Flags().IntVar(&days, "days", 30, "trailing window in days")
	return cmd
}

func printBreakdown(title string, buckets map[string]*models.BreakdownBucket) {
	if len(buckets) == 0 {
		return
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := []string{title, "Requests", "Cost", "Avg"}
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		b := buckets[k]
		rows = append(rows, []string{
			k,
			fmt.Sprintf("%d", b.Count),
			fmt.Sprintf("$%.4f", b.Cost),
			fmt.Sprintf("$%.6f", b.AvgCost),
		})
	}
	printTable(headers, rows)
	fmt.Println()
}
