package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/relaymesh/aibroker/internal/cache"
	"github.com/relaymesh/aibroker/internal/models"
)

func NewCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the response cache",
	}

	cmd.AddCommand(newCacheStatsCommand())
	cmd.AddCommand(newCacheOptimizeCommand())
	cmd.AddCommand(newCacheInvalidateCommand())

	return cmd
}

func newCacheStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats [user-id]",
		Short: "Show cache hit/miss counters, globally or for one user",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rdb, err := openRedis(ctx)
			if err != nil {
				return err
			}
			defer rdb.Close()
			c := cache.New(rdb, cfg.Cache, log)

			var stats *cache.Stats
			scope := "global"
			if len(args) == 1 {
				userID, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid user ID: %w", err)
				}
				scope = userID.String()
				stats, err = c.UserStats(ctx, userID)
				if err != nil {
					return err
				}
			} else {
				stats, err = c.GlobalStats(ctx)
				if err != nil {
					return err
				}
			}

			if outputJSON {
				return printJSON(stats)
			}

			fmt.Printf("Cache stats (%s)\n", scope)
			fmt.Printf("  Requests:      %d\n", stats.TotalRequests)
			fmt.Printf("  Hits:          %d\n", stats.Hits)
			fmt.Printf("  Misses:        %d\n", stats.Misses)
			fmt.Printf("  Hit rate:      %.1f%%\n", stats.HitRate)
			fmt.Printf("  Cost saved:    $%.4f\n", stats.CostSaved)
			fmt.Printf("  Avg response:  %.3fs\n", stats.AvgResponseTime)
			fmt.Printf("  Storage bytes: %d\n", stats.StorageBytes)
			return nil
		},
	}
	return cmd
}

func newCacheOptimizeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Sweep the cache: drop corrupt and never-hit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rdb, err := openRedis(ctx)
			if err != nil {
				return err
			}
			defer rdb.Close()

			report, err := cache.New(rdb, cfg.Cache, log).Optimize(ctx)
			if err != nil {
				return err
			}

			if outputJSON {
				return printJSON(report)
			}

			fmt.Printf("Cache optimisation complete\n")
			fmt.Printf("  Scanned:                %d\n", report.Scanned)
			fmt.Printf("  Corrupt removed:        %d\n", report.CorruptRemoved)
			fmt.Printf("  Unused removed:         %d\n", report.UnusedRemoved)
			fmt.Printf("  Compression candidates: %d\n", report.CompressionCandidates)
			return nil
		},
	}
	return cmd
}

func newCacheInvalidateCommand() *cobra.Command {
	var userIDArg, taskArg string

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Delete cache entries by user and/or task type",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userIDArg == "" && taskArg == "" {
				return fmt.Errorf("at least one of --user-id or --task is required")
			}

			var userID *uuid.UUID
			if userIDArg != "" {
				parsed, err := uuid.Parse(userIDArg)
				if err != nil {
					return fmt.Errorf("invalid user ID: %w", err)
				}
				userID = &parsed
			}

			var task *models.TaskType
			if taskArg != "" {
				t := models.TaskType(taskArg)
				if !t.Valid() {
					return fmt.Errorf("unknown task type %q", taskArg)
				}
				task = &t
			}

			ctx := cmd.Context()
			rdb, err := openRedis(ctx)
			if err != nil {
				return err
			}
			defer rdb.Close()

			deleted, err := cache.New(rdb, cfg.Cache, log).Invalidate(ctx, userID, task)
			if err != nil {
				return err
			}

			if outputJSON {
				return printJSON(map[string]int{"deleted": deleted})
			}
			fmt.Printf("Deleted %d cache entries\n", deleted)
			return nil
		},
	}

	cmd.Flags().StringVar(&userIDArg, "user-id", "", "only entries belonging to this user")
	cmd.Flags().StringVar(&taskArg, "task", "", "only entries of this task type")
	return cmd
}
