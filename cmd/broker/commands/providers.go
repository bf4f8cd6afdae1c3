package commands

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaymesh/aibroker/internal/providers"
)

// NewTestProvidersCommand probes every configured provider with a
// minimal live call and reports health, latency and cost.
func NewTestProvidersCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "test-providers",
		Short: "Test connectivity to every configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := buildRegistry()
			if err != nil {
				return err
			}

			models := registry.Available()
			sort.Slice(models, func(i, j int) bool { return models[i] < models[j] })

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			statuses := make([]providers.ConnectionStatus, 0, len(models))
			failed := 0
			for _, id := range models {
				client, _ := registry.Client(id)
				status := client.TestConnection(ctx)
				if !status.Success {
					failed++
				}
				statuses = append(statuses, status)
			}

			if outputJSON {
				if err := printJSON(statuses); err != nil {
					return err
				}
			} else {
				headers := []string{"Model", "Status", "Latency", "Cost", "Remaining"}
				rows := make([][]string, 0, len(statuses))
				for _, s := range statuses {
					state := "OK"
					if !s.Success {
						state = "FAILED: " + s.Error
					}
					rows = append(rows, []string{
						string(s.Model),
						state,
						fmt.Sprintf("%.2fs", s.ResponseTime),
						fmt.Sprintf("$%.6f", s.Cost),
						fmt.Sprintf("%d", s.RateLimitRemaining),
					})
				}
				printTable(headers, rows)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d providers failed", failed, len(statuses))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall probe timeout")
	return cmd
}
