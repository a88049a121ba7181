package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewStatsCmd создаёт группу команд для статистики.
func NewStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Inspect aggregated statistics",
	}

	cmd.AddCommand(
		newStatsShowCmd(clientFn, outputFn),
		newStatsHistoryCmd(clientFn, outputFn),
		newStatsCollectCmd(clientFn, outputFn),
	)

	return cmd
}

func newStatsShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the latest aggregate per worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			stats, err := client.GetStats()
			if err != nil {
				return err
			}

			headers := []string{"CLUSTER", "SHARDS", "GUILDS", "USERS", "RAM_MB", "UPTIME"}
			rows := make([][]string, 0, len(stats.Clusters)+1)
			for _, c := range stats.Clusters {
				rows = append(rows, []string{
					strconv.Itoa(c.Cluster),
					strconv.Itoa(c.Shards),
					strconv.Itoa(c.Guilds),
					strconv.Itoa(c.Users),
					formatRAM(c.RAM),
					formatUptime(c.Uptime),
				})
			}
			rows = append(rows, []string{
				"total",
				strconv.Itoa(stats.Shards),
				strconv.Itoa(stats.Guilds),
				strconv.Itoa(stats.Users),
				formatRAM(stats.TotalRAM),
				"",
			})

			out.Print(headers, rows, stats)
			if !stats.Complete && len(stats.Missing) > 0 {
				out.Success("missing reports from workers: " + joinInts(stats.Missing))
			}
			return nil
		},
	}
}

func newStatsHistoryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived aggregates",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			history, err := client.StatsHistory(limit)
			if err != nil {
				return err
			}

			headers := []string{"ROUND", "SHARDS", "GUILDS", "USERS", "RAM_MB", "COMPLETE", "COLLECTED"}
			rows := make([][]string, len(history))
			for i, s := range history {
				rows[i] = []string{
					s.Round,
					strconv.Itoa(s.Shards),
					strconv.Itoa(s.Guilds),
					strconv.Itoa(s.Users),
					formatRAM(s.TotalRAM),
					strconv.FormatBool(s.Complete),
					s.CollectedAt,
				}
			}

			out.Print(headers, rows, history)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newStatsCollectCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Request an immediate stats round",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().CollectStats(); err != nil {
				return err
			}
			outputFn().Success("Stats round requested")
			return nil
		},
	}
}

func formatRAM(mb float64) string {
	return strconv.FormatFloat(mb, 'f', 1, 64)
}

// formatUptime форматирует uptime в миллисекундах.
func formatUptime(ms int64) string {
	sec := ms / 1000
	return fmt.Sprintf("%dd %02dh %02dm", sec/86400, sec%86400/3600, sec%3600/60)
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}
