package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewWorkersCmd создаёт группу команд для просмотра воркеров.
func NewWorkersCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Inspect workers",
	}

	cmd.AddCommand(
		newWorkersListCmd(clientFn, outputFn),
		newWorkersPlanCmd(clientFn, outputFn),
	)

	return cmd
}

func newWorkersListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workers and their shard ranges",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			workers, err := client.ListWorkers()
			if err != nil {
				return err
			}

			headers := []string{"ID", "PID", "STATUS", "SHARDS", "COUNT", "RESTARTS", "SPAWNED"}
			rows := make([][]string, len(workers))
			for i, w := range workers {
				rows[i] = []string{
					strconv.Itoa(w.ID),
					strconv.Itoa(w.PID),
					w.Status,
					w.Shards,
					strconv.Itoa(w.ShardCount),
					strconv.Itoa(w.Restarts),
					w.SpawnedAt,
				}
			}

			out.Print(headers, rows, workers)
			return nil
		},
	}
}

func newWorkersPlanCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the shard count plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			plan, err := client.GetPlan()
			if err != nil {
				return err
			}

			headers := []string{"TOTAL", "RECOMMENDED", "GUILDS_PER_SHARD", "EXPLICIT"}
			rows := [][]string{{
				strconv.Itoa(plan.TotalShards),
				strconv.Itoa(plan.Recommended),
				strconv.Itoa(plan.GuildsPerShard),
				strconv.FormatBool(plan.Explicit),
			}}

			out.Print(headers, rows, plan)
			return nil
		},
	}
}
