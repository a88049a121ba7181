package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewBroadcastCmd создаёт команду рассылки сообщения всем воркерам.
func NewBroadcastCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "broadcast JSON",
		Short: "Send a JSON message to every worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := json.RawMessage(args[0])
			if !json.Valid(msg) {
				return fmt.Errorf("message is not valid JSON")
			}

			n, err := clientFn().Broadcast(msg)
			if err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Delivered to %d workers", n))
			return nil
		},
	}
}
