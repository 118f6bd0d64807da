package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/callbackd/client"
)

func newWaitCmd() *cobra.Command {
	var (
		serverURL    string
		timeout      time.Duration
		pollInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "wait STATE",
		Short: "Wait for an OAuth callback and print it as JSON",
		Long: `Block until the callback for STATE arrives at the callback server, then
print the outcome as JSON on stdout.

STATE is the correlation token the flow was started with. Retrieval is
destructive: once this command has printed the outcome, the server forgets
it. The command exits non-zero when the timeout elapses or the callback
carries a provider error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Server URL - env var only applies if flag was not explicitly set
			if !cmd.Flags().Changed("server-url") {
				if url := os.Getenv("CALLBACK_SERVER_URL"); url != "" {
					serverURL = url
				}
			}

			c, err := client.New(client.Config{
				BaseURL:      serverURL,
				PollInterval: pollInterval,
			})
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer cancel()

			res, err := c.Wait(ctx, args[0], timeout)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}

			if !res.Succeeded() {
				return fmt.Errorf("authorization failed: %s", res.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server-url", "http://localhost:8000", "Base URL of the callback server. Can also use CALLBACK_SERVER_URL env var.")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for the callback before giving up.")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", client.DefaultPollInterval, "Delay between retrieval attempts.")

	return cmd
}
