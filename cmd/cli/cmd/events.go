package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/openpreview/openpreview/pkg/client"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events <thread-id>",
	Short: "List a thread's deployment events, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAPIKey(); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")

		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		events, err := c.Events(ctx, args[0], limit)
		if err != nil {
			return fmt.Errorf("failed to list events: %w", err)
		}

		if len(events) == 0 {
			fmt.Println("No events found")
			return nil
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, _ := json.MarshalIndent(events, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tTYPE\tSTATE")
		for _, ev := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				ev.CreatedAt.Format("2006-01-02 15:04:05"), ev.Type, ev.State)
		}
		w.Flush()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().Int("limit", 0, "Maximum number of events (0 uses the server default)")
	eventsCmd.Flags().Bool("json", false, "Output as JSON")
}
