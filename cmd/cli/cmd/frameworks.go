package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/openpreview/openpreview/pkg/client"
	"github.com/spf13/cobra"
)

var frameworksCmd = &cobra.Command{
	Use:     "frameworks",
	Aliases: []string{"fw"},
	Short:   "List deployable framework presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAPIKey(); err != nil {
			return err
		}

		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		frameworks, err := c.ListFrameworks(ctx)
		if err != nil {
			return fmt.Errorf("failed to list frameworks: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDISPLAY\tDEFAULT")
		for _, fw := range frameworks {
			def := ""
			if fw.Default {
				def = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", fw.Name, fw.DisplayName, def)
		}
		w.Flush()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(frameworksCmd)
}
