package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/openpreview/openpreview/pkg/client"
	"github.com/openpreview/openpreview/pkg/types"
	"github.com/spf13/cobra"
)

var threadCmd = &cobra.Command{
	Use:     "thread",
	Aliases: []string{"th"},
	Short:   "Inspect threads",
	Long:    `List threads and inspect their snapshots, file trees, and session changes.`,
}

var threadListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAPIKey(); err != nil {
			return err
		}

		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		threads, err := c.ListThreads(ctx)
		if err != nil {
			return fmt.Errorf("failed to list threads: %w", err)
		}

		if len(threads) == 0 {
			fmt.Println("No threads found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "THREAD\tPROJECT\tSTATE\tURL\tUPDATED")
		for _, th := range threads {
			updated := ""
			if !th.UpdatedAt.IsZero() {
				updated = th.UpdatedAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				th.ThreadID, th.ProjectName, th.State, th.URL, updated)
		}
		w.Flush()

		return nil
	},
}

var threadStatusCmd = &cobra.Command{
	Use:   "status <thread-id>",
	Short: "Get thread status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAPIKey(); err != nil {
			return err
		}

		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		status, err := c.Status(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, _ := json.MarshalIndent(status, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		printStatus(status)
		return nil
	},
}

var threadTreeCmd = &cobra.Command{
	Use:   "tree <thread-id>",
	Short: "Print the thread's file tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAPIKey(); err != nil {
			return err
		}

		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		tree, err := c.Tree(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get tree: %w", err)
		}

		if len(tree) == 0 {
			fmt.Println("No files")
			return nil
		}
		printTree(tree, "")
		return nil
	},
}

var threadChangesCmd = &cobra.Command{
	Use:   "changes <thread-id>",
	Short: "List the current session's file changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAPIKey(); err != nil {
			return err
		}

		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		changes, err := c.Changes(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get changes: %w", err)
		}

		if len(changes.Records) == 0 {
			fmt.Println("No changes in the current session")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tPATH")
		for _, rec := range changes.Records {
			fmt.Fprintf(w, "%s\t%s\n", rec.Kind, rec.Path)
		}
		w.Flush()

		return nil
	},
}

var threadCatCmd = &cobra.Command{
	Use:   "cat <thread-id> <path>",
	Short: "Print one file from the thread's snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAPIKey(); err != nil {
			return err
		}

		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		file, err := c.ReadFile(ctx, args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}

		fmt.Print(file.Content)
		return nil
	},
}

var threadResetCmd = &cobra.Command{
	Use:   "reset <thread-id>",
	Short: "Clear a thread's snapshot, changes, and deployment record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAPIKey(); err != nil {
			return err
		}

		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := c.Reset(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to reset thread: %w", err)
		}

		fmt.Printf("✓ Thread %s reset\n", args[0])
		return nil
	},
}

func printStatus(status *types.ThreadStatus) {
	fmt.Printf("Thread: %s\n", status.ThreadID)
	fmt.Printf("  State: %s\n", status.State)
	fmt.Printf("  Busy: %t\n", status.Busy)
	fmt.Printf("  Files: %d\n", status.FileCount)
	fmt.Printf("  Changes: %d\n", status.ChangeCount)
	if status.CountdownMs > 0 {
		fmt.Printf("  Auto deploy in: %s\n", (time.Duration(status.CountdownMs) * time.Millisecond).Round(time.Second))
	}
	if status.Record != nil {
		fmt.Printf("  Deployed: %s\n", status.Record.URL)
		fmt.Printf("  Project: %s\n", status.Record.ProjectName)
	}
	if status.HasDrift {
		fmt.Printf("  Drift: snapshot changed since last deploy\n")
	}
	if status.Error != "" {
		fmt.Printf("  Error: %s\n", status.Error)
	}
}

func printTree(nodes []*types.TreeNode, indent string) {
	for _, node := range nodes {
		if node.Kind == types.NodeKindFolder {
			fmt.Printf("%s%s/\n", indent, node.Name)
			printTree(node.Children, indent+"  ")
			continue
		}
		size := ""
		if node.DisplaySize != "" {
			size = "  (" + node.DisplaySize + ")"
		}
		fmt.Printf("%s%s%s\n", indent, node.Name, size)
	}
}

func init() {
	rootCmd.AddCommand(threadCmd)

	threadCmd.AddCommand(threadListCmd)
	threadCmd.AddCommand(threadStatusCmd)
	threadCmd.AddCommand(threadTreeCmd)
	threadCmd.AddCommand(threadChangesCmd)
	threadCmd.AddCommand(threadCatCmd)
	threadCmd.AddCommand(threadResetCmd)

	threadStatusCmd.Flags().Bool("json", false, "Output as JSON")
}
