package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/openpreview/openpreview/pkg/client"
	"github.com/openpreview/openpreview/pkg/types"
	"github.com/spf13/cobra"
)

var pushCmd = &cobra.Command{
	Use:   "push <thread-id> [dir]",
	Short: "Push a local directory as one snapshot tick",
	Long: `Read a local directory and push it to a thread as a single full-state
snapshot tick. With --busy the tick marks the agent as still working,
which suppresses the auto-deploy countdown.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAPIKey(); err != nil {
			return err
		}

		threadID := args[0]
		dir := "."
		if len(args) == 2 {
			dir = args[1]
		}

		busy, _ := cmd.Flags().GetBool("busy")

		files, err := collectFiles(dir)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no files found under %s", dir)
		}

		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		status, err := c.ApplyState(ctx, threadID, types.SnapshotUpdate{
			Files: files,
			Busy:  busy,
		})
		if err != nil {
			return fmt.Errorf("failed to push snapshot: %w", err)
		}

		fmt.Printf("✓ Pushed %d files to thread %s (state=%s)\n", len(files), threadID, status.State)
		if status.CountdownMs > 0 {
			fmt.Printf("  Auto deploy in %s\n", (time.Duration(status.CountdownMs) * time.Millisecond).Round(time.Second))
		}
		return nil
	},
}

// collectFiles reads every regular file under dir into a snapshot file map,
// keyed by slash-separated relative path. Dependency and VCS directories are
// skipped.
func collectFiles(dir string) (map[string]types.FileState, error) {
	files := make(map[string]types.FileState)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "node_modules", ".next", "dist":
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		files[filepath.ToSlash(rel)] = types.FileState{Content: string(data)}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return files, nil
}

func init() {
	rootCmd.AddCommand(pushCmd)

	pushCmd.Flags().Bool("busy", false, "Mark the agent as still working")
}
