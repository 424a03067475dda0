package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/openpreview/openpreview/pkg/client"
	"github.com/openpreview/openpreview/pkg/types"
	"github.com/spf13/cobra"
)

var deployCmd = &cobra.Command{
	Use:   "deploy <thread-id>",
	Short: "Deploy a thread's snapshot now, skipping any countdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAPIKey(); err != nil {
			return err
		}

		threadID := args[0]

		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		status, err := c.Deploy(ctx, threadID)
		if err != nil {
			return fmt.Errorf("failed to deploy: %w", err)
		}

		fmt.Printf("✓ Deployment started for thread %s (state=%s)\n", threadID, status.State)

		wait, _ := cmd.Flags().GetBool("wait")
		if !wait {
			return nil
		}
		return waitForDeploy(c, threadID)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <thread-id>",
	Short: "Cancel a pending auto-deploy countdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAPIKey(); err != nil {
			return err
		}

		c := client.NewClient(baseURL, apiKey)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		status, err := c.CancelCountdown(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to cancel: %w", err)
		}

		fmt.Printf("✓ Countdown cancelled for thread %s (state=%s)\n", args[0], status.State)
		return nil
	},
}

// waitForDeploy polls thread status until the deployment reaches a terminal
// state. The server enforces its own poll window; this timeout is a backstop.
func waitForDeploy(c *client.Client, threadID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var lastState types.DeployState
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for deployment")
		case <-ticker.C:
		}

		status, err := c.Status(ctx, threadID)
		if err != nil {
			return fmt.Errorf("failed to poll status: %w", err)
		}

		if status.State != lastState {
			fmt.Printf("  %s\n", status.State)
			lastState = status.State
		}

		switch status.State {
		case types.DeployStateReady:
			if status.Record != nil {
				fmt.Printf("✓ Deployed: %s\n", status.Record.URL)
			} else {
				fmt.Println("✓ Deployed")
			}
			return nil
		case types.DeployStateError:
			if status.Error != "" {
				return fmt.Errorf("deployment failed: %s", status.Error)
			}
			return fmt.Errorf("deployment failed")
		case types.DeployStateIdle:
			// A reset or cancel raced the deploy.
			return fmt.Errorf("deployment did not start")
		}
	}
}

func init() {
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(cancelCmd)

	deployCmd.Flags().Bool("wait", false, "Wait for the deployment to finish")
}
