package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openpreview/openpreview/pkg/client"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save API credentials for later commands",
	Long: `Prompt for a server URL and API key, verify them against the server,
and save them to ~/.openpreview/credentials.json.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)

		fmt.Printf("Server URL [%s]: ", baseURL)
		urlInput, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read server URL: %w", err)
		}
		urlInput = strings.TrimSpace(urlInput)
		if urlInput == "" {
			urlInput = baseURL
		}

		fmt.Print("API key: ")
		var key string
		if term.IsTerminal(int(os.Stdin.Fd())) {
			keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("read API key: %w", err)
			}
			key = string(keyBytes)
		} else {
			// Piped stdin (scripts, CI) falls back to a plain read.
			keyInput, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("read API key: %w", err)
			}
			key = strings.TrimSpace(keyInput)
		}
		if key == "" {
			return fmt.Errorf("API key cannot be empty")
		}

		// Verify before saving.
		c := client.NewClient(urlInput, key)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if _, err := c.ListThreads(ctx); err != nil {
			return fmt.Errorf("credentials check failed: %w", err)
		}

		if err := saveCredentials(credentials{URL: urlInput, APIKey: key}); err != nil {
			return err
		}

		fmt.Println("✓ Logged in")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove saved API credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := credentialsPath()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				fmt.Println("Not logged in")
				return nil
			}
			return fmt.Errorf("remove credentials: %w", err)
		}
		fmt.Println("✓ Logged out")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
