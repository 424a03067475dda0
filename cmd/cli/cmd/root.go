package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	baseURL string
	apiKey  string
)

var rootCmd = &cobra.Command{
	Use:   "opv",
	Short: "OpenPreview CLI - Manage preview deployments from the command line",
	Long: `OpenPreview CLI (opv) is a command-line tool for managing OpenPreview threads.

It provides commands to inspect thread snapshots, trigger and cancel deployments,
watch live agent streams, and push local directories as snapshot ticks.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	creds := loadCredentials()

	urlDefault := getEnvOrDefault("OPENPREVIEW_API_URL", creds.URL)
	if urlDefault == "" {
		urlDefault = "http://localhost:8080"
	}
	keyDefault := getEnvOrDefault("OPENPREVIEW_API_KEY", creds.APIKey)

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", urlDefault, "OpenPreview API base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", keyDefault, "OpenPreview API key")
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func checkAPIKey() error {
	if apiKey == "" {
		return fmt.Errorf("API key is required. Run 'opv login', set OPENPREVIEW_API_KEY, or use --api-key")
	}
	return nil
}

// credentials is the saved login state written by 'opv login'. Flags and
// environment variables take precedence over it.
type credentials struct {
	URL    string `json:"url"`
	APIKey string `json:"apiKey"`
}

func credentialsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".openpreview", "credentials.json"), nil
}

func loadCredentials() credentials {
	var creds credentials
	path, err := credentialsPath()
	if err != nil {
		return creds
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return creds
	}
	// Corrupt credentials behave like no credentials.
	_ = json.Unmarshal(data, &creds)
	return creds
}

func saveCredentials(creds credentials) error {
	path, err := credentialsPath()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}
