package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Config holds all configuration for the openpreview server.
type Config struct {
	Port   int
	APIKey string

	// Provider
	VercelToken   string // deploy token; empty disables deployments
	VercelTeamID  string // optional team scope
	ProjectPrefix string // provider project name prefix, default "preview"
	DeployTarget  string // provider deploy target, default "production"
	Framework     string // default framework preset

	// Engine timing
	AutoDeployDelaySec int // auto-deploy countdown, default 10
	PollIntervalSec    int // provider status poll interval, default 3
	MaxWaitSec         int // provider poll window, default 300

	// Store selection: Postgres wins over Redis wins over SQLite wins
	// over in-memory.
	DatabaseURL string // PostgreSQL connection string
	RedisURL    string // Redis URL
	SQLitePath  string // SQLite database file path

	// Auth
	JWTSecret string // shared secret for thread-scoped stream tokens

	// WorkOS dashboard auth
	WorkOSAPIKey       string
	WorkOSClientID     string
	WorkOSRedirectURI  string
	WorkOSCookieDomain string

	// NATS event pipeline; empty records events straight to the store
	NATSURL string

	// S3-compatible object storage for snapshot archives
	S3Endpoint        string // e.g. "https://<account>.r2.cloudflarestorage.com"
	S3Bucket          string // e.g. "openpreview-snapshots"
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3ForcePathStyle  bool // true for R2/MinIO

	// Azure Blob storage for snapshot archives (used when S3 is not set)
	AzureAccountURL       string
	AzureContainer        string
	AzureConnectionString string

	// Segment analytics
	SegmentWriteKey string

	// Standalone metrics listener; empty serves /metrics on the API port
	MetricsAddr string

	// AWS Secrets Manager. If set, secrets are fetched at startup using
	// IAM credentials. The secret should be a JSON object with keys
	// matching env var names (e.g. OPENPREVIEW_JWT_SECRET). Env vars take
	// precedence over secret values (for local overrides).
	SecretsARN string

	// Azure Key Vault, the alternative secret source. The vault secret
	// named by OPENPREVIEW_KEYVAULT_SECRET (default "openpreview-env")
	// holds the same JSON object shape.
	KeyVaultURL string
}

// Load reads configuration from environment variables with sensible
// defaults. If OPENPREVIEW_SECRETS_ARN or OPENPREVIEW_KEYVAULT_URL is set,
// secrets are fetched first, then environment variables are applied on top
// (env vars take precedence).
func Load() (*Config, error) {
	// Fetch secrets if configured. This populates the process environment
	// so subsequent os.Getenv calls pick them up.
	if arn := os.Getenv("OPENPREVIEW_SECRETS_ARN"); arn != "" {
		if err := loadSecretsManager(arn); err != nil {
			return nil, fmt.Errorf("failed to load secrets from %s: %w", arn, err)
		}
	}
	if vaultURL := os.Getenv("OPENPREVIEW_KEYVAULT_URL"); vaultURL != "" {
		secretName := envOrDefault("OPENPREVIEW_KEYVAULT_SECRET", "openpreview-env")
		if err := loadKeyVault(vaultURL, secretName); err != nil {
			return nil, fmt.Errorf("failed to load secrets from %s: %w", vaultURL, err)
		}
	}

	cfg := &Config{
		Port:   8080,
		APIKey: os.Getenv("OPENPREVIEW_API_KEY"),

		VercelToken:   os.Getenv("OPENPREVIEW_VERCEL_TOKEN"),
		VercelTeamID:  os.Getenv("OPENPREVIEW_VERCEL_TEAM_ID"),
		ProjectPrefix: envOrDefault("OPENPREVIEW_PROJECT_PREFIX", "preview"),
		DeployTarget:  envOrDefault("OPENPREVIEW_DEPLOY_TARGET", "production"),
		Framework:     envOrDefault("OPENPREVIEW_FRAMEWORK", "nextjs"),

		AutoDeployDelaySec: envOrDefaultInt("OPENPREVIEW_AUTO_DEPLOY_DELAY_SEC", 10),
		PollIntervalSec:    envOrDefaultInt("OPENPREVIEW_POLL_INTERVAL_SEC", 3),
		MaxWaitSec:         envOrDefaultInt("OPENPREVIEW_MAX_WAIT_SEC", 300),

		DatabaseURL: envOrDefault("OPENPREVIEW_DATABASE_URL", os.Getenv("DATABASE_URL")),
		RedisURL:    os.Getenv("OPENPREVIEW_REDIS_URL"),
		SQLitePath:  os.Getenv("OPENPREVIEW_SQLITE_PATH"),

		JWTSecret: os.Getenv("OPENPREVIEW_JWT_SECRET"),

		WorkOSAPIKey:       os.Getenv("WORKOS_API_KEY"),
		WorkOSClientID:     os.Getenv("WORKOS_CLIENT_ID"),
		WorkOSRedirectURI:  envOrDefault("WORKOS_REDIRECT_URI", "http://localhost:8080/auth/callback"),
		WorkOSCookieDomain: os.Getenv("WORKOS_COOKIE_DOMAIN"),

		NATSURL: os.Getenv("OPENPREVIEW_NATS_URL"),

		S3Endpoint:        os.Getenv("OPENPREVIEW_S3_ENDPOINT"),
		S3Bucket:          os.Getenv("OPENPREVIEW_S3_BUCKET"),
		S3Region:          envOrDefault("OPENPREVIEW_S3_REGION", "auto"),
		S3AccessKeyID:     os.Getenv("OPENPREVIEW_S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("OPENPREVIEW_S3_SECRET_ACCESS_KEY"),
		S3ForcePathStyle:  os.Getenv("OPENPREVIEW_S3_FORCE_PATH_STYLE") == "true",

		AzureAccountURL:       os.Getenv("OPENPREVIEW_AZURE_ACCOUNT_URL"),
		AzureContainer:        os.Getenv("OPENPREVIEW_AZURE_CONTAINER"),
		AzureConnectionString: os.Getenv("OPENPREVIEW_AZURE_CONNECTION_STRING"),

		SegmentWriteKey: os.Getenv("OPENPREVIEW_SEGMENT_WRITE_KEY"),

		MetricsAddr: os.Getenv("OPENPREVIEW_METRICS_ADDR"),

		SecretsARN:  os.Getenv("OPENPREVIEW_SECRETS_ARN"),
		KeyVaultURL: os.Getenv("OPENPREVIEW_KEYVAULT_URL"),
	}

	if portStr := os.Getenv("OPENPREVIEW_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid OPENPREVIEW_PORT %q: %w", portStr, err)
		}
		cfg.Port = port
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// loadSecretsManager fetches a JSON secret from AWS Secrets Manager and sets
// any values as environment variables (only if not already set, so explicit
// env vars always win). Uses the default AWS credential chain (IAM instance
// profile on EC2, or ~/.aws/credentials locally).
func loadSecretsManager(arn string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Extract region from ARN: arn:aws:secretsmanager:REGION:ACCOUNT:secret:NAME
	var opts []func(*awsconfig.LoadOptions) error
	if parts := strings.Split(arn, ":"); len(parts) >= 4 && parts[3] != "" {
		opts = append(opts, awsconfig.WithRegion(parts[3]))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg)
	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &arn,
	})
	if err != nil {
		return fmt.Errorf("GetSecretValue: %w", err)
	}

	if result.SecretString == nil {
		return fmt.Errorf("secret %s has no string value", arn)
	}

	return applySecretJSON("Secrets Manager", *result.SecretString)
}

// loadKeyVault fetches a JSON secret from Azure Key Vault using the
// ambient Azure credential chain (managed identity, az CLI locally).
func loadKeyVault(vaultURL, secretName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return fmt.Errorf("get azure credential: %w", err)
	}
	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return fmt.Errorf("create key vault client: %w", err)
	}

	resp, err := client.GetSecret(ctx, secretName, "", nil)
	if err != nil {
		return fmt.Errorf("GetSecret %s: %w", secretName, err)
	}
	if resp.Value == nil {
		return fmt.Errorf("secret %s has no value", secretName)
	}

	return applySecretJSON("Key Vault", *resp.Value)
}

func applySecretJSON(source, raw string) error {
	var secrets map[string]string
	if err := json.Unmarshal([]byte(raw), &secrets); err != nil {
		return fmt.Errorf("parse secret JSON: %w", err)
	}

	applied := 0
	for key, value := range secrets {
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
			applied++
		}
	}

	log.Printf("config: loaded %d secrets from %s (%d keys in secret, env overrides take precedence)", applied, source, len(secrets))
	return nil
}
