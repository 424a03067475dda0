package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureConfig holds the configuration for the Azure Blob storage backend.
// ConnectionString takes precedence; otherwise AccountURL is used with the
// ambient Azure credential chain.
type AzureConfig struct {
	AccountURL       string
	Container        string
	ConnectionString string
}

// AzureStore keeps snapshot archives in an Azure Blob container.
type AzureStore struct {
	client    *azblob.Client
	container string
}

// NewAzure creates a new Azure Blob snapshot store.
func NewAzure(cfg AzureConfig) (*AzureStore, error) {
	if cfg.Container == "" {
		return nil, fmt.Errorf("azure container is required")
	}

	var client *azblob.Client
	var err error
	if cfg.ConnectionString != "" {
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure client: %w", err)
		}
	} else {
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("failed to get azure credential: %w", credErr)
		}
		client, err = azblob.NewClient(cfg.AccountURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure client: %w", err)
		}
	}

	return &AzureStore{
		client:    client,
		container: cfg.Container,
	}, nil
}

// Upload writes a snapshot archive to the blob container.
func (a *AzureStore) Upload(ctx context.Context, key string, data []byte) error {
	if _, err := a.client.UploadBuffer(ctx, a.container, key, data, nil); err != nil {
		return fmt.Errorf("failed to upload snapshot to azure: %w", err)
	}
	return nil
}

// Download returns an io.ReadCloser streaming the archive from the
// container. The caller must close the reader when done.
func (a *AzureStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download snapshot from azure: %w", err)
	}
	return resp.Body, nil
}

// Delete removes a snapshot archive from the container.
func (a *AzureStore) Delete(ctx context.Context, key string) error {
	if _, err := a.client.DeleteBlob(ctx, a.container, key, nil); err != nil {
		return fmt.Errorf("failed to delete snapshot from azure: %w", err)
	}
	return nil
}
