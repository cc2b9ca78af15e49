package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	apperrors "github.com/truthvision/truthvision-go/internal/errors"
	"github.com/truthvision/truthvision-go/internal/media"
	"github.com/truthvision/truthvision-go/pkg/validation"
)

// blobDownloader is the part of *azblob.Client the source needs.
type blobDownloader interface {
	DownloadStream(ctx context.Context, containerName, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
}

// AzureSource reads media from Azure Blob Storage via azblob://container/blob
// references.
type AzureSource struct {
	client blobDownloader
}

// NewAzureSource creates a source authenticated with a shared account key.
func NewAzureSource(accountName string, accountKey string) (*AzureSource, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid azure credentials: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure blob client: %w", err)
	}

	return &AzureSource{client: client}, nil
}

// Fetch downloads the referenced blob.
func (s *AzureSource) Fetch(ctx context.Context, ref string) (media.Candidate, error) {
	containerName, blobName, err := parseBlobRef(ref)
	if err != nil {
		return media.Candidate{}, err
	}

	downloadResponse, err := s.client.DownloadStream(ctx, containerName, blobName, nil)
	if err != nil {
		return media.Candidate{}, blobError(containerName, blobName, err)
	}

	body := downloadResponse.Body
	defer body.Close()

	declaredType := ""
	if downloadResponse.ContentType != nil {
		declaredType = *downloadResponse.ContentType
	}
	declaredSize := int64(-1)
	if downloadResponse.ContentLength != nil {
		declaredSize = *downloadResponse.ContentLength
	}

	candidate, err := readCandidate(body, baseName(blobName, blobName), declaredType, declaredSize)
	if err != nil {
		return media.Candidate{}, apperrors.NewTransportError(fmt.Sprintf("failed to read blob: %v", err), err)
	}
	return candidate, nil
}

// parseBlobRef splits azblob://container/path/to/blob.
func parseBlobRef(ref string) (string, string, error) {
	parsed, err := validation.NewURLValidatorWithOptions([]string{validation.SchemeAzBlob}, nil).ValidateRef(ref)
	if err != nil {
		return "", "", err
	}
	return parsed.Host, strings.TrimPrefix(parsed.Path, "/"), nil
}

func blobError(containerName, blobName string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return apperrors.NewNotFoundError(fmt.Sprintf("Blob %s/%s does not exist.", containerName, blobName), err)
	}
	return apperrors.NewTransportError(fmt.Sprintf("download failed: %v", err), err)
}
