package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/truthvision/truthvision-go/internal/errors"
	"github.com/truthvision/truthvision-go/internal/media"
)

// FileSource reads media from the local filesystem.
type FileSource struct{}

// NewFileSource creates a local file source.
func NewFileSource() *FileSource {
	return &FileSource{}
}

// Fetch opens the file at ref (a path or file:// URL).
func (s *FileSource) Fetch(ctx context.Context, ref string) (media.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return media.Candidate{}, apperrors.NewTransportError("The file read was canceled.", err)
	}

	p := strings.TrimPrefix(strings.TrimSpace(ref), "file://")
	if p == "" {
		return media.Candidate{}, apperrors.NewNoFileSelectedError()
	}

	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return media.Candidate{}, apperrors.NewNotFoundError(fmt.Sprintf("File %s does not exist.", p), err)
		}
		return media.Candidate{}, apperrors.NewInternalError("failed to stat file", err)
	}
	if info.IsDir() {
		return media.Candidate{}, apperrors.NewValidationError(fmt.Sprintf("%s is a directory.", p), nil)
	}

	f, err := os.Open(p)
	if err != nil {
		return media.Candidate{}, apperrors.NewInternalError("failed to open file", err)
	}
	defer f.Close()

	candidate, err := readCandidate(f, filepath.Base(p), "", info.Size())
	if err != nil {
		return media.Candidate{}, apperrors.NewInternalError("failed to read file", err)
	}
	return candidate, nil
}
