// Package media validates candidate files and holds the single current
// selection together with its preview handle.
package media

import (
	"mime"
	"strings"

	apperrors "github.com/truthvision/truthvision-go/internal/errors"
)

// Kind is the broad class of a selected file.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Size bounds per kind.
const (
	MaxImageBytes int64 = 5 * 1024 * 1024
	MaxVideoBytes int64 = 100 * 1024 * 1024
)

var acceptedTypes = map[string]Kind{
	"image/jpeg":       KindImage,
	"image/png":        KindImage,
	"image/webp":       KindImage,
	"video/mp4":        KindVideo,
	"video/webm":       KindVideo,
	"video/quicktime":  KindVideo, // .mov
	"video/x-matroska": KindVideo, // .mkv
}

// Candidate is one file offered by a picker or source, before validation.
type Candidate struct {
	Name        string
	ContentType string
	// Size is the declared size. Sources may leave Data nil when Size is
	// already known to exceed the bound, so oversized files are never read.
	Size int64
	Data []byte
}

// SelectedMedia is a validated candidate. Data is owned by the Selection
// until submission, after which the analysis call borrows it.
type SelectedMedia struct {
	Name        string
	ContentType string
	Kind        Kind
	Size        int64
	Data        []byte
	Preview     *Preview
}

// NormalizeContentType lowercases a content type and strips parameters.
func NormalizeContentType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return strings.ToLower(mediaType)
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// KindOf maps an accepted content type to its Kind.
func KindOf(contentType string) (Kind, bool) {
	kind, ok := acceptedTypes[NormalizeContentType(contentType)]
	return kind, ok
}

// MaxBytes returns the size bound for kind.
func MaxBytes(kind Kind) int64 {
	if kind == KindVideo {
		return MaxVideoBytes
	}
	return MaxImageBytes
}

// Validate checks a candidate's type and size without touching any selection.
func Validate(c Candidate) (Kind, error) {
	kind, ok := KindOf(c.ContentType)
	if !ok {
		return "", apperrors.NewUnsupportedTypeError(c.ContentType)
	}
	size := c.size()
	if limit := MaxBytes(kind); size > limit {
		return "", apperrors.NewFileTooLargeError(size, limit)
	}
	return kind, nil
}

// Single enforces the one-file rule on a picker result.
func Single(candidates []Candidate) (Candidate, error) {
	switch len(candidates) {
	case 0:
		return Candidate{}, apperrors.NewValidationError("no file provided", nil)
	case 1:
		return candidates[0], nil
	default:
		return Candidate{}, apperrors.NewValidationError("only one file can be analyzed at a time", nil)
	}
}

func (c Candidate) size() int64 {
	if n := int64(len(c.Data)); n > c.Size {
		return n
	}
	return c.Size
}
