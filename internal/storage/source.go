// Package storage turns local paths and remote references into media
// candidates. Sources never apply the type and size policy themselves; they
// only avoid reading bytes that the policy would reject anyway.
package storage

import (
	"bytes"
	"context"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/truthvision/truthvision-go/internal/media"
)

// Source fetches the media a reference points to.
type Source interface {
	Fetch(ctx context.Context, ref string) (media.Candidate, error)
}

// sniffLen is how many leading bytes are inspected to detect a content type.
const sniffLen = 3072

// extensionTypes backs up sniffing for containers mimetype reports generically.
var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
}

// detectContentType picks the declared type when it is one we accept, then
// the sniffed type, then the extension.
func detectContentType(declared string, head []byte, name string) string {
	if _, ok := media.KindOf(declared); ok {
		return media.NormalizeContentType(declared)
	}

	if len(head) > 0 {
		sniffed := media.NormalizeContentType(mimetype.Detect(head).String())
		if _, ok := media.KindOf(sniffed); ok {
			return sniffed
		}
		if ct, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]; ok {
			return ct
		}
		return sniffed
	}

	if ct, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return media.NormalizeContentType(declared)
}

// readLimit is the byte bound for contentType, or 0 when the type would be
// rejected and nothing should be read.
func readLimit(contentType string) int64 {
	kind, ok := media.KindOf(contentType)
	if !ok {
		return 0
	}
	return media.MaxBytes(kind)
}

// readCandidate sniffs r and reads it only while it stays within the bound
// for its type. declaredSize < 0 means unknown. An oversized or unsupported
// body yields a candidate with a size and no data.
func readCandidate(r io.Reader, name, declaredType string, declaredSize int64) (media.Candidate, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return media.Candidate{}, err
	}
	head = head[:n]

	candidate := media.Candidate{
		Name:        name,
		ContentType: detectContentType(declaredType, head, name),
		Size:        declaredSize,
	}
	if candidate.Size < 0 {
		candidate.Size = int64(n)
	}

	limit := readLimit(candidate.ContentType)
	if limit == 0 || candidate.Size > limit {
		return candidate, nil
	}

	data, err := io.ReadAll(io.LimitReader(io.MultiReader(bytes.NewReader(head), r), limit+1))
	if err != nil {
		return media.Candidate{}, err
	}
	candidate.Size = int64(len(data))
	if candidate.Size > limit {
		// The declared size was missing or wrong
		return candidate, nil
	}
	candidate.Data = data
	return candidate, nil
}

// baseName returns the last path element of a URL or blob path.
func baseName(p, fallback string) string {
	name := path.Base(strings.TrimRight(p, "/"))
	if name == "." || name == "/" || name == "" {
		return fallback
	}
	return name
}
