package media

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
)

// ErrPreviewReleased is returned when a released preview is read.
var ErrPreviewReleased = errors.New("preview handle released")

// Preview is a renderable reference to the selected bytes, valid only while
// its selection is held.
type Preview struct {
	id          string
	contentType string

	mu       sync.RWMutex
	data     []byte
	released bool
}

func newPreview(data []byte, contentType string) *Preview {
	return &Preview{
		id:          uuid.NewString(),
		contentType: contentType,
		data:        data,
	}
}

// ID identifies the handle, e.g. for cache-busting preview URLs.
func (p *Preview) ID() string { return p.id }

// ContentType is the media type to render the preview with.
func (p *Preview) ContentType() string { return p.contentType }

// Open returns a reader over the preview bytes.
func (p *Preview) Open() (io.ReadSeeker, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.released {
		return nil, ErrPreviewReleased
	}
	return bytes.NewReader(p.data), nil
}

// Released reports whether the handle has been released.
func (p *Preview) Released() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.released
}

// release drops the reference. It reports false if already released.
func (p *Preview) release() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return false
	}
	p.released = true
	p.data = nil
	return true
}
