package media

// Selection holds at most one SelectedMedia. It is not safe for concurrent
// use; the submission controller serializes access.
type Selection struct {
	current   *SelectedMedia
	onAcquire func(*Preview)
	onRelease func(*Preview)
}

// Option configures a Selection.
type Option func(*Selection)

// WithPreviewHooks observes every preview acquire and release.
func WithPreviewHooks(onAcquire, onRelease func(*Preview)) Option {
	return func(s *Selection) {
		s.onAcquire = onAcquire
		s.onRelease = onRelease
	}
}

// NewSelection creates an empty selection.
func NewSelection(opts ...Option) *Selection {
	s := &Selection{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select validates c and, on success, replaces the current selection. On
// failure the current selection is left untouched.
func (s *Selection) Select(c Candidate) (*SelectedMedia, error) {
	kind, err := Validate(c)
	if err != nil {
		return nil, err
	}

	s.releaseCurrent()

	contentType := NormalizeContentType(c.ContentType)
	preview := newPreview(c.Data, contentType)
	if s.onAcquire != nil {
		s.onAcquire(preview)
	}
	s.current = &SelectedMedia{
		Name:        c.Name,
		ContentType: contentType,
		Kind:        kind,
		Size:        c.size(),
		Data:        c.Data,
		Preview:     preview,
	}
	return s.current, nil
}

// Clear releases the current selection. Calling it on an empty selection is a no-op.
func (s *Selection) Clear() {
	s.releaseCurrent()
}

// Current returns the held media or nil.
func (s *Selection) Current() *SelectedMedia {
	return s.current
}

func (s *Selection) releaseCurrent() {
	if s.current == nil {
		return
	}
	if s.current.Preview.release() && s.onRelease != nil {
		s.onRelease(s.current.Preview)
	}
	s.current = nil
}
