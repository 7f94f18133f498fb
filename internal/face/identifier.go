package face

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
)

// Identifier crops a person box out of a frame, embeds it and matches the
// result against the gallery.
type Identifier struct {
	embedder Embedder
	matcher  *Matcher
}

// NewIdentifier combines an embedder and a matcher.
func NewIdentifier(e Embedder, m *Matcher) *Identifier {
	return &Identifier{embedder: e, matcher: m}
}

// Identify returns the matched name for the region of frame inside box. A
// region without a face is reported as Unknown with a nil error.
func (id *Identifier) Identify(frame *gocv.Mat, box image.Rectangle) (Match, error) {
	unknown := Match{Name: Unknown}
	if frame == nil || frame.Empty() {
		return unknown, nil
	}

	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	box = box.Intersect(bounds)
	if box.Empty() {
		return unknown, nil
	}

	region := frame.Region(box)
	defer region.Close()

	vec, err := id.embedder.Embed(&region)
	if errors.Is(err, ErrNoFace) {
		return unknown, nil
	}
	if err != nil {
		return unknown, err
	}
	return id.matcher.Match(vec), nil
}

// Matcher returns the underlying gallery matcher.
func (id *Identifier) Matcher() *Matcher {
	return id.matcher
}

// Close closes the embedder.
func (id *Identifier) Close() error {
	return id.embedder.Close()
}
