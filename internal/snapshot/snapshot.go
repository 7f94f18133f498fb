// Package snapshot saves annotated JPEGs of detection frames.
package snapshot

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/doorcam/internal/snapfile"
)

var (
	green = color.RGBA{G: 255, A: 255}
	red   = color.RGBA{R: 255, A: 255}
)

// Writer writes snapshots into one directory.
type Writer struct {
	dir string
}

// NewWriter creates a writer for dir. The directory is created on first use.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Annotation is what gets drawn on the frame copy.
type Annotation struct {
	Box        image.Rectangle
	Name       string
	Confidence float64
	Intruder   bool
	Time       time.Time
}

// Save draws a onto a copy of frame and writes it as JPEG. The frame itself
// is not modified.
func (w *Writer) Save(frame *gocv.Mat, a Annotation) (string, error) {
	if frame == nil || frame.Empty() {
		return "", errors.New("empty frame")
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create detections dir: %w", err)
	}

	img := frame.Clone()
	defer img.Close()

	c := green
	if a.Intruder {
		c = red
	}

	if !a.Box.Empty() {
		gocv.Rectangle(&img, a.Box, c, 2)
	}
	label := fmt.Sprintf("%s (%.0f%%)", displayName(a.Name), a.Confidence*100)
	gocv.PutText(&img, label, image.Pt(10, 30), gocv.FontHersheySimplex, 1, c, 2)
	gocv.PutText(&img, a.Time.Format("2006-01-02 15:04:05"), image.Pt(10, 70), gocv.FontHersheySimplex, 0.7, c, 2)

	path := filepath.Join(w.dir, snapfile.Name(a.Name, a.Time))
	if ok := gocv.IMWrite(path, img); !ok {
		return "", fmt.Errorf("write snapshot %s", path)
	}
	return path, nil
}

func displayName(n string) string {
	if n == "" {
		return "unknown"
	}
	return n
}
