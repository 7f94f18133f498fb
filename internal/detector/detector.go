// Package detector runs a pretrained object-detection model on frames and
// keeps only the "person" boxes the door camera cares about.
package detector

import (
	"image"
	"sort"

	"gocv.io/x/gocv"
)

// PersonClass is the COCO label of humans.
const PersonClass = "person"

// PersonClassID is the COCO index of the person class.
const PersonClassID = 0

// Detection is one box reported by the model.
type Detection struct {
	Class      string          `json:"class"`
	ClassID    int             `json:"class_id"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
}

// Detector defines the interface for object detection implementations.
type Detector interface {
	// Detect analyzes a frame and returns the boxes found in it.
	// Returns an empty slice if nothing was detected.
	Detect(frame *gocv.Mat) ([]Detection, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for the model helper process.
type Config struct {
	// Script is the path of the Python detection service. Empty means search
	// the usual install locations.
	Script string

	// Python is the interpreter used to run Script. Empty means a venv
	// interpreter if one is found, python3 otherwise.
	Python string

	// Model is the weights file passed to the service (default: yolov8n.pt).
	Model string

	// MinConfidence is the floor handed to the model so it can skip obviously
	// weak boxes. The person filter applies the real threshold.
	MinConfidence float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Model:         "yolov8n.pt",
		MinConfidence: 0.25,
	}
}

// IsPerson reports whether d is a person box.
func (d Detection) IsPerson() bool {
	return d.Class == PersonClass || (d.Class == "" && d.ClassID == PersonClassID)
}

// FilterPersons keeps person boxes with a non-empty box and a confidence of
// at least threshold, ordered by confidence, best first.
func FilterPersons(dets []Detection, threshold float64) []Detection {
	var out []Detection
	for _, d := range dets {
		if !d.IsPerson() {
			continue
		}
		if d.Box.Empty() {
			continue
		}
		if d.Confidence < threshold {
			continue
		}
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})

	return out
}

// PersonFilter wraps a Detector so that Detect only returns qualifying persons.
type PersonFilter struct {
	inner     Detector
	threshold float64
}

// NewPersonFilter returns a Detector that applies FilterPersons to inner.
func NewPersonFilter(inner Detector, threshold float64) *PersonFilter {
	return &PersonFilter{inner: inner, threshold: threshold}
}

// Detect runs the wrapped detector and filters its output.
func (f *PersonFilter) Detect(frame *gocv.Mat) ([]Detection, error) {
	dets, err := f.inner.Detect(frame)
	if err != nil {
		return nil, err
	}
	return FilterPersons(dets, f.threshold), nil
}

// Close closes the wrapped detector.
func (f *PersonFilter) Close() error {
	return f.inner.Close()
}

// Threshold returns the confidence threshold of the filter.
func (f *PersonFilter) Threshold() float64 {
	return f.threshold
}
