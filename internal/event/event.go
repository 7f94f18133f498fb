// Package event defines the detection event emitted by the loop and shared by
// the CSV log, the store, hooks, the notifier and the status server.
package event

import (
	"image"
	"time"

	"github.com/google/uuid"
)

// Classification is the verdict attached to a detection.
type Classification string

const (
	// Allowed means the face matched a known person.
	Allowed Classification = "ALLOWED"
	// Intruder means no known face matched.
	Intruder Classification = "INTRUDER"
)

// Valid reports whether c is one of the known classifications.
func (c Classification) Valid() bool {
	return c == Allowed || c == Intruder
}

// Detection is one emitted alert. Values are never modified after New.
type Detection struct {
	ID             string          `json:"id"`
	Timestamp      time.Time       `json:"timestamp"`
	Classification Classification  `json:"classification"`
	Confidence     float64         `json:"confidence"`
	Box            image.Rectangle `json:"bounding_box"`
	ImagePath      string          `json:"image_path,omitempty"`
	PersonName     string          `json:"person_name,omitempty"`
	CameraIndex    int             `json:"camera_index"`
	FaceDistance   float64         `json:"face_distance,omitempty"`
	Notified       bool            `json:"notified"`
}

// Classify returns Allowed for a known person name and Intruder otherwise.
// unknown is the sentinel name used by the face matcher for no match.
func Classify(name, unknown string) Classification {
	if name == "" || name == unknown {
		return Intruder
	}
	return Allowed
}

// New builds a Detection with a fresh ID.
func New(ts time.Time, class Classification, conf float64, box image.Rectangle, name string, camera int) Detection {
	return Detection{
		ID:             uuid.NewString(),
		Timestamp:      ts,
		Classification: class,
		Confidence:     conf,
		Box:            box,
		PersonName:     name,
		CameraIndex:    camera,
	}
}

// WithImage returns a copy of d pointing at a snapshot file.
func (d Detection) WithImage(path string) Detection {
	d.ImagePath = path
	return d
}

// WithNotified returns a copy of d marked as delivered to the chat.
func (d Detection) WithNotified() Detection {
	d.Notified = true
	return d
}

// DisplayName is the person name, or "unknown" when none was matched.
func (d Detection) DisplayName() string {
	if d.PersonName == "" {
		return "unknown"
	}
	return d.PersonName
}
