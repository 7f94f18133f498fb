package face

import "math"

// DefaultThreshold is the dlib acceptance distance.
const DefaultThreshold = 0.6

// Match is the outcome of comparing one embedding against the gallery.
type Match struct {
	Name     string
	Distance float64
}

// Known reports whether the match names a gallery entry.
func (m Match) Known() bool {
	return m.Name != "" && m.Name != Unknown
}

// Matcher scans a gallery linearly. Gallery sizes are expected to be small.
type Matcher struct {
	gallery   []KnownFace
	threshold float64
}

// NewMatcher creates a matcher. A non-positive threshold uses DefaultThreshold.
func NewMatcher(gallery []KnownFace, threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{gallery: gallery, threshold: threshold}
}

// Len returns the gallery size.
func (m *Matcher) Len() int {
	return len(m.gallery)
}

// Names lists gallery entries in load order.
func (m *Matcher) Names() []string {
	names := make([]string, len(m.gallery))
	for i, k := range m.gallery {
		names[i] = k.Name
	}
	return names
}

// Match returns the nearest entry whose distance is strictly below the
// threshold, or Unknown with the best distance seen.
func (m *Matcher) Match(vec []float64) Match {
	best := Match{Name: Unknown, Distance: math.Inf(1)}
	if len(vec) == 0 {
		return best
	}

	for _, k := range m.gallery {
		if len(k.Embedding) != len(vec) {
			continue
		}
		d := Distance(vec, k.Embedding)
		if d < best.Distance {
			best.Distance = d
			if d < m.threshold {
				best.Name = k.Name
			} else {
				best.Name = Unknown
			}
		}
	}
	return best
}

// Distance is the euclidean distance between two vectors of equal length.
func Distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
