package eventlog

import (
	"fmt"
	"os"
	"time"

	"github.com/ayusman/doorcam/internal/event"
)

// Stats summarizes the log over a time window.
type Stats struct {
	Since             time.Time `json:"since"`
	Total             int       `json:"total_detections"`
	Allowed           int       `json:"allowed_count"`
	Intruder          int       `json:"intruder_count"`
	UniquePersons     int       `json:"unique_persons"`
	AverageConfidence float64   `json:"average_confidence"`
	Skipped           int       `json:"skipped_rows"`
}

// Summarize computes Stats over records at or after since.
func Summarize(records []Record, since time.Time) Stats {
	s := Stats{Since: since}
	persons := make(map[string]struct{})
	var sum float64

	for _, r := range records {
		if r.Timestamp.Before(since) {
			continue
		}
		s.Total++
		sum += r.Confidence
		persons[r.PersonName] = struct{}{}
		if r.Classification == event.Allowed {
			s.Allowed++
		} else {
			s.Intruder++
		}
	}

	s.UniquePersons = len(persons)
	if s.Total > 0 {
		s.AverageConfidence = sum / float64(s.Total)
	}
	return s
}

// StatsFile reads the log at path and summarizes the last window. A missing
// file yields zero stats.
func StatsFile(path string, window time.Duration, now time.Time) (Stats, error) {
	since := now.Add(-window)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Stats{Since: since}, nil
		}
		return Stats{}, fmt.Errorf("open detection log: %w", err)
	}
	defer f.Close()

	records, skipped, err := ReadAll(f)
	if err != nil {
		return Stats{}, fmt.Errorf("read detection log: %w", err)
	}
	s := Summarize(records, since)
	s.Skipped = skipped
	return s, nil
}
