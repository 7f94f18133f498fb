// Package eventlog appends detection events to a CSV file and summarizes it.
package eventlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/ayusman/doorcam/internal/event"
)

// TimeLayout is the timestamp format of the timestamp column.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Header is the first row of a new log file.
var Header = []string{"timestamp", "classification", "confidence", "image_path", "person_name"}

// Writer appends rows to a CSV file. It is the only writer of the file.
type Writer struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *csv.Writer
	rows int
}

// Open opens path for appending, creating it with a header row when it does
// not exist or is empty.
func Open(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open detection log: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat detection log: %w", err)
	}

	w := &Writer{path: path, f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := w.writeRow(Header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return w, nil
}

// Append writes one row for ev and flushes it to disk.
func (w *Writer) Append(ev event.Detection) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return os.ErrClosed
	}
	if err := w.writeRow(Row(ev)); err != nil {
		return err
	}
	w.rows++
	return nil
}

// Rows returns how many rows this writer appended.
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return nil
	}
	w.w.Flush()
	err := multierr.Combine(w.w.Error(), w.f.Close())
	w.f = nil
	return err
}

func (w *Writer) writeRow(row []string) error {
	if err := w.w.Write(row); err != nil {
		return fmt.Errorf("write detection log: %w", err)
	}
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		return fmt.Errorf("flush detection log: %w", err)
	}
	return nil
}

// Row renders ev as CSV fields in Header order.
func Row(ev event.Detection) []string {
	return []string{
		ev.Timestamp.Format(TimeLayout),
		string(ev.Classification),
		strconv.FormatFloat(ev.Confidence, 'f', 3, 64),
		ev.ImagePath,
		ev.DisplayName(),
	}
}

// Record is one parsed log row.
type Record struct {
	Timestamp      time.Time
	Classification event.Classification
	Confidence     float64
	ImagePath      string
	PersonName     string
}

// ReadAll parses every row of r after the header. Rows that fail to parse
// are skipped and counted.
func ReadAll(r io.Reader) (records []Record, skipped int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	first := true
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped++
				continue
			}
			return records, skipped, err
		}
		if first {
			first = false
			if len(row) > 0 && row[0] == Header[0] {
				continue
			}
		}

		rec, ok := parseRow(row)
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

func parseRow(row []string) (Record, bool) {
	if len(row) < len(Header) {
		return Record{}, false
	}
	ts, err := time.Parse(TimeLayout, row[0])
	if err != nil {
		return Record{}, false
	}
	conf, err := strconv.ParseFloat(row[2], 64)
	if err != nil {
		return Record{}, false
	}
	return Record{
		Timestamp:      ts,
		Classification: event.Classification(row[1]),
		Confidence:     conf,
		ImagePath:      row[3],
		PersonName:     row[4],
	}, true
}
