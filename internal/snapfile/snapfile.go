// Package snapfile names detection snapshot files. It has no image
// dependencies so the retention sweeper can match names without cgo.
package snapfile

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Prefix starts every snapshot file name.
const Prefix = "detection_"

var unsafe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Name returns detection_<name>_<YYYYmmdd_HHMMSS_mmm>.jpg.
func Name(person string, ts time.Time) string {
	person = unsafe.ReplaceAllString(person, "_")
	if person == "" {
		person = "unknown"
	}
	stamp := ts.Format("20060102_150405") + fmt.Sprintf("_%03d", ts.Nanosecond()/int(time.Millisecond))
	return Prefix + person + "_" + stamp + ".jpg"
}

// Match reports whether a file name looks like one produced by Name.
func Match(name string) bool {
	return strings.HasPrefix(name, Prefix) && strings.EqualFold(filepath.Ext(name), ".jpg")
}
