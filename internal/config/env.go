package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Env is a namespaced view over environment variables (e.g. "DOORCAM_").
type Env struct{ prefix string }

// NewEnv returns a root Env with no prefix.
func NewEnv() Env { return Env{} }

// Prefix returns a child Env with an additional prefix.
func (e Env) Prefix(p string) Env { return Env{prefix: e.prefix + p} }

func (e Env) key(k string) string { return e.prefix + k }

func (e Env) lookup(k string) string {
	return strings.TrimSpace(os.Getenv(e.key(k)))
}

// MayString returns the value or def if missing/empty.
func (e Env) MayString(key, def string) string {
	if v := e.lookup(key); v != "" {
		return v
	}
	return def
}

// MayInt returns the value or def if missing, empty or not an int.
func (e Env) MayInt(key string, def int) int {
	s := e.lookup(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// MayFloat returns the value or def if missing, empty or not a float.
func (e Env) MayFloat(key string, def float64) float64 {
	s := e.lookup(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

// MayBool parses a bool-like value ("1|true|yes|0|false|no") with default fallback.
func (e Env) MayBool(key string, def bool) bool {
	switch strings.ToLower(e.lookup(key)) {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// MayDuration accepts Go durations ("2s", "500ms") or a bare number of seconds.
func (e Env) MayDuration(key string, def time.Duration) time.Duration {
	s := e.lookup(key)
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}
