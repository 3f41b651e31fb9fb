// Package modelregistry implements C9: a map from model identifier to
// {context_window, max_output, safety_buffer}, loaded from a JSON manifest
// at startup and reloadable, with a fallback inference chain for models the
// manifest doesn't name.
package modelregistry

import (
	"encoding/json"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
)

// Limits describes the token budget parameters of a single model.
type Limits struct {
	ContextWindow int `json:"context_window"`
	MaxOutput     int `json:"max_output"`
	SafetyBuffer  int `json:"safety_buffer"`
}

const (
	defaultMaxOutput    = 4096
	defaultSafetyBuffer = 500
)

// Registry is the read-mostly, reloadable {model_id -> Limits} map.
// The underlying map is swapped atomically on Reload so concurrent lookups
// never observe a torn read.
type Registry struct {
	manifestPath  string
	envDefaultKey string
	table         atomic.Pointer[map[string]Limits]
}

// New loads manifestPath (a JSON object of model_id -> Limits) and returns a
// Registry. A missing manifest is not an error: lookup falls back to
// inference/env-default for every model. Any other read error is returned.
func New(manifestPath string) (*Registry, error) {
	r := &Registry{manifestPath: manifestPath}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the manifest from disk and atomically swaps the table.
// A missing file is treated as an empty manifest, not an error.
func (r *Registry) Reload() error {
	table := map[string]Limits{}
	if r.manifestPath != "" {
		data, err := os.ReadFile(r.manifestPath)
		if err == nil {
			_ = json.Unmarshal(data, &table)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	r.table.Store(&table)
	return nil
}

// Lookup resolves model to its Limits via: (1) exact manifest match, (2)
// any manifest id that is a substring of model, (3) a context-window hint
// inferred from the model name by regex/keyword pattern, (4) an
// environment-derived conservative default.
func (r *Registry) Lookup(model string) Limits {
	table := r.table.Load()
	if table == nil {
		empty := map[string]Limits{}
		table = &empty
	}

	if l, ok := (*table)[model]; ok {
		return l
	}

	for id, l := range *table {
		if id != "" && strings.Contains(model, id) {
			return l
		}
	}

	if window, ok := inferContextWindow(model); ok {
		return Limits{
			ContextWindow: window,
			MaxOutput:     defaultMaxOutput,
			SafetyBuffer:  safetyBufferFor(window),
		}
	}

	return Limits{
		ContextWindow: envDefaultWindow(),
		MaxOutput:     defaultMaxOutput,
		SafetyBuffer:  defaultSafetyBuffer,
	}
}

func safetyBufferFor(window int) int {
	return int(math.Max(0.10*float64(window), float64(defaultSafetyBuffer)))
}

var kHint = regexp.MustCompile(`(?i)(\d+)\s*[kK]\b`)

var namedWindows = []struct {
	pattern string
	window  int
}{
	{"128k", 128_000},
	{"64k", 64_000},
	{"32k", 32_000},
	{"16k", 16_000},
	{"8k", 8_000},
	{"4k", 4_000},
	{"1k", 1_000},
}

// inferContextWindow tries to read a "NNk"-shaped hint out of the model
// name, then falls back to matching one of a small set of named windows
// that commonly appear as substrings of model identifiers.
func inferContextWindow(model string) (int, bool) {
	if m := kHint.FindStringSubmatch(model); len(m) == 2 {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n * 1000, true
		}
	}
	lower := strings.ToLower(model)
	for _, nw := range namedWindows {
		if strings.Contains(lower, nw.pattern) {
			return nw.window, true
		}
	}
	return 0, false
}

// envDefaultWindow reads MAX_MODEL_CONTEXT_LENGTH, falling back to a
// conservative 8192 when unset or invalid.
func envDefaultWindow() int {
	if v := strings.TrimSpace(os.Getenv("MAX_MODEL_CONTEXT_LENGTH")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 8192
}
