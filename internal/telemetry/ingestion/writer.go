package ingestion

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
)

// Output file names written into the output directory
const (
	EventsFile  = "events.jsonl"
	IOCsFile    = "iocs.jsonl"
	ProfileFile = "dataset_profile.json"
)

// WriteJSONL writes one JSON object per line
func WriteJSONL[T any](path string, items []T) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	defer func() {
		err = multierr.Combine(err, w.Flush(), f.Close())
	}()

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range items {
		if err := enc.Encode(&items[i]); err != nil {
			return fmt.Errorf("encoding line %d: %w", i+1, err)
		}
	}
	return nil
}

// WriteJSON writes v as a single indented JSON document
func WriteJSON(path string, v any) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	defer func() {
		err = multierr.Combine(err, w.Flush(), f.Close())
	}()

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ReadJSONL decodes up to limit lines of path. A non-positive limit reads
// everything.
func ReadJSONL[T any](path string, limit int) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := []T{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for line := 1; sc.Scan(); line++ {
		if limit > 0 && len(out) >= limit {
			break
		}
		if len(sc.Bytes()) == 0 {
			continue
		}
		var item T
		if err := json.Unmarshal(sc.Bytes(), &item); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filepath.Base(path), line, err)
		}
		out = append(out, item)
	}
	return out, sc.Err()
}

// Write stores events, IOCs and the profile in dir, creating it if needed
func (r *Result) Write(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return multierr.Combine(
		WriteJSONL(filepath.Join(dir, EventsFile), r.Events),
		WriteJSONL(filepath.Join(dir, IOCsFile), r.IOCs),
		WriteJSON(filepath.Join(dir, ProfileFile), r.Profile),
	)
}
