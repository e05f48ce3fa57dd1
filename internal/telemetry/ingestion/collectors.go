// Package ingestion discovers dataset files, reads their containers and
// drives family normalization into canonical events and IOCs.
package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/yatuk/SOC-case-study-project/internal/telemetry/normalization"
)

// File types by extension
const (
	FileTypeJSON  = "json"
	FileTypeJSONL = "jsonl"
	FileTypeCSV   = "csv"
	FileTypeLog   = "log"
)

// Container formats reported in profiles
const (
	FormatJSONArray = "json_array"
	FormatJSONL     = "jsonl"
	FormatCSV       = "csv"
	FormatAccessLog = "access_log"
)

// countFactor bounds how far past MaxRows a CSV is counted before giving up
const countFactor = 10

const maxLineBytes = 4 << 20

var errNotObject = errors.New("record is not a JSON object")

// RawRecord is one input row. Err is set when the row could not be decoded.
type RawRecord struct {
	Row    int
	Record normalization.Record
	Err    error
}

// Batch is the decoded content of one file
type Batch struct {
	Format         string
	Headers        []string
	Records        []RawRecord
	TotalRows      int
	TruncatedInput bool
}

// Collector reads one container format into raw records
type Collector interface {
	Format() string
	Collect(ctx context.Context, path string) (*Batch, error)
}

// JSONCollector reads a JSON array, falling back to JSON lines when the
// content is not a valid array
type JSONCollector struct{}

func (JSONCollector) Format() string { return FormatJSONArray }

func (JSONCollector) Collect(ctx context.Context, path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))

	if bytes.HasPrefix(data, []byte("[")) {
		var items []any
		if err := json.Unmarshal(data, &items); err == nil {
			b := &Batch{Format: FormatJSONArray, TotalRows: len(items)}
			for i, item := range items {
				b.Records = append(b.Records, objectRecord(i, item))
			}
			return b, nil
		}
	}
	return collectJSONLines(ctx, bytes.NewReader(data))
}

// JSONLCollector reads one JSON object per line. Blank lines are skipped.
type JSONLCollector struct{}

func (JSONLCollector) Format() string { return FormatJSONL }

func (JSONLCollector) Collect(ctx context.Context, path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return collectJSONLines(ctx, f)
}

func collectJSONLines(ctx context.Context, r io.Reader) (*Batch, error) {
	b := &Batch{Format: FormatJSONL}
	err := scanLines(ctx, r, func(row int, line string) {
		var item any
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			b.Records = append(b.Records, RawRecord{Row: row, Err: fmt.Errorf("invalid JSON: %w", err)})
			return
		}
		b.Records = append(b.Records, objectRecord(row, item))
	})
	b.TotalRows = len(b.Records)
	return b, err
}

func objectRecord(row int, item any) RawRecord {
	obj, ok := item.(map[string]any)
	if !ok {
		return RawRecord{Row: row, Err: errNotObject}
	}
	return RawRecord{Row: row, Record: normalization.Record(obj)}
}

// CSVCollector reads a header row and up to MaxRows data rows. Rows past
// MaxRows are counted, up to ten times MaxRows, and flag the batch as
// truncated input.
type CSVCollector struct {
	MaxRows int
}

func (CSVCollector) Format() string { return FormatCSV }

func (c CSVCollector) Collect(ctx context.Context, path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	headers, err := r.Read()
	if errors.Is(err, io.EOF) {
		return &Batch{Format: FormatCSV}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	b := &Batch{Format: FormatCSV, Headers: make([]string, len(headers))}
	for i, h := range headers {
		b.Headers[i] = strings.TrimSpace(h)
	}
	if len(b.Headers) > 0 {
		b.Headers[0] = strings.TrimPrefix(b.Headers[0], string(utf8BOM))
	}

	for {
		if b.TotalRows%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if err != nil && !errors.As(err, &parseErr) {
			return nil, err
		}
		row := b.TotalRows
		b.TotalRows++
		if c.MaxRows > 0 && row >= c.MaxRows {
			b.TruncatedInput = true
			if b.TotalRows >= c.MaxRows*countFactor {
				break
			}
			continue
		}
		if err != nil {
			b.Records = append(b.Records, RawRecord{Row: row, Err: err})
			continue
		}
		rec := make(normalization.Record, len(b.Headers))
		for i, h := range b.Headers {
			if i < len(fields) {
				rec[h] = fields[i]
			} else {
				rec[h] = ""
			}
		}
		b.Records = append(b.Records, RawRecord{Row: row, Record: rec})
	}
	return b, nil
}

// AccessLogCollector reads extended access-log lines into web proxy records
type AccessLogCollector struct{}

func (AccessLogCollector) Format() string { return FormatAccessLog }

func (AccessLogCollector) Collect(ctx context.Context, path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	b := &Batch{Format: FormatAccessLog}
	err = scanLines(ctx, f, func(row int, line string) {
		rec, err := normalization.ParseAccessLogLine(line)
		b.Records = append(b.Records, RawRecord{Row: row, Record: rec, Err: err})
	})
	b.TotalRows = len(b.Records)
	return b, err
}

// scanLines calls fn with every non-blank line and its zero-based line number
func scanLines(ctx context.Context, r io.Reader, fn func(row int, line string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for row := 0; sc.Scan(); row++ {
		if row%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fn(row, line)
	}
	return sc.Err()
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// FileType classifies path by extension, or "" when unsupported
func FileType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FileTypeJSON
	case ".jsonl":
		return FileTypeJSONL
	case ".csv":
		return FileTypeCSV
	case ".log":
		return FileTypeLog
	}
	return ""
}

// collectorFor picks the collector for a file. Log files are sniffed from
// their first non-blank line: JSON lines, access log, otherwise CSV.
func collectorFor(path string, maxRows int) (Collector, error) {
	switch FileType(path) {
	case FileTypeJSON:
		return JSONCollector{}, nil
	case FileTypeJSONL:
		return JSONLCollector{}, nil
	case FileTypeCSV:
		return CSVCollector{MaxRows: maxRows}, nil
	case FileTypeLog:
		line, err := firstLine(path)
		if err != nil {
			return nil, err
		}
		switch {
		case strings.HasPrefix(line, "{"):
			return JSONLCollector{}, nil
		case normalization.IsAccessLogLine(line):
			return AccessLogCollector{}, nil
		default:
			return CSVCollector{MaxRows: maxRows}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
}

func firstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return strings.TrimPrefix(line, string(utf8BOM)), nil
		}
	}
	return "", sc.Err()
}
