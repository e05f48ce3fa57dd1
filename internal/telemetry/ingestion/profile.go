package ingestion

import (
	"time"
	"unicode/utf8"
)

const (
	maxSampleFields = 20
	maxErrorRunes   = 200
)

// FileProfile summarizes the normalization of one input file
type FileProfile struct {
	Filename        string   `json:"filename"`
	FileType        string   `json:"file_type"`
	Format          string   `json:"format,omitempty"`
	Family          string   `json:"family"`
	TotalRows       int      `json:"total_rows"`
	SampledRows     int      `json:"sampled_rows,omitempty"`
	NormalizedCount int      `json:"normalized_count"`
	ErrorCount      int      `json:"error_count"`
	SampleFields    []string `json:"sample_fields"`
	Truncated       bool     `json:"truncated"`
	TruncatedInput  bool     `json:"truncated_input"`
	Error           string   `json:"error,omitempty"`
}

// RowError is one record that failed normalization
type RowError struct {
	File  string `json:"file"`
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// DatasetProfile is the profiling report of a normalization run
type DatasetProfile struct {
	GeneratedAt             time.Time               `json:"generated_at"`
	PseudonymizationEnabled bool                    `json:"pseudonymization_enabled"`
	TotalFiles              int                     `json:"total_files"`
	TotalEventsNormalized   int                     `json:"total_events_normalized"`
	TotalIOCsExtracted      int                     `json:"total_iocs_extracted"`
	TotalErrors             int                     `json:"total_errors"`
	Files                   map[string]*FileProfile `json:"files"`
	Errors                  []RowError              `json:"errors"`
}

func newDatasetProfile(generatedAt time.Time, pseudonymized bool) *DatasetProfile {
	return &DatasetProfile{
		GeneratedAt:             generatedAt.UTC(),
		PseudonymizationEnabled: pseudonymized,
		Files:                   make(map[string]*FileProfile),
		Errors:                  []RowError{},
	}
}

// addError counts every error and keeps the first maxErrors
func (p *DatasetProfile) addError(maxErrors int, file string, row int, err error) {
	p.TotalErrors++
	if len(p.Errors) >= maxErrors {
		return
	}
	p.Errors = append(p.Errors, RowError{File: file, Row: row, Error: truncateMessage(err.Error())})
}

func truncateMessage(s string) string {
	if utf8.RuneCountInString(s) <= maxErrorRunes {
		return s
	}
	return string([]rune(s)[:maxErrorRunes])
}
