package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
	"github.com/yatuk/SOC-case-study-project/internal/telemetry/normalization"
)

var (
	ErrDatasetsDirMissing = errors.New("datasets directory not found")
	ErrNoInputFiles       = errors.New("no dataset files found")
	ErrUnsupportedFormat  = errors.New("unsupported file type")
)

// Config bounds the output of a normalization run
type Config struct {
	MaxEventsPerFile int `yaml:"max_events_per_file"`
	MaxIOCsPerFile   int `yaml:"max_iocs_per_file"`
	MaxCSVRows       int `yaml:"max_csv_rows"`
	MaxErrors        int `yaml:"max_errors"`
}

// DefaultConfig returns the standard caps
func DefaultConfig() Config {
	return Config{
		MaxEventsPerFile: 1000,
		MaxIOCsPerFile:   2000,
		MaxCSVRows:       2000,
		MaxErrors:        100,
	}
}

// Result is the merged output of a normalization run
type Result struct {
	Events  []telemetry.Event
	IOCs    []telemetry.IOC
	Profile *DatasetProfile
}

// Driver normalizes every dataset file under a directory
type Driver struct {
	config   Config
	rc       *normalization.RunContext
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// NewDriver creates a driver. Zero caps take defaults.
func NewDriver(cfg Config, rc *normalization.RunContext, logger *zap.Logger) *Driver {
	def := DefaultConfig()
	if cfg.MaxEventsPerFile <= 0 {
		cfg.MaxEventsPerFile = def.MaxEventsPerFile
	}
	if cfg.MaxIOCsPerFile <= 0 {
		cfg.MaxIOCsPerFile = def.MaxIOCsPerFile
	}
	if cfg.MaxCSVRows <= 0 {
		cfg.MaxCSVRows = def.MaxCSVRows
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = def.MaxErrors
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		config:   cfg,
		rc:       rc,
		validate: newValidator(),
		logger:   logger,
		now:      time.Now,
	}
}

// Discover returns the dataset files under dir in lexical order. Hidden
// files and directories are skipped.
func Discover(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDatasetsDirMissing, dir)
	}
	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		hidden := strings.HasPrefix(d.Name(), ".") && path != dir
		if d.IsDir() {
			if hidden {
				return filepath.SkipDir
			}
			return nil
		}
		if !hidden && FileType(path) != "" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoInputFiles, dir)
	}
	slices.Sort(files)
	return files, nil
}

// Run normalizes every file under dir. A failing file is recorded in its
// profile and does not stop the run.
func (d *Driver) Run(ctx context.Context, dir string) (*Result, error) {
	files, err := Discover(dir)
	if err != nil {
		return nil, err
	}
	d.logger.Info("dataset files discovered", zap.String("dir", dir), zap.Int("files", len(files)))

	res := &Result{
		Events:  []telemetry.Event{},
		IOCs:    []telemetry.IOC{},
		Profile: newDatasetProfile(d.now(), d.rc.Pseudo.Enabled()),
	}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		rel = filepath.ToSlash(rel)

		events, iocs, fp := d.processFile(ctx, path, rel, res.Profile)
		if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ctx.Err()
		}
		res.Events = append(res.Events, events...)
		res.IOCs = append(res.IOCs, iocs...)
		res.Profile.Files[rel] = fp

		fields := []zap.Field{
			zap.String("file", rel),
			zap.String("family", fp.Family),
			zap.Int("rows", fp.TotalRows),
			zap.Int("normalized", fp.NormalizedCount),
			zap.Int("errors", fp.ErrorCount),
		}
		switch {
		case fp.Error != "":
			d.logger.Warn("file could not be read", append(fields, zap.String("error", fp.Error))...)
		case fp.Truncated || fp.TruncatedInput:
			d.logger.Warn("file truncated", append(fields, zap.Bool("truncated", fp.Truncated), zap.Bool("truncated_input", fp.TruncatedInput))...)
		default:
			d.logger.Info("file normalized", fields...)
		}
	}

	res.Profile.TotalFiles = len(res.Profile.Files)
	res.Profile.TotalEventsNormalized = len(res.Events)
	res.Profile.TotalIOCsExtracted = len(res.IOCs)
	d.logger.Info("normalization complete",
		zap.Int("files", res.Profile.TotalFiles),
		zap.Int("events", len(res.Events)),
		zap.Int("iocs", len(res.IOCs)),
		zap.Int("errors", res.Profile.TotalErrors),
	)
	return res, nil
}

func (d *Driver) processFile(ctx context.Context, path, rel string, profile *DatasetProfile) ([]telemetry.Event, []telemetry.IOC, *FileProfile) {
	fp := &FileProfile{Filename: rel, FileType: FileType(path), Family: "unknown", SampleFields: []string{}}

	collector, err := collectorFor(path, d.config.MaxCSVRows)
	if err != nil {
		fp.Error = truncateMessage(err.Error())
		return nil, nil, fp
	}
	batch, err := collector.Collect(ctx, path)
	if err != nil {
		fp.Error = truncateMessage(err.Error())
		return nil, nil, fp
	}
	fp.Format = batch.Format
	fp.TotalRows = batch.TotalRows
	fp.TruncatedInput = batch.TruncatedInput
	if batch.Format == FormatCSV {
		fp.SampledRows = len(batch.Records)
		fp.SampleFields = sampleFields(batch.Headers)
	}

	var adapter normalization.Adapter
	switch batch.Format {
	case FormatCSV:
		adapter = normalization.DetectCSV(batch.Headers)
	case FormatAccessLog:
		adapter = normalization.WebProxy{}
	default:
		var records []normalization.Record
		for _, r := range batch.Records {
			if r.Err == nil {
				records = append(records, r.Record)
			}
		}
		if len(records) > 0 {
			fp.SampleFields = sampleFields(slices.Sorted(maps.Keys(records[0])))
		}
		adapter = normalization.DetectJSON(records)
	}
	fp.Family = string(adapter.Family())

	recordErr := func(row int, err error) {
		fp.ErrorCount++
		profile.addError(d.config.MaxErrors, rel, row, err)
		d.logger.Debug("record skipped", zap.String("file", rel), zap.Int("row", row), zap.Error(err))
	}

	var events []telemetry.Event
	var iocs []telemetry.IOC
	for i, r := range batch.Records {
		if i%256 == 0 && ctx.Err() != nil {
			return nil, nil, fp
		}

		switch n := adapter.(type) {
		case normalization.IOCNormalizer:
			if len(iocs) >= d.config.MaxIOCsPerFile {
				fp.Truncated = true
			} else if r.Err != nil {
				recordErr(r.Row, r.Err)
			} else if ioc, err := d.normalizeIOC(n, r); err != nil {
				recordErr(r.Row, err)
			} else {
				iocs = append(iocs, *ioc)
				fp.NormalizedCount++
			}
		case normalization.EventNormalizer:
			if len(events) >= d.config.MaxEventsPerFile {
				fp.Truncated = true
			} else if r.Err != nil {
				recordErr(r.Row, r.Err)
			} else if ev, err := d.normalizeEvent(n, r); err != nil {
				recordErr(r.Row, err)
			} else {
				events = append(events, *ev)
				fp.NormalizedCount++
			}
		}
		if fp.Truncated {
			break
		}
	}
	return events, iocs, fp
}

// normalizeEvent runs one record through the adapter and validates the
// result. A panic is reported as an error for this record only.
func (d *Driver) normalizeEvent(n normalization.EventNormalizer, r RawRecord) (ev *telemetry.Event, err error) {
	defer func() {
		if p := recover(); p != nil {
			ev, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	ev, err = n.Normalize(d.rc, r.Record, r.Row)
	if err != nil {
		return nil, err
	}
	if err := d.validate.Struct(ev); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}
	return ev, nil
}

func (d *Driver) normalizeIOC(n normalization.IOCNormalizer, r RawRecord) (ioc *telemetry.IOC, err error) {
	defer func() {
		if p := recover(); p != nil {
			ioc, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	ioc, err = n.NormalizeIOC(d.rc, r.Record, r.Row)
	if err != nil {
		return nil, err
	}
	if err := d.validate.Struct(ioc); err != nil {
		return nil, fmt.Errorf("invalid ioc: %w", err)
	}
	return ioc, nil
}

func sampleFields(fields []string) []string {
	return slices.Clone(fields[:min(len(fields), maxSampleFields)])
}
