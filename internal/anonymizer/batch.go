package anonymizer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	dcm "dicom-deidentify/internal/dicom"
	"dicom-deidentify/internal/identity"
	"dicom-deidentify/internal/ledger"
	"dicom-deidentify/internal/metrics"
	"dicom-deidentify/internal/policy"
	"dicom-deidentify/internal/progress"
)

// LedgerFileName is the default ledger name inside the output folder.
const LedgerFileName = "idLookup.csv"

// Config holds the batch configuration. Policy and Keys are loaded once at
// startup and shared read-only by all workers.
type Config struct {
	InputFolder  string
	OutputFolder string // defaults to <input>/anonymized
	StudyID      string // written to StudyID and used as an output sub-folder
	LedgerFile   string // defaults to <output root>/idLookup.csv
	Recursive    bool
	DryRun       bool
	RetryFailed  bool
	Workers      int
	LockTimeout  time.Duration

	Policy *policy.Policy
	Keys   identity.ShiftKeys
	Logger *log.Entry
}

// OutputRoot is the folder dummy-ID sub-folders are created in.
func (c Config) OutputRoot() string {
	out := c.OutputFolder
	if out == "" {
		out = filepath.Join(c.InputFolder, "anonymized")
	}
	if c.StudyID != "" {
		out = filepath.Join(out, c.StudyID)
	}
	return out
}

// LedgerPath is the ledger file the batch appends to.
func (c Config) LedgerPath() string {
	if c.LedgerFile != "" {
		return c.LedgerFile
	}
	return filepath.Join(c.OutputRoot(), LedgerFileName)
}

// Stats holds processing statistics
type Stats struct {
	Success    int
	Failed     int
	Skipped    int
	Fragmented int // audit entries written to a side file
	Warnings   int
}

// FileStatus is reported to the progress callback.
type FileStatus string

const (
	FileSuccess FileStatus = "success"
	FileFailed  FileStatus = "failed"
	FileSkipped FileStatus = "skipped"
)

// FileResult is the outcome of one input file.
type FileResult struct {
	Path       string
	OutputPath string
	DummyID    string
	Fragmented bool
	Warnings   []Warning
	Err        error // *Error when not nil
}

// ProgressCallback is called once per input file, after it was handled.
type ProgressCallback func(current, total int, res FileResult, status FileStatus)

// OutputPath resolves where the anonymized copy of file is written.
func OutputPath(outputRoot, dummyID, file string) string {
	return filepath.Join(outputRoot, dummyID, filepath.Base(file))
}

// ProcessFolder anonymizes every DICOM file in cfg.InputFolder. One record
// failing never stops the batch; when any did, the returned error wraps
// ErrBatchPartialFailure and Stats is still complete.
func ProcessFolder(ctx context.Context, cfg Config, progressCb ProgressCallback) (*Stats, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	if cfg.Policy == nil {
		return nil, fmt.Errorf("no field policy configured")
	}
	if err := cfg.Keys.Validate(); err != nil {
		return nil, err
	}

	outputRoot := cfg.OutputRoot()
	files, err := dcm.FindDicomFiles(cfg.InputFolder, cfg.Recursive, outputRoot)
	if err != nil {
		return nil, fmt.Errorf("could not find DICOM files: %w", err)
	}
	if len(files) == 0 {
		logger.Infof("No DICOM files found in %s", cfg.InputFolder)
		return &Stats{}, nil
	}
	logger.Infof("Anonymizing %d dicoms in %s", len(files), cfg.InputFolder)

	b := &batch{
		cfg:        cfg,
		outputRoot: outputRoot,
		engine:     NewEngine(cfg.Policy, cfg.Keys, WithLogger(logger)),
		logger:     logger,
		stats:      &Stats{},
		total:      len(files),
		progressCb: progressCb,
	}

	if !cfg.DryRun {
		timeout := cfg.LockTimeout
		if timeout <= 0 {
			timeout = ledger.DefaultTimeout
		}
		b.ledger, err = ledger.New(cfg.LedgerPath(), ledger.WithTimeout(timeout), ledger.WithLogger(logger))
		if err != nil {
			return nil, err
		}

		b.journal = progress.OpenJournal(filepath.Join(outputRoot, progress.JournalFileName), logger)
		if cfg.RetryFailed {
			b.journal.ForgetFailed()
		}

		b.failures, err = progress.OpenFailureLog(filepath.Join(outputRoot, progress.FailureLogFileName))
		if err != nil {
			return nil, err
		}
		defer b.failures.Close()
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, file := range files {
		file := file
		g.Go(func() error {
			b.record(b.processFile(ctx, file))
			return nil
		})
	}
	g.Wait()
	b.journal.Flush()

	stats := b.stats
	logger.Infof("Complete! %d succeeded, %d failed, %d skipped, %d fragmented audit entries",
		stats.Success, stats.Failed, stats.Skipped, stats.Fragmented)

	if stats.Failed > 0 {
		return stats, fmt.Errorf("%w: %d of %d", ErrBatchPartialFailure, stats.Failed, len(files))
	}
	return stats, nil
}

type batch struct {
	cfg        Config
	outputRoot string
	engine     *Engine
	ledger     *ledger.Ledger
	journal    *progress.Journal
	failures   *progress.FailureLog
	logger     *log.Entry
	progressCb ProgressCallback

	mu    sync.Mutex
	stats *Stats
	done  int
	total int
}

// processFile runs the whole pipeline for one input file: load, apply,
// write, audit.
func (b *batch) processFile(ctx context.Context, file string) FileResult {
	res := FileResult{Path: file}

	if rec, ok := b.journal.Lookup(file); ok {
		if rec.State == progress.StateFailed {
			b.logger.Warnf("Skipping %s: %s in a previous run, use --retry to process it again", file, rec.Kind)
		}
		res.OutputPath = rec.Output
		res.DummyID = rec.DummyID
		res.Err = errSkipped
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Err = &Error{Kind: KindUnreadableRecord, Locator: file, Err: err}
		return res
	}

	ds, err := dcm.ReadDicom(file)
	if err != nil {
		res.Err = &Error{Kind: KindUnreadableRecord, Locator: file, Err: err}
		return res
	}

	applied, err := b.engine.Apply(ds, Request{
		Locator:       file,
		SourceContext: filepath.Base(filepath.Dir(file)),
		OverrideID:    b.cfg.StudyID,
	})
	if err != nil {
		res.Err = err
		return res
	}
	res.DummyID = applied.DummyID
	res.Warnings = applied.Warnings
	res.OutputPath = OutputPath(b.outputRoot, applied.DummyID, file)

	if b.cfg.DryRun {
		b.logger.Infof("[DRY RUN] %s -> %s", file, res.OutputPath)
		return res
	}

	if err := ds.Save(res.OutputPath); err != nil {
		res.Err = &Error{Kind: KindWriteFailed, Locator: file, Err: err}
		return res
	}
	b.logger.Debugf("Anonymized %s", res.OutputPath)

	appended, err := b.ledger.Append(ctx, applied.Entry)
	if err != nil {
		res.Err = &Error{Kind: KindAuditFailed, Locator: file, Err: err}
		return res
	}
	res.Fragmented = appended.Fragmented
	return res
}

var errSkipped = errors.New("already processed")

// record folds one result into the batch statistics and side channels.
func (b *batch) record(res FileResult) {
	b.remember(res)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.done++
	status := FileSuccess

	switch {
	case errors.Is(res.Err, errSkipped):
		status = FileSkipped
		b.stats.Skipped++
		metrics.Records.WithLabelValues(string(FileSkipped)).Inc()
	case res.Err != nil:
		status = FileFailed
		b.stats.Failed++
		b.logger.Errorf("Failed to anonymize %s: %v", res.Path, res.Err)
		metrics.Records.WithLabelValues(string(FileFailed)).Inc()
	case b.cfg.DryRun:
		status = FileSkipped
		b.stats.Skipped++
	default:
		b.stats.Success++
		metrics.Records.WithLabelValues(string(FileSuccess)).Inc()
	}

	b.stats.Warnings += len(res.Warnings)
	for _, w := range res.Warnings {
		metrics.FieldWarnings.WithLabelValues(w.Kind.String()).Inc()
	}
	if res.Fragmented {
		b.stats.Fragmented++
		metrics.LedgerFragmented.Inc()
	}

	if b.progressCb != nil {
		b.progressCb(b.done, b.total, res, status)
	}
}

// remember writes the outcome to the resume journal and the failure log. Both
// lock on their own so workers do not wait on each other's file writes.
func (b *batch) remember(res FileResult) {
	switch {
	case errors.Is(res.Err, errSkipped), b.cfg.DryRun && res.Err == nil:
	case res.Err != nil:
		kind := KindOf(res.Err).String()
		b.journal.MarkFailed(res.Path, kind, res.Err)
		b.failures.Add(res.Path, kind, res.Err)
	default:
		b.journal.MarkDone(res.Path, res.OutputPath, res.DummyID)
	}
}
