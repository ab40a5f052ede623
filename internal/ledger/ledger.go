// Package ledger records real to dummy identifier mappings in a CSV file that
// many anonymization jobs may append to at the same time.
package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nightlyone/lockfile"
	log "github.com/sirupsen/logrus"
)

// DefaultTimeout bounds the wait for the ledger lock.
const DefaultTimeout = 200 * time.Millisecond

// DefaultHeader names the Entry columns in file order.
var DefaultHeader = []string{"Image", "AccessionNumber", "InputDir", "DummyID"}

var (
	// ErrLockTimeout means the ledger lock was not acquired in time. Append
	// recovers from it by writing to a side file.
	ErrLockTimeout = errors.New("ledger lock timeout")
	// ErrPersistence means neither the ledger nor the side file could be written.
	ErrPersistence = errors.New("could not persist audit entry")
)

// Entry is one real to dummy mapping. It is never updated once written.
type Entry struct {
	Image         string // record locator, usually the input file path
	RealID        string
	SourceContext string // containing directory name
	DummyID       string
}

func (e Entry) row() []string {
	return []string{e.Image, e.RealID, e.SourceContext, e.DummyID}
}

// AppendResult tells where an entry ended up.
type AppendResult struct {
	Path       string
	Fragmented bool // written to a side file instead of the ledger
}

// Locker is an advisory inter-process lock. lockfile.Lockfile satisfies it.
type Locker interface {
	TryLock() error
	Unlock() error
}

// LockerFunc creates the Locker guarding lockPath.
type LockerFunc func(lockPath string) (Locker, error)

func newLockfile(lockPath string) (Locker, error) {
	return lockfile.New(lockPath)
}

// Ledger appends entries to one CSV file. A Ledger is safe for concurrent use,
// and several processes may each hold a Ledger on the same path.
type Ledger struct {
	path      string
	lockPath  string
	sidePath  string
	header    []string
	timeout   time.Duration
	newLocker LockerFunc
	logger    *log.Entry

	sideMu sync.Mutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithTimeout sets the lock wait bound.
func WithTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.timeout = d }
}

// WithLocker replaces the lockfile based inter-process lock.
func WithLocker(f LockerFunc) Option {
	return func(l *Ledger) { l.newLocker = f }
}

// WithHeader overrides the header row. It must have one column per Entry field.
func WithHeader(header []string) Option {
	return func(l *Ledger) { l.header = header }
}

// WithLogger sets the logger used for lock timeout warnings.
func WithLogger(logger *log.Entry) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New prepares a ledger at path, creating its directory.
func New(path string, opts ...Option) (*Ledger, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("could not resolve ledger path: %w", err)
	}

	l := &Ledger{
		path:      abs,
		lockPath:  abs + ".lock",
		sidePath:  abs + "_" + uniqueName(),
		header:    DefaultHeader,
		timeout:   DefaultTimeout,
		newLocker: newLockfile,
		logger:    log.NewEntry(log.StandardLogger()),
	}
	for _, opt := range opts {
		opt(l)
	}

	if len(l.header) != len(Entry{}.row()) {
		return nil, fmt.Errorf("ledger header has %d columns, entries have %d", len(l.header), len(Entry{}.row()))
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return nil, fmt.Errorf("could not create ledger directory: %w", err)
	}
	return l, nil
}

// uniqueName identifies this writer: host, process and a random suffix.
func uniqueName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s.%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

// Path returns the absolute ledger path.
func (l *Ledger) Path() string { return l.path }

// SideFile returns the path this writer falls back to on lock timeout.
func (l *Ledger) SideFile() string { return l.sidePath }

// Append writes entry to the ledger, adding the header row if the file is new.
// Calling it twice with the same entry writes two rows.
//
// When the lock cannot be taken before the timeout or ctx ends, the entry goes
// to this writer's side file instead and the result is marked Fragmented. Only
// when that write fails too is an error wrapping ErrPersistence returned.
func (l *Ledger) Append(ctx context.Context, entry Entry) (AppendResult, error) {
	err := l.withLock(ctx, func() error {
		return appendRows(l.path, l.header, entry.row())
	})
	if err == nil {
		return AppendResult{Path: l.path}, nil
	}

	l.logger.Warnf("%v. Log the entry to %s", err, l.sidePath)

	l.sideMu.Lock()
	defer l.sideMu.Unlock()
	if sideErr := appendRows(l.sidePath, l.header, entry.row()); sideErr != nil {
		return AppendResult{}, fmt.Errorf("%w: ledger: %v; side file: %v", ErrPersistence, err, sideErr)
	}
	return AppendResult{Path: l.sidePath, Fragmented: true}, nil
}

// appendRows appends row to path, writing header first when the file is empty.
func appendRows(path string, header, row []string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("could not stat %s: %w", path, err)
	}

	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		writer.Write(header)
	}
	writer.Write(row)
	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		return fmt.Errorf("could not write %s: %w", path, err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("could not sync %s: %w", path, err)
	}
	return file.Close()
}
