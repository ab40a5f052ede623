// Package progress remembers what a batch did to each input so that an
// interrupted or partly failed run can be resumed into the same output.
package progress

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// JournalFileName is the journal kept in an output folder.
const JournalFileName = ".progress.json"

const journalVersion = 1

// The journal is written once this many changes are pending or this long
// after the last write, and always on Flush.
const (
	flushEvery    = 64
	flushInterval = 2 * time.Second
)

// State is the outcome recorded for one input.
type State string

const (
	StateDone   State = "done"
	StateFailed State = "failed"
)

// Stamp identifies one version of an input file. An input whose stamp
// changed since it was recorded is processed again.
type Stamp struct {
	Size    int64 `json:"size"`
	ModTime int64 `json:"mtime_ns"`
}

func stampOf(path string) (Stamp, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return Stamp{}, false
	}
	return Stamp{Size: info.Size(), ModTime: info.ModTime().UnixNano()}, true
}

// Record is kept per input. It never holds real identifiers: the journal
// sits next to output that is meant to be shared.
type Record struct {
	State   State     `json:"state"`
	Stamp   Stamp     `json:"stamp"`
	Output  string    `json:"output,omitempty"`
	DummyID string    `json:"dummy_id,omitempty"`
	Kind    string    `json:"kind,omitempty"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

type journalFile struct {
	Version int                `json:"version"`
	Updated time.Time          `json:"updated"`
	Records map[string]*Record `json:"records"`
}

// Journal is a JSON file of Records keyed by input path. Changes are written
// in batches; call Flush when the run ends. A nil *Journal records nothing;
// dry runs use one.
type Journal struct {
	mu        sync.Mutex
	path      string
	records   map[string]*Record
	pending   int
	lastFlush time.Time
	logger    *log.Entry
}

// OpenJournal loads the journal at path. A missing file starts an empty
// journal; an unreadable one is logged and ignored, so every input is
// processed again.
func OpenJournal(path string, logger *log.Entry) *Journal {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	j := &Journal{
		path:    path,
		records:   make(map[string]*Record),
		lastFlush: time.Now(),
		logger:    logger.WithField("journal", path),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return j
	}
	if err != nil {
		j.logger.Warnf("Could not read progress journal: %v", err)
		return j
	}

	var f journalFile
	if err := json.Unmarshal(data, &f); err != nil {
		j.logger.Warnf("Ignoring corrupt progress journal: %v", err)
		return j
	}
	if f.Records != nil {
		j.records = f.Records
	}
	done, failed := j.counts()
	j.logger.Infof("Resuming: %d inputs done, %d failed", done, failed)
	return j
}

// Lookup returns the outcome recorded for input, done or failed, as long as
// the input has not changed since.
func (j *Journal) Lookup(input string) (Record, bool) {
	if j == nil {
		return Record{}, false
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	rec, ok := j.records[input]
	if !ok {
		return Record{}, false
	}
	if stamp, ok := stampOf(input); !ok || stamp != rec.Stamp {
		return Record{}, false
	}
	return *rec, true
}

// MarkDone records that input was written to output under dummyID.
func (j *Journal) MarkDone(input, output, dummyID string) {
	j.set(input, &Record{State: StateDone, Output: output, DummyID: dummyID})
}

// MarkFailed records that input failed with an error of the given kind.
func (j *Journal) MarkFailed(input, kind string, err error) {
	j.set(input, &Record{State: StateFailed, Kind: kind, Error: err.Error()})
}

func (j *Journal) set(input string, rec *Record) {
	if j == nil {
		return
	}
	rec.Stamp, _ = stampOf(input)
	rec.At = time.Now().UTC()

	j.mu.Lock()
	defer j.mu.Unlock()
	j.records[input] = rec
	j.pending++
	if j.pending >= flushEvery || time.Since(j.lastFlush) >= flushInterval {
		j.flush()
	}
}

// Flush writes pending changes.
func (j *Journal) Flush() {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.pending > 0 {
		j.flush()
	}
}

// ForgetFailed drops every failed record so those inputs are retried. It
// returns how many were dropped.
func (j *Journal) ForgetFailed() int {
	if j == nil {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	n := 0
	for input, rec := range j.records {
		if rec.State == StateFailed {
			delete(j.records, input)
			n++
		}
	}
	if n > 0 {
		j.flush()
		j.logger.Infof("Retrying %d failed inputs", n)
	}
	return n
}

// Counts returns the number of done and failed inputs.
func (j *Journal) Counts() (done, failed int) {
	if j == nil {
		return 0, 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.counts()
}

func (j *Journal) counts() (done, failed int) {
	for _, rec := range j.records {
		switch rec.State {
		case StateDone:
			done++
		case StateFailed:
			failed++
		}
	}
	return done, failed
}

// flush rewrites the journal through a temporary file so that a crash never
// leaves it truncated. Errors are logged: losing the journal only costs
// reprocessing.
func (j *Journal) flush() {
	j.pending = 0
	j.lastFlush = time.Now()

	data, err := json.MarshalIndent(journalFile{
		Version: journalVersion,
		Updated: time.Now().UTC(),
		Records: j.records,
	}, "", "  ")
	if err != nil {
		j.logger.Warnf("Could not encode progress journal: %v", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		j.logger.Warnf("Could not save progress journal: %v", err)
		return
	}
	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		j.logger.Warnf("Could not save progress journal: %v", err)
		return
	}
	if err := os.Rename(tmp, j.path); err != nil {
		j.logger.Warnf("Could not save progress journal: %v", err)
	}
}
