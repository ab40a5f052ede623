package progress

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FailureLogFileName is the failure log kept in an output folder.
const FailureLogFileName = "errors.log"

// FailureLog appends one tab-separated line per failed input:
//
//	<RFC 3339 time>	<kind>	<input path>	<error>
//
// Lines from earlier runs are kept. A nil *FailureLog discards failures.
type FailureLog struct {
	mu    sync.Mutex
	file  *os.File
	w     *csv.Writer
	count int
}

// OpenFailureLog opens path for appending, creating its folder.
func OpenFailureLog(path string) (*FailureLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("could not create failure log folder: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open failure log: %w", err)
	}

	w := csv.NewWriter(file)
	w.Comma = '\t'
	return &FailureLog{file: file, w: w}, nil
}

// Add records that input failed.
func (l *FailureLog) Add(input, kind string, err error) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	l.w.Write([]string{time.Now().UTC().Format(time.RFC3339), kind, input, err.Error()})
	l.w.Flush()
}

// Count returns the number of failures added since the log was opened.
func (l *FailureLog) Count() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Close flushes and closes the log file.
func (l *FailureLog) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.w.Flush()
	if err := l.w.Error(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}
