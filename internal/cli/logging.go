package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fatih/color"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"
	"gopkg.in/natefinch/lumberjack.v2"
)

type lineFormatter struct{}

var levelList = []string{
	"PANIC",
	"FATAL",
	"ERROR",
	"WARN",
	"INFO",
	"DEBUG",
	"TRACE",
}

// Format renders one line per entry, followed by its fields:
//
//	2024-03-23 12:16:42 INFO batch.go:131 Anonymizing 12 dicoms in /data file=...
func (f *lineFormatter) Format(entry *log.Entry) ([]byte, error) {
	level := levelList[int(entry.Level)]
	caller := ""
	if entry.Caller != nil {
		caller = fmt.Sprintf(" %s:%d", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	msg := fmt.Sprintf("%s %s%s %s", entry.Time.Format("2006-01-02 15:04:05"), level, caller, entry.Message)

	keys := lo.Keys(entry.Data)
	sort.Strings(keys)
	for _, k := range keys {
		msg += fmt.Sprintf(" %s=%v", k, entry.Data[k])
	}
	return []byte(msg + "\n"), nil
}

// consoleHook mirrors log entries up to a verbosity-dependent level to the
// console, independently of the log file.
type consoleHook struct {
	mu     sync.Mutex
	out    io.Writer
	levels []log.Level
}

func (h *consoleHook) Levels() []log.Level { return h.levels }

func (h *consoleHook) Fire(entry *log.Entry) error {
	msg := entry.Message
	if file, ok := entry.Data["file"]; ok {
		msg = fmt.Sprintf("%v: %s", file, msg)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	switch entry.Level {
	case log.PanicLevel, log.FatalLevel, log.ErrorLevel:
		_, err = color.New(color.FgRed).Fprintln(h.out, "ERROR: "+msg)
	case log.WarnLevel:
		_, err = color.New(color.FgYellow).Fprintln(h.out, "WARNING: "+msg)
	default:
		_, err = fmt.Fprintln(h.out, msg)
	}
	return err
}

func consoleLevels(verbosity int) []log.Level {
	maxLevel := log.WarnLevel
	switch {
	case verbosity == 1:
		maxLevel = log.InfoLevel
	case verbosity >= 2:
		maxLevel = log.DebugLevel
	}
	return lo.Filter(log.AllLevels, func(l log.Level, _ int) bool { return l <= maxLevel })
}

// InitLogging configures the standard logger used by every package.
// Warnings and errors always reach console; -v adds info and -vv debug.
// When logDir is set, everything from info up (debug with -vv) is also
// written to <logDir>/deidentify-<cmdName>.log, rotated by size.
func InitLogging(console io.Writer, logDir, cmdName string, verbosity int) {
	logger := log.StandardLogger()
	logger.ReplaceHooks(make(log.LevelHooks))
	logger.AddHook(&consoleHook{out: console, levels: consoleLevels(verbosity)})

	logger.SetLevel(log.InfoLevel)
	if verbosity >= 2 {
		logger.SetLevel(log.DebugLevel)
	}

	if logDir == "" {
		logger.SetOutput(io.Discard)
		return
	}

	logFileName := filepath.Join(logDir, fmt.Sprintf("deidentify-%s.log", cmdName))
	// lumberjack creates the logs folder when it does not exist.
	logRotator := &lumberjack.Logger{
		Filename:   logFileName,
		MaxSize:    100, // MB before rotation
		MaxBackups: 10,
	}
	atexit.Register(func() { logRotator.Close() })

	logger.SetOutput(logRotator)
	logger.SetReportCaller(true)
	logger.SetFormatter(&lineFormatter{})
	log.Info("Logging initialised.")
	log.Infof("Args: %v", os.Args)
	log.Infof("Version: %s", Version)
}
