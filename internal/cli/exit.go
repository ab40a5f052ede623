package cli

import (
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"
)

// exitHook is what ErrExit calls to terminate. atexit.Exit runs the
// registered handlers (log file close) before exiting.
var exitHook = atexit.Exit

// ErrExit logs the formatted error and exits with status 1.
func ErrExit(format string, args ...interface{}) {
	format = strings.Replace(format, "%w", "%s", -1)
	log.Errorf(format, args...)
	exitHook(1)
}
