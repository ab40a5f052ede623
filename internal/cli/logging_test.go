package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleLevels(t *testing.T) {
	assert.Equal(t, []log.Level{log.PanicLevel, log.FatalLevel, log.ErrorLevel, log.WarnLevel}, consoleLevels(0))
	assert.Contains(t, consoleLevels(1), log.InfoLevel)
	assert.NotContains(t, consoleLevels(1), log.DebugLevel)
	assert.Contains(t, consoleLevels(3), log.DebugLevel)
	assert.NotContains(t, consoleLevels(3), log.TraceLevel)
}

func TestLineFormatter(t *testing.T) {
	entry := &log.Entry{
		Time:    time.Date(2024, 3, 23, 12, 16, 42, 0, time.UTC),
		Level:   log.WarnLevel,
		Message: "tag value is not numeric",
		Data:    log.Fields{"file": "/in/a.dcm", "attempt": 2},
	}

	line, err := (&lineFormatter{}).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-23 12:16:42 WARN tag value is not numeric attempt=2 file=/in/a.dcm\n", string(line))
}

func TestConsoleHook(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	InitLogging(&buf, "", "", 0)

	log.Info("hidden")
	log.WithField("file", "a.dcm").Warn("blanked")

	assert.Equal(t, "WARNING: a.dcm: blanked\n", buf.String())
}
