package logger

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCapture(level Level) (*StdLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewStdLogger(false, level).WithOutput(log.New(&buf, "", 0))
	return l, &buf
}

func TestStdLoggerFiltersByLevel(t *testing.T) {
	l, buf := newCapture(NoticeLevel)

	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	assert.Empty(t, buf.String())

	l.Notice("notice %d", 3)
	l.Error("error %d", 4)
	assert.Contains(t, buf.String(), "[NOTICE] notice 3")
	assert.Contains(t, buf.String(), "[ERROR]  error 4")
}

func TestStdLoggerJobPrefix(t *testing.T) {
	l, buf := newCapture(DebugLevel)

	l.InfoWithJob(42, "accepted with fee %s", "20000")
	assert.Equal(t, "[INFO]   [JOB 42] accepted with fee 20000\n", buf.String())

	buf.Reset()
	l.ErrorWithJob(7, "broadcast failed")
	assert.Equal(t, "[ERROR]  [JOB 7] broadcast failed\n", buf.String())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		wantErr  bool
	}{
		{input: "debug", expected: DebugLevel},
		{input: "INFO", expected: InfoLevel},
		{input: " notice ", expected: NoticeLevel},
		{input: "error", expected: ErrorLevel},
		{input: "verbose", expected: InfoLevel, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.expected, level)
		})
	}
}
