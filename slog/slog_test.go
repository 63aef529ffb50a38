package slog_test

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sifdata/sif/slog"
)

func TestLogfFiltersBelowMinimum(t *testing.T) {
	var buf bytes.Buffer
	lg := slog.New(log.New(&buf, "", 0), slog.WarnLevel)

	lg.Logf(slog.InfoLevel, "worker %d starting", 3)
	require.Empty(t, buf.String())

	lg.Logf(slog.ErrorLevel, "worker %d failed: %s", 3, "boom")
	require.True(t, strings.Contains(buf.String(), "[ERROR]"))
	require.True(t, strings.Contains(buf.String(), "worker 3 failed: boom"))
}

func TestLevelToString(t *testing.T) {
	require.Equal(t, "TRACE", slog.LevelToString(slog.TraceLevel))
	require.Equal(t, "FATAL", slog.LevelToString(slog.FatalLevel))
	require.Equal(t, "TRACE", slog.LevelToString(999))
}
