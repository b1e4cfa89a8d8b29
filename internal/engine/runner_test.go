package engine

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flash-forecast-service/internal/observability"
)

// fakeEngine writes a shell script standing in for the engine binary.
func fakeEngine(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script engine stub requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ef5")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestExecute_Success(t *testing.T) {
	outputDir := t.TempDir()
	engine := fakeEngine(t, `echo "simulating $1"`)

	e := NewExecutor(engine, testLogger(), observability.NewMetricsForTesting())
	err := e.Execute(context.Background(), "/tmp/control.txt", outputDir)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(outputDir, LogFileName))
	require.NoError(t, err)
	assert.Equal(t, "simulating /tmp/control.txt\n", string(data))
}

func TestExecute_NonZeroExitSurfaced(t *testing.T) {
	outputDir := t.TempDir()
	engine := fakeEngine(t, "echo failing; exit 3")

	e := NewExecutor(engine, testLogger(), observability.NewMetricsForTesting())
	err := e.Execute(context.Background(), "/tmp/control.txt", outputDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine run")

	// The log still captured the engine output.
	data, readErr := os.ReadFile(filepath.Join(outputDir, LogFileName))
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "failing")
}

func TestExecute_MissingBinary(t *testing.T) {
	e := NewExecutor(filepath.Join(t.TempDir(), "absent"), testLogger(), observability.NewMetricsForTesting())
	err := e.Execute(context.Background(), "/tmp/control.txt", t.TempDir())
	require.Error(t, err)
}
