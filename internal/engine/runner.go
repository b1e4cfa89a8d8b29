package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/flash-forecast-service/internal/observability"
)

// LogFileName is the engine log written into the scratch output directory.
const LogFileName = "ef5.log"

// Executor launches the simulation engine and waits for it to finish. Tasks go
// through a one-slot group so future multi-domain runs serialize per resource;
// the caller still blocks on completion, so observable behavior is synchronous.
type Executor struct {
	enginePath string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewExecutor creates an Executor for the engine binary.
func NewExecutor(enginePath string, logger *slog.Logger, metrics *observability.Metrics) *Executor {
	return &Executor{enginePath: enginePath, logger: logger, metrics: metrics}
}

// Execute runs `engine <controlFile>` with combined output to the engine log
// in outputDir, and waits for completion. The subprocess error is returned so
// the caller can decide what a failed run means; the cycle itself never aborts
// on it.
func (e *Executor) Execute(ctx context.Context, controlFile, outputDir string) error {
	var g errgroup.Group
	g.SetLimit(1)
	g.Go(func() error {
		return e.run(ctx, controlFile, filepath.Join(outputDir, LogFileName))
	})
	return g.Wait()
}

func (e *Executor) run(ctx context.Context, controlFile, logPath string) error {
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("create engine log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, e.enginePath, controlFile)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	e.logger.Info("starting simulation engine", "engine", e.enginePath, "control_file", controlFile, "log", logPath)
	start := time.Now()
	err = cmd.Run()
	e.metrics.RunDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		e.metrics.RunFailures.Inc()
		return fmt.Errorf("engine run: %w", err)
	}
	e.logger.Info("simulation engine finished", "duration", time.Since(start))
	return nil
}
