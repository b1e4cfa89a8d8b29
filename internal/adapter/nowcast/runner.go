// Package nowcast invokes the external precipitation nowcasting predictor.
package nowcast

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/couchcryptid/flash-forecast-service/internal/domain"
)

// Runner runs the predictor as a subprocess over the reconciled input set.
// The predictor reads the working folder and writes forecast-named rasters
// back into it for every timestep in the requested window.
type Runner struct {
	command string
	model   string
	bounds  domain.Bounds
	logger  *slog.Logger
}

// NewRunner creates a Runner for the configured predictor command. An empty
// command means no predictor is installed; Predict then always fails and the
// cycle degrades to persistence.
func NewRunner(command, model string, bounds domain.Bounds, logger *slog.Logger) *Runner {
	return &Runner{command: command, model: model, bounds: bounds, logger: logger}
}

// Predict produces forecast frames for [from, to] from the observations in
// precipDir. Any predictor failure is returned as-is; the caller owns the
// persistence fallback.
func (r *Runner) Predict(ctx context.Context, precipDir string, from, to time.Time) error {
	if r.command == "" {
		return errors.New("no nowcast command configured")
	}

	args := []string{
		"--model", r.model,
		"--input", precipDir,
		"--from", domain.Stamp(from),
		"--to", domain.Stamp(to),
		"--bounds", fmt.Sprintf("%g,%g,%g,%g", r.bounds.XMin, r.bounds.YMin, r.bounds.XMax, r.bounds.YMax),
	}

	r.logger.Info("running nowcast predictor", "command", r.command, "model", r.model, "from", from, "to", to)
	out, err := exec.CommandContext(ctx, r.command, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("nowcast predictor: %w: %s", err, bytes.TrimSpace(out))
	}
	return nil
}
