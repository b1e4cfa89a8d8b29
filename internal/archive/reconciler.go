package archive

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/flash-forecast-service/internal/domain"
	"github.com/couchcryptid/flash-forecast-service/internal/observability"
)

// Reconciler prunes the working precipitation folder, migrates expired
// forecasts into the durable store, and stages files for the engine. It is the
// only component allowed to delete or relocate precipitation files.
type Reconciler struct {
	workDir   string
	storeDir  string
	ingestDir string
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewReconciler creates a Reconciler over the working folder, durable store,
// and engine ingestion folder.
func NewReconciler(workDir, storeDir, ingestDir string, logger *slog.Logger, metrics *observability.Metrics) *Reconciler {
	return &Reconciler{
		workDir:   workDir,
		storeDir:  storeDir,
		ingestDir: ingestDir,
		logger:    logger,
		metrics:   metrics,
	}
}

// Reconcile runs the per-cycle pruning pass. Order matters: later steps depend
// on earlier purges. Every file operation is individually guarded; a failure on
// one file is logged and skipped, never aborts the pass. Only an unreadable
// working folder is returned as an error.
func (r *Reconciler) Reconcile(plan domain.CyclePlan) error {
	files, err := listPrecip(r.workDir)
	if err != nil {
		return err
	}

	staleBound := plan.FailTime.Add(-210 * time.Minute)
	dupBound := plan.Current.Add(-4 * time.Hour)

	r.logger.Info("reconciling precip folder",
		"dir", r.workDir,
		"stale_bound", staleBound,
		"duplicate_bound", dupBound,
	)

	for _, f := range files {
		switch {
		case f.Kind == domain.Observed && f.Timestamp.Before(staleBound):
			r.removeFile(f.Path, "stale")
		case f.Kind == domain.Forecast && f.Timestamp.Before(plan.Current):
			r.migrateForecast(f)
		case f.Kind == domain.Observed && f.Timestamp.After(dupBound):
			// Legitimate observations are never this fresh at reconciliation
			// time; treat as a duplicate left by a prior partial run.
			r.removeFile(f.Path, "duplicate")
		}
	}

	r.pruneStore(dupBound)
	return nil
}

// Ingest copies the surviving working-folder files into the engine ingestion
// folder, renaming forecast-named files to the observed convention. The engine
// consumes one cadence of precipitation input regardless of provenance.
func (r *Reconciler) Ingest(plan domain.CyclePlan) error {
	files, err := listPrecip(r.workDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(r.ingestDir, 0o755); err != nil {
		return err
	}

	staged := 0
	for _, f := range files {
		name := filepath.Base(f.Path)
		if f.Kind == domain.Forecast {
			name = domain.ObservedFromForecast(name)
		}
		if err := copyFile(f.Path, filepath.Join(r.ingestDir, name)); err != nil {
			r.logger.Warn("stage for engine failed, skipping file", "file", f.Path, "error", err)
			r.metrics.FileOpFailures.Inc()
			continue
		}
		staged++
	}

	r.logger.Info("staged precip for engine", "dir", r.ingestDir, "files", staged)
	return nil
}

// migrateForecast copies an expired forecast into the durable store, then
// removes it from the working folder. A forecast that has come true is history.
func (r *Reconciler) migrateForecast(f domain.PrecipFile) {
	dst := filepath.Join(r.storeDir, filepath.Base(f.Path))
	if err := copyFile(f.Path, dst); err != nil {
		r.logger.Warn("forecast migration failed, skipping file", "file", f.Path, "error", err)
		r.metrics.FileOpFailures.Inc()
		return
	}
	r.metrics.ForecastsMigrated.Inc()
	r.removeFile(f.Path, "expired_forecast")
}

// pruneStore drops durable-store entries older than bound; the store only
// retains recently-superseded forecasts for the current gap-filling tier.
func (r *Reconciler) pruneStore(bound time.Time) {
	files, err := listPrecip(r.storeDir)
	if err != nil {
		r.logger.Warn("durable store unreadable, skipping prune", "dir", r.storeDir, "error", err)
		return
	}
	for _, f := range files {
		if f.Timestamp.Before(bound) {
			r.removeFile(f.Path, "store_retention")
		}
	}
}

func (r *Reconciler) removeFile(path, reason string) {
	if err := os.Remove(path); err != nil {
		r.logger.Warn("remove failed, skipping file", "file", path, "reason", reason, "error", err)
		r.metrics.FileOpFailures.Inc()
		return
	}
	r.logger.Debug("removed precip file", "file", path, "reason", reason)
	r.metrics.FilesPurged.WithLabelValues(reason).Inc()
}
