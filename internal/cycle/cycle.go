// Package cycle drives one hourly forecasting cycle from archive
// reconciliation through simulation launch.
package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/flash-forecast-service/internal/archive"
	"github.com/couchcryptid/flash-forecast-service/internal/domain"
	"github.com/couchcryptid/flash-forecast-service/internal/engine"
	"github.com/couchcryptid/flash-forecast-service/internal/observability"
	"github.com/couchcryptid/flash-forecast-service/internal/states"
)

// Stage names one phase of the cycle, used in errors and metrics labels.
type Stage string

const (
	StageReconcile Stage = "reconcile"
	StageGapFill   Stage = "gap_fill"
	StageNowcast   Stage = "nowcast"
	StageIngest    Stage = "ingest"
	StageResolve   Stage = "resolve"
	StagePrepare   Stage = "prepare"
	StageRun       Stage = "run"
)

// StageError ties an error to the stage that produced it, so the driver can
// decide per stage whether to degrade or abort.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Reconciler prunes the working folder and stages files for the engine.
type Reconciler interface {
	Reconcile(plan domain.CyclePlan) error
	Ingest(plan domain.CyclePlan) error
}

// GapFiller backfills missing precipitation timesteps.
type GapFiller interface {
	Fill(ctx context.Context, plan domain.CyclePlan) (archive.Report, error)
}

// Predictor produces forecast frames into the working folder.
type Predictor interface {
	Predict(ctx context.Context, precipDir string, from, to time.Time) error
}

// StateResolver picks the snapshot set a run resumes from.
type StateResolver interface {
	Resolve(plan domain.CyclePlan) states.Resolution
}

// Alerter notifies operators about cold and degraded starts.
type Alerter interface {
	Notify(ctx context.Context, plan domain.CyclePlan, res states.Resolution)
}

// Preparer renders the engine control file.
type Preparer interface {
	Prepare(domainName, subdomain string, f engine.Fields) (string, error)
}

// Executor launches the simulation engine and waits for it.
type Executor interface {
	Execute(ctx context.Context, controlFile, outputDir string) error
}

// Params holds the per-domain identifiers and paths the driver itself needs.
type Params struct {
	Domain    string
	Subdomain string
	Model     string
	WorkDir   string
	StatesDir string
	OutputDir string

	// GapTolerance is the number of unresolved observation gaps above which
	// the predictor is not even attempted and the cycle goes straight to
	// persistence.
	GapTolerance int
}

// Result summarizes one completed cycle. RunErr carries the simulation
// subprocess outcome; a failed run does not fail the cycle, the caller decides
// what it means.
type Result struct {
	Plan          domain.CyclePlan
	StartClass    domain.StartClass
	ResolvedStart time.Time
	Unresolved    []time.Time
	Persisted     []time.Time
	ControlFile   string
	RunErr        error
}

// Runner wires the stages of one cycle together.
type Runner struct {
	params    Params
	recon     Reconciler
	gaps      GapFiller
	predictor Predictor
	resolver  StateResolver
	alerter   Alerter
	preparer  Preparer
	executor  Executor
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewRunner creates a cycle Runner from its stages.
func NewRunner(params Params, recon Reconciler, gaps GapFiller, predictor Predictor,
	resolver StateResolver, alerter Alerter, preparer Preparer, executor Executor,
	logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		params:    params,
		recon:     recon,
		gaps:      gaps,
		predictor: predictor,
		resolver:  resolver,
		alerter:   alerter,
		preparer:  preparer,
		executor:  executor,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run executes one full cycle for the given plan. Data-continuity stages
// degrade and continue on failure; run-preparation failures abort because the
// engine cannot start without a control file.
func (r *Runner) Run(ctx context.Context, plan domain.CyclePlan) (Result, error) {
	r.logger.Info("starting run cycle",
		"current", plan.Current,
		"system_start", plan.SystemStart,
		"system_end", plan.SystemEnd,
	)
	result := Result{Plan: plan}

	if err := r.timed(StageReconcile, func() error { return r.recon.Reconcile(plan) }); err != nil {
		r.logger.Error("reconciliation failed, continuing with folder as-is", "error", err)
	}

	var report archive.Report
	if err := r.timed(StageGapFill, func() error {
		var err error
		report, err = r.gaps.Fill(ctx, plan)
		return err
	}); err != nil {
		r.logger.Error("gap fill failed, relying on persistence fallback", "error", err)
	}
	result.Unresolved = report.Unresolved

	if err := r.timed(StageNowcast, func() error { return r.nowcast(ctx, plan, report, &result) }); err != nil {
		r.logger.Error("nowcast stage failed, engine input may be sparse", "error", err)
	}

	if err := r.timed(StageIngest, func() error { return r.recon.Ingest(plan) }); err != nil {
		return result, &StageError{Stage: StageIngest, Err: err}
	}

	var res states.Resolution
	r.mustTime(StageResolve, func() { res = r.resolver.Resolve(plan) })
	result.StartClass = res.Class
	result.ResolvedStart = res.StartTime
	r.metrics.SetStartClass(res.Class.String())

	r.alerter.Notify(ctx, plan, res)

	var controlFile string
	if err := r.timed(StagePrepare, func() error {
		var err error
		controlFile, err = r.preparer.Prepare(r.params.Domain, r.params.Subdomain, engine.Fields{
			OutputPath: r.params.OutputDir,
			StatesPath: r.params.StatesDir,
			Begin:      res.StartTime,
			WarmEnd:    plan.SystemWarmEnd,
			StateEnd:   plan.SystemStateEnd,
			Forecast:   plan.SystemStartForecast,
			End:        plan.SystemEnd,
			Model:      r.params.Model,
		})
		return err
	}); err != nil {
		return result, &StageError{Stage: StagePrepare, Err: err}
	}
	result.ControlFile = controlFile

	if err := r.timed(StageRun, func() error {
		return r.executor.Execute(ctx, controlFile, r.params.OutputDir)
	}); err != nil {
		r.logger.Error("simulation engine failed", "error", err)
		result.RunErr = &StageError{Stage: StageRun, Err: err}
	}

	r.logger.Info("run cycle complete",
		"current", plan.Current,
		"start_class", res.Class.String(),
		"resolved_start", res.StartTime,
		"unresolved_gaps", len(result.Unresolved),
		"run_failed", result.RunErr != nil,
	)
	return result, nil
}

// nowcast runs the predictor, then closes any remaining cadence holes by
// duplication so the engine always receives a complete, time-ordered input set.
func (r *Runner) nowcast(ctx context.Context, plan domain.CyclePlan, report archive.Report, result *Result) error {
	windowStart := plan.ObservationHorizon()
	windowEnd := plan.NowcastEnd()

	var predictErr error
	if len(report.Unresolved) > r.params.GapTolerance {
		predictErr = fmt.Errorf("%d unresolved observation gaps exceed tolerance %d",
			len(report.Unresolved), r.params.GapTolerance)
	} else {
		predictErr = r.predictor.Predict(ctx, r.params.WorkDir, plan.SystemStartForecast, windowEnd)
	}
	if predictErr != nil {
		r.logger.Warn("predictor unavailable, degrading to persistence", "error", predictErr)
	}

	persisted, err := archive.Persist(r.params.WorkDir, windowStart, windowEnd, r.logger, r.metrics)
	if err != nil {
		return err
	}
	result.Persisted = persisted
	if predictErr == nil && len(persisted) > 0 {
		r.logger.Warn("predictor output incomplete, duplicated remaining timesteps", "count", len(persisted))
	}
	return nil
}

// timed runs fn and records its duration under the stage label.
func (r *Runner) timed(stage Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	r.metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	return err
}

func (r *Runner) mustTime(stage Stage, fn func()) {
	start := time.Now()
	fn()
	r.metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
}
