package cycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flash-forecast-service/internal/archive"
	"github.com/couchcryptid/flash-forecast-service/internal/domain"
	"github.com/couchcryptid/flash-forecast-service/internal/engine"
	"github.com/couchcryptid/flash-forecast-service/internal/observability"
	"github.com/couchcryptid/flash-forecast-service/internal/states"
)

var testPlan = domain.Plan(time.Date(2024, 7, 4, 9, 0, 0, 0, time.UTC))

type fakeReconciler struct {
	reconcileErr error
	ingestErr    error
	reconciled   bool
	ingested     bool
}

func (f *fakeReconciler) Reconcile(domain.CyclePlan) error {
	f.reconciled = true
	return f.reconcileErr
}

func (f *fakeReconciler) Ingest(domain.CyclePlan) error {
	f.ingested = true
	return f.ingestErr
}

type fakeGapFiller struct {
	report archive.Report
	err    error
}

func (f *fakeGapFiller) Fill(context.Context, domain.CyclePlan) (archive.Report, error) {
	return f.report, f.err
}

type fakePredictor struct {
	called bool
	err    error
}

func (f *fakePredictor) Predict(_ context.Context, _ string, _, _ time.Time) error {
	f.called = true
	return f.err
}

type fakeResolver struct {
	res states.Resolution
}

func (f *fakeResolver) Resolve(domain.CyclePlan) states.Resolution { return f.res }

type fakeAlerter struct {
	notified []states.Resolution
}

func (f *fakeAlerter) Notify(_ context.Context, _ domain.CyclePlan, res states.Resolution) {
	f.notified = append(f.notified, res)
}

type fakePreparer struct {
	fields engine.Fields
	path   string
	err    error
}

func (f *fakePreparer) Prepare(_, _ string, fields engine.Fields) (string, error) {
	f.fields = fields
	return f.path, f.err
}

type fakeExecutor struct {
	controlFile string
	err         error
}

func (f *fakeExecutor) Execute(_ context.Context, controlFile, _ string) error {
	f.controlFile = controlFile
	return f.err
}

type runnerFixture struct {
	runner    *Runner
	workDir   string
	recon     *fakeReconciler
	gaps      *fakeGapFiller
	predictor *fakePredictor
	resolver  *fakeResolver
	alerter   *fakeAlerter
	preparer  *fakePreparer
	executor  *fakeExecutor
}

func newFixture(t *testing.T) *runnerFixture {
	t.Helper()
	workDir := t.TempDir()

	// A recent observation so the persistence tier always has a source.
	latest := testPlan.ObservationHorizon()
	require.NoError(t, os.WriteFile(
		filepath.Join(workDir, domain.ObservedName(latest)), []byte("tif"), 0o644))

	f := &runnerFixture{
		workDir:   workDir,
		recon:     &fakeReconciler{},
		gaps:      &fakeGapFiller{},
		predictor: &fakePredictor{},
		resolver: &fakeResolver{res: states.Resolution{
			StartTime: testPlan.SystemStart,
			Class:     domain.WarmStart,
		}},
		alerter:  &fakeAlerter{},
		preparer: &fakePreparer{path: "/hot/WA_gambia_crest.txt"},
		executor: &fakeExecutor{},
	}
	f.runner = NewRunner(Params{
		Domain:       "WA",
		Subdomain:    "gambia",
		Model:        "crest",
		WorkDir:      workDir,
		StatesDir:    "/data/states",
		OutputDir:    "/hot",
		GapTolerance: 4,
	}, f.recon, f.gaps, f.predictor, f.resolver, f.alerter, f.preparer, f.executor,
		slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
	return f
}

func TestRun_WarmCycle(t *testing.T) {
	f := newFixture(t)

	result, err := f.runner.Run(context.Background(), testPlan)
	require.NoError(t, err)

	assert.True(t, f.recon.reconciled)
	assert.True(t, f.recon.ingested)
	assert.True(t, f.predictor.called)
	assert.Equal(t, domain.WarmStart, result.StartClass)
	assert.Equal(t, testPlan.SystemStart, result.ResolvedStart)
	assert.Equal(t, "/hot/WA_gambia_crest.txt", result.ControlFile)
	assert.Equal(t, "/hot/WA_gambia_crest.txt", f.executor.controlFile)
	assert.Nil(t, result.RunErr)

	// Control file fields carry the resolved and planned timestamps.
	assert.Equal(t, testPlan.SystemStart, f.preparer.fields.Begin)
	assert.Equal(t, testPlan.SystemWarmEnd, f.preparer.fields.WarmEnd)
	assert.Equal(t, testPlan.SystemStateEnd, f.preparer.fields.StateEnd)
	assert.Equal(t, testPlan.SystemStartForecast, f.preparer.fields.Forecast)
	assert.Equal(t, testPlan.SystemEnd, f.preparer.fields.End)
	assert.Equal(t, "crest", f.preparer.fields.Model)

	// Alert path sees every resolution, even warm (it decides to stay silent).
	require.Len(t, f.alerter.notified, 1)
}

func TestRun_DegradedStartFlowsIntoControlFile(t *testing.T) {
	f := newFixture(t)
	older := testPlan.SystemStart.Add(-domain.Cadence)
	f.resolver.res = states.Resolution{StartTime: older, Class: domain.DegradedStart}

	result, err := f.runner.Run(context.Background(), testPlan)
	require.NoError(t, err)

	assert.Equal(t, domain.DegradedStart, result.StartClass)
	assert.Equal(t, older, result.ResolvedStart)
	assert.Equal(t, older, f.preparer.fields.Begin)
	require.Len(t, f.alerter.notified, 1)
	assert.Equal(t, domain.DegradedStart, f.alerter.notified[0].Class)
}

func TestRun_ReconcileFailureDegrades(t *testing.T) {
	f := newFixture(t)
	f.recon.reconcileErr = errors.New("folder unreadable")

	result, err := f.runner.Run(context.Background(), testPlan)
	require.NoError(t, err)
	assert.NotEmpty(t, result.ControlFile)
}

func TestRun_PredictorFailureFallsBackToPersistence(t *testing.T) {
	f := newFixture(t)
	f.predictor.err = errors.New("model crashed")

	result, err := f.runner.Run(context.Background(), testPlan)
	require.NoError(t, err)

	// The whole nowcast window past the existing observation was duplicated.
	want := len(domain.Grid(testPlan.ObservationHorizon(), testPlan.NowcastEnd())) - 1
	assert.Len(t, result.Persisted, want)
	for _, ts := range result.Persisted {
		assert.FileExists(t, filepath.Join(f.workDir, domain.ObservedName(ts)))
	}
}

func TestRun_GapToleranceSkipsPredictor(t *testing.T) {
	f := newFixture(t)
	var unresolved []time.Time
	for i := 0; i < 5; i++ {
		unresolved = append(unresolved, testPlan.BulkSpanStart().Add(time.Duration(i)*domain.Cadence))
	}
	f.gaps.report = archive.Report{Unresolved: unresolved}

	result, err := f.runner.Run(context.Background(), testPlan)
	require.NoError(t, err)

	assert.False(t, f.predictor.called)
	assert.NotEmpty(t, result.Persisted)
	assert.Equal(t, unresolved, result.Unresolved)
}

func TestRun_IngestFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.recon.ingestErr = errors.New("disk full")

	_, err := f.runner.Run(context.Background(), testPlan)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageIngest, stageErr.Stage)
	assert.Empty(t, f.executor.controlFile)
}

func TestRun_PrepareFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.preparer.err = errors.New("template missing")

	_, err := f.runner.Run(context.Background(), testPlan)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StagePrepare, stageErr.Stage)
	assert.Empty(t, f.executor.controlFile)
}

func TestRun_EngineFailureDoesNotFailCycle(t *testing.T) {
	f := newFixture(t)
	f.executor.err = errors.New("exit status 3")

	result, err := f.runner.Run(context.Background(), testPlan)
	require.NoError(t, err)

	require.NotNil(t, result.RunErr)
	var stageErr *StageError
	require.ErrorAs(t, result.RunErr, &stageErr)
	assert.Equal(t, StageRun, stageErr.Stage)
}
