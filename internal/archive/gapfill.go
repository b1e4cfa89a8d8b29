package archive

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/flash-forecast-service/internal/domain"
	"github.com/couchcryptid/flash-forecast-service/internal/observability"
)

// ArchiveClient is the remote precipitation source the gap filler pulls from.
type ArchiveClient interface {
	// Available reports whether the archive holds a file for accumulation end
	// time t.
	Available(ctx context.Context, t time.Time) (bool, error)
	// Download fetches the file for t into dir under the canonical observed name.
	Download(ctx context.Context, dir string, t time.Time) error
	// DownloadRange fetches every 30-minute timestep in [from, to]. Individual
	// failures are skipped; the span is best-effort.
	DownloadRange(ctx context.Context, dir string, from, to time.Time) error
}

// Report describes the outcome of one gap-filling pass.
type Report struct {
	SpanStart  time.Time   // first timestep the pass considered
	Filled     []time.Time // timesteps filled from remote or store
	Unresolved []time.Time // timesteps no tier could fill
}

// GapFiller ensures the working folder holds one file per 30-minute timestep
// up to the observation horizon, pulling from the remote archive first and the
// durable store second. Timesteps neither source has are reported, not fatal;
// the nowcast fallback tolerates sparse input.
type GapFiller struct {
	workDir  string
	storeDir string
	client   ArchiveClient
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewGapFiller creates a GapFiller over the working folder and durable store.
func NewGapFiller(workDir, storeDir string, client ArchiveClient, logger *slog.Logger, metrics *observability.Metrics) *GapFiller {
	return &GapFiller{
		workDir:  workDir,
		storeDir: storeDir,
		client:   client,
		logger:   logger,
		metrics:  metrics,
	}
}

// Fill runs the gap-filling decision procedure for one cycle.
func (g *GapFiller) Fill(ctx context.Context, plan domain.CyclePlan) (Report, error) {
	horizon := plan.ObservationHorizon()

	latest, ok, err := g.latestObserved()
	if err != nil {
		return Report{}, err
	}

	var base time.Time
	switch {
	case !ok:
		// Nothing on disk: fetch the full span in one pass.
		base = plan.BulkSpanStart()
		g.logger.Info("precip folder empty, bulk downloading full span", "from", base, "to", horizon)
		g.bulkDownload(ctx, base, horizon)
	case latest.Before(horizon):
		base = latest
		gap := horizon.Sub(latest)
		if gap > time.Hour {
			g.logger.Warn("extended observation outage, patching from remote",
				"latest", latest, "horizon", horizon, "gap", gap)
		} else {
			g.logger.Info("patching recent observations from remote",
				"latest", latest, "horizon", horizon, "gap", gap)
		}
		g.bulkDownload(ctx, latest, horizon)
	default:
		base = latest
	}

	report := Report{SpanStart: base}
	for _, t := range domain.Grid(base, horizon) {
		if g.hasTimestep(t) {
			continue
		}
		switch g.fillOne(ctx, t) {
		case filledRemote:
			report.Filled = append(report.Filled, t)
			g.metrics.GapsFilled.WithLabelValues("remote").Inc()
		case filledStore:
			report.Filled = append(report.Filled, t)
			g.metrics.GapsFilled.WithLabelValues("store").Inc()
		case unfilled:
			report.Unresolved = append(report.Unresolved, t)
			g.metrics.GapsUnresolved.Inc()
			g.logger.Warn("timestep unresolved after remote and store tiers", "timestep", t)
		}
	}

	g.logger.Info("gap fill complete",
		"span_start", base,
		"horizon", horizon,
		"filled", len(report.Filled),
		"unresolved", len(report.Unresolved),
	)
	return report, nil
}

type fillResult int

const (
	filledRemote fillResult = iota
	filledStore
	unfilled
)

// fillOne tries the remote archive, then the durable store, for one timestep.
func (g *GapFiller) fillOne(ctx context.Context, t time.Time) fillResult {
	avail, err := g.client.Available(ctx, t)
	if err != nil {
		g.logger.Warn("remote listing unavailable, falling back to store", "timestep", t, "error", err)
	} else if avail {
		if err := g.client.Download(ctx, g.workDir, t); err != nil {
			g.logger.Warn("remote download failed, falling back to store", "timestep", t, "error", err)
		} else {
			return filledRemote
		}
	}
	if g.copyFromStore(t) {
		return filledStore
	}
	return unfilled
}

// copyFromStore copies the durable-store file whose name contains the
// timestamp stamp into the working folder.
func (g *GapFiller) copyFromStore(t time.Time) bool {
	entries, err := os.ReadDir(g.storeDir)
	if err != nil {
		g.logger.Warn("durable store unreadable", "dir", g.storeDir, "error", err)
		return false
	}
	stamp := domain.Stamp(t)
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), stamp) {
			continue
		}
		dst := filepath.Join(g.workDir, e.Name())
		if err := copyFile(filepath.Join(g.storeDir, e.Name()), dst); err != nil {
			g.logger.Warn("store copy failed, skipping file", "file", e.Name(), "error", err)
			g.metrics.FileOpFailures.Inc()
			return false
		}
		g.logger.Info("filled timestep from durable store", "timestep", t, "file", e.Name())
		return true
	}
	return false
}

func (g *GapFiller) bulkDownload(ctx context.Context, from, to time.Time) {
	if err := g.client.DownloadRange(ctx, g.workDir, from, to); err != nil {
		g.logger.Warn("bulk download failed, continuing with per-timestep tiers", "error", err)
	}
}

// latestObserved returns the newest observed timestamp in the working folder.
func (g *GapFiller) latestObserved() (time.Time, bool, error) {
	files, err := listPrecip(g.workDir)
	if err != nil {
		return time.Time{}, false, err
	}
	var latest time.Time
	found := false
	for _, f := range files {
		if f.Kind != domain.Observed {
			continue
		}
		if !found || f.Timestamp.After(latest) {
			latest = f.Timestamp
			found = true
		}
	}
	return latest, found, nil
}

// hasTimestep reports whether the working folder holds a file of either kind
// for t. Checking both kinds keeps the one-file-per-timestep invariant.
func (g *GapFiller) hasTimestep(t time.Time) bool {
	for _, name := range []string{domain.ObservedName(t), domain.ForecastName(t)} {
		if _, err := os.Stat(filepath.Join(g.workDir, name)); err == nil {
			return true
		}
	}
	return false
}

// Persist duplicates the most recent observation under the observed name of
// every missing timestep in [from, to]. This is the last-resort tier: it trades
// forecast fidelity for a complete cadence so the engine always has input.
func Persist(workDir string, from, to time.Time, logger *slog.Logger, metrics *observability.Metrics) ([]time.Time, error) {
	files, err := listPrecip(workDir)
	if err != nil {
		return nil, err
	}

	var source domain.PrecipFile
	found := false
	for _, f := range files {
		if f.Kind != domain.Observed {
			continue
		}
		if !found || f.Timestamp.After(source.Timestamp) {
			source = f
			found = true
		}
	}
	if !found {
		return nil, errors.New("no observed file available to duplicate")
	}

	var created []time.Time
	for _, t := range domain.Grid(from, to) {
		obs := filepath.Join(workDir, domain.ObservedName(t))
		fct := filepath.Join(workDir, domain.ForecastName(t))
		if fileExists(obs) || fileExists(fct) {
			continue
		}
		if err := copyFile(source.Path, obs); err != nil {
			logger.Warn("persistence copy failed, skipping timestep", "timestep", t, "error", err)
			metrics.FileOpFailures.Inc()
			continue
		}
		metrics.PersistenceCopies.Inc()
		created = append(created, t)
	}

	logger.Info("persistence fallback complete", "source", source.Path, "duplicated", len(created))
	return created, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
