// Package states decides which prior simulation state snapshots a run can
// resume from.
package states

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/flash-forecast-service/internal/domain"
)

// Resolution is the outcome of the state search.
type Resolution struct {
	StartTime time.Time         // resolved simulation start
	Class     domain.StartClass // cold, warm, or degraded
	ScanStop  time.Time         // oldest candidate the search reached
	Missing   []string          // variables absent at SystemStart (cold only)
}

// Resolver searches backward for the most recent complete snapshot set.
type Resolver struct {
	statesDir string
	variables []string
	logger    *slog.Logger
}

// NewResolver creates a Resolver over the snapshot folder and the required
// state variable names.
func NewResolver(statesDir string, variables []string, logger *slog.Logger) *Resolver {
	return &Resolver{statesDir: statesDir, variables: variables, logger: logger}
}

// Resolve finds the most recent time T ≤ SystemStart at which every required
// variable has a non-empty snapshot, scanning backward in 30-minute decrements
// and never earlier than FailTime. With no complete set in the window the run
// is a cold start and SystemStart itself is kept as the resolved time.
func (r *Resolver) Resolve(plan domain.CyclePlan) Resolution {
	t := plan.SystemStart
	for t.After(plan.FailTime) {
		missing := r.missingAt(t)
		if len(missing) == 0 {
			if t.Equal(plan.SystemStart) {
				return Resolution{StartTime: t, Class: domain.WarmStart, ScanStop: t}
			}
			r.logger.Warn("using older states", "resolved", t, "intended", plan.SystemStart)
			return Resolution{StartTime: t, Class: domain.DegradedStart, ScanStop: t}
		}
		for _, v := range missing {
			r.logger.Info("missing start state",
				"variable", v, "candidate", t,
				"file", filepath.Join(r.statesDir, domain.StateName(v, t)))
		}
		t = t.Add(-domain.Cadence)
	}

	missing := r.missingAt(plan.SystemStart)
	r.logger.Warn("no complete state set found, starting cold",
		"scanned_back_to", t, "intended", plan.SystemStart, "missing", missing)
	return Resolution{
		StartTime: plan.SystemStart,
		Class:     domain.ColdStart,
		ScanStop:  t,
		Missing:   missing,
	}
}

// missingAt returns the variables without a non-empty snapshot at t.
func (r *Resolver) missingAt(t time.Time) []string {
	var missing []string
	for _, v := range r.variables {
		info, err := os.Stat(filepath.Join(r.statesDir, domain.StateName(v, t)))
		if err != nil || info.Size() == 0 {
			missing = append(missing, v)
		}
	}
	return missing
}
