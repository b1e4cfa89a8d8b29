package domain

import "time"

// Cadence is the fixed spacing of precipitation timesteps.
const Cadence = 30 * time.Minute

// CyclePlan holds every timestamp one forecasting cycle derives from its
// reference instant. Plans are cycle-scoped: built fresh each run, never stored.
type CyclePlan struct {
	Current             time.Time // reference, rounded down to the hour
	SystemStart         time.Time // simulation begin
	SystemWarmEnd       time.Time // warm-up leg ends
	SystemStateEnd      time.Time // state snapshots saved with this stamp
	SystemStartForecast time.Time // forecast leg begins
	SystemEnd           time.Time // simulation lead time
	FailTime            time.Time // oldest instant the state search may reach
}

// Plan derives the cycle timestamps from a reference instant. The reference is
// rounded down to the top of the hour first, so any instant within the same
// hour produces the same plan.
func Plan(reference time.Time) CyclePlan {
	current := reference.Truncate(time.Hour)
	return CyclePlan{
		Current:             current,
		SystemStart:         current.Add(-270 * time.Minute),
		SystemWarmEnd:       current.Add(-240 * time.Minute),
		SystemStateEnd:      current.Add(-210 * time.Minute),
		SystemStartForecast: current,
		SystemEnd:           current.Add(360 * time.Minute),
		FailTime:            current.Add(-6 * time.Hour),
	}
}

// PlanNow derives the plan from the package clock.
func PlanNow() CyclePlan {
	return Plan(clock.Now().UTC())
}

// ObservationHorizon is the most recent observed timestep the nowcast stage
// needs as input.
func (p CyclePlan) ObservationHorizon() time.Time {
	return p.Current.Add(-210 * time.Minute)
}

// NowcastEnd is the last forecast timestep the nowcast stage produces.
func (p CyclePlan) NowcastEnd() time.Time {
	return p.Current.Add(150 * time.Minute)
}

// BulkSpanStart is the earliest timestep fetched when the working folder holds
// no observations at all.
func (p CyclePlan) BulkSpanStart() time.Time {
	return p.Current.Add(-570 * time.Minute)
}

// Grid returns the 30-minute timestep grid from from through to, inclusive.
// Returns nil when to precedes from.
func Grid(from, to time.Time) []time.Time {
	if to.Before(from) {
		return nil
	}
	steps := make([]time.Time, 0, int(to.Sub(from)/Cadence)+1)
	for t := from; !t.After(to); t = t.Add(Cadence) {
		steps = append(steps, t)
	}
	return steps
}
