// Package domain models the timing and file-naming conventions of the
// real-time flash-flood forecasting cycle.
//
// # Cycle Timing
//
// The system runs once per hour. Each cycle derives every timestamp it needs
// from a single reference instant, rounded down to the top of the hour:
//
//	SystemStart          reference − 4h30m   simulation begin
//	SystemWarmEnd        reference − 4h      model warm-up ends
//	SystemStateEnd       reference − 3h30m   state snapshots saved with this stamp
//	SystemStartForecast  reference           forecast leg begins
//	SystemEnd            reference + 6h      simulation lead time
//	FailTime             reference − 6h      oldest instant the state search may reach
//
// Precipitation input runs on a fixed 30-minute cadence. The nowcast stage
// needs observations up to reference − 3h30m and produces forecast frames out
// to reference + 2h30m.
//
// # Precipitation File Naming
//
// Observed (QPE) rasters are measured IMERG accumulations; forecast (QPF)
// rasters come from the nowcast predictor. Both carry the accumulation end
// time at 30-minute cadence:
//
//	imerg.qpe.<YYYYMMDDHHMM>.30minAccum.tif
//	imerg.qpf.<YYYYMMDDHHMM>.30minAccum.tif
//
// The simulation engine does not distinguish the two kinds; forecast files are
// renamed to the observed convention when staged into its ingestion folder.
//
// # State Snapshots
//
// The engine writes one snapshot per state variable per timestep, named
//
//	<variable>_<YYYYMMDD_HHMM>.tif
//
// A start time is usable only when every required variable has a non-empty
// snapshot at that time.
package domain
