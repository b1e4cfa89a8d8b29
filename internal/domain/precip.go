package domain

import (
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes measured accumulations from predicted ones.
type Kind int

const (
	// Observed marks a QPE raster, a measured 30-minute accumulation.
	Observed Kind = iota
	// Forecast marks a QPF raster produced by the nowcast predictor.
	Forecast
)

func (k Kind) String() string {
	if k == Forecast {
		return "forecast"
	}
	return "observed"
}

const (
	observedPrefix = "imerg.qpe."
	forecastPrefix = "imerg.qpf."
	precipSuffix   = ".30minAccum.tif"

	stampLayout      = "200601021504"
	stateStampLayout = "20060102_1504"
)

// PrecipFile is one precipitation raster in the working folder or durable store.
type PrecipFile struct {
	Kind      Kind
	Timestamp time.Time
	Path      string
}

// Stamp formats a timestamp the way precipitation names and control files
// expect it: YYYYMMDDHHMM.
func Stamp(t time.Time) string {
	return t.Format(stampLayout)
}

// StateStamp formats a timestamp the way state snapshots and alert messages
// expect it: YYYYMMDD_HHMM.
func StateStamp(t time.Time) string {
	return t.Format(stateStampLayout)
}

// ObservedName returns the canonical QPE file name for an accumulation ending at t.
func ObservedName(t time.Time) string {
	return observedPrefix + Stamp(t) + precipSuffix
}

// ForecastName returns the canonical QPF file name for an accumulation ending at t.
func ForecastName(t time.Time) string {
	return forecastPrefix + Stamp(t) + precipSuffix
}

// ObservedFromForecast rewrites a forecast file name to the observed
// convention. Names of other shapes are returned unchanged.
func ObservedFromForecast(name string) string {
	return strings.Replace(name, "qpf", "qpe", 1)
}

// ParsePrecipName classifies a file name as Observed or Forecast and extracts
// its timestamp. The second return is false for names matching neither
// convention; such files are ignored by every component.
func ParsePrecipName(name string) (PrecipFile, bool) {
	var kind Kind
	switch {
	case strings.HasPrefix(name, observedPrefix):
		kind = Observed
	case strings.HasPrefix(name, forecastPrefix):
		kind = Forecast
	default:
		return PrecipFile{}, false
	}
	if !strings.HasSuffix(name, precipSuffix) {
		return PrecipFile{}, false
	}
	stamp := strings.TrimSuffix(name[len(observedPrefix):], precipSuffix)
	ts, err := time.Parse(stampLayout, stamp)
	if err != nil {
		return PrecipFile{}, false
	}
	return PrecipFile{Kind: kind, Timestamp: ts.UTC()}, true
}

// StateName returns the snapshot file name for one state variable at time t.
func StateName(variable string, t time.Time) string {
	return fmt.Sprintf("%s_%s.tif", variable, StateStamp(t))
}

// ControlFileName returns the engine control file name for a domain, subdomain
// and model combination.
func ControlFileName(domainName, subdomain, model string) string {
	return fmt.Sprintf("%s_%s_%s.txt", domainName, subdomain, model)
}
