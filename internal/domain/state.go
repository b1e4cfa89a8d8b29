package domain

// StartClass classifies how a simulation run begins.
type StartClass int

const (
	// ColdStart means no complete snapshot set existed within the search
	// window; the engine starts from default internal state.
	ColdStart StartClass = iota
	// WarmStart means a complete snapshot set existed at SystemStart.
	WarmStart
	// DegradedStart means the run resumes from an older complete snapshot set.
	DegradedStart
)

func (c StartClass) String() string {
	switch c {
	case WarmStart:
		return "warm"
	case DegradedStart:
		return "degraded"
	default:
		return "cold"
	}
}

// Bounds is the rectangular model domain extent in degrees.
type Bounds struct {
	XMin float64 `yaml:"xmin"`
	XMax float64 `yaml:"xmax"`
	YMin float64 `yaml:"ymin"`
	YMax float64 `yaml:"ymax"`
}
