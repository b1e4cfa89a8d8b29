// Package engine prepares and launches the external hydrology simulation engine.
package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/flash-forecast-service/internal/domain"
)

// Fields is the explicit token table rendered into the control-file template.
type Fields struct {
	OutputPath string
	StatesPath string
	Begin      time.Time // resolved simulation start
	WarmEnd    time.Time
	StateEnd   time.Time
	Forecast   time.Time // forecast leg begin
	End        time.Time
	Model      string
}

// tokens maps each recognized placeholder to its resolved value. Placeholders
// not in this table pass through verbatim.
func (f Fields) tokens() []string {
	return []string{
		"{OUTPUTPATH}", f.OutputPath,
		"{STATESPATH}", f.StatesPath,
		"{TIMEBEGIN}", domain.Stamp(f.Begin),
		"{TIMEBEGINLR}", domain.Stamp(f.Forecast),
		"{TIMEWARMEND}", domain.Stamp(f.WarmEnd),
		"{TIMESTATE}", domain.Stamp(f.StateEnd),
		"{TIMEEND}", domain.Stamp(f.End),
		"{SYSTEMMODEL}", f.Model,
	}
}

// Preparer renders the engine control file into a scratch output directory
// that is destroyed and recreated every cycle.
type Preparer struct {
	templatePath string
	outputDir    string
	dataDir      string
	logger       *slog.Logger
}

// NewPreparer creates a Preparer over the template and the two scratch
// directories.
func NewPreparer(templatePath, outputDir, dataDir string, logger *slog.Logger) *Preparer {
	return &Preparer{
		templatePath: templatePath,
		outputDir:    outputDir,
		dataDir:      dataDir,
		logger:       logger,
	}
}

// Prepare recreates the scratch directories, renders the template, and writes
// the control file. Returns the control file path.
func (p *Preparer) Prepare(domainName, subdomain string, f Fields) (string, error) {
	for _, dir := range []string{p.outputDir, p.dataDir} {
		if err := os.RemoveAll(dir); err != nil {
			return "", fmt.Errorf("clear scratch dir %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create scratch dir %s: %w", dir, err)
		}
	}

	tpl, err := os.ReadFile(p.templatePath)
	if err != nil {
		return "", fmt.Errorf("read template: %w", err)
	}

	rendered := strings.NewReplacer(f.tokens()...).Replace(string(tpl))

	path := filepath.Join(p.outputDir, domain.ControlFileName(domainName, subdomain, f.Model))
	if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
		return "", fmt.Errorf("write control file: %w", err)
	}

	p.logger.Info("control file written", "path", path, "begin", f.Begin, "end", f.End)
	return path, nil
}
