// Package archive keeps the working precipitation folder consistent: it prunes
// stale and duplicate rasters, migrates expired forecasts into the durable
// store, fills missing timesteps from the remote archive or the store, and
// stages the result for the simulation engine.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/couchcryptid/flash-forecast-service/internal/domain"
)

// copyFile copies src to dst, overwriting dst if it exists.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}

// listPrecip returns the precipitation files in dir, sorted by timestamp.
// Files matching neither naming convention are skipped.
func listPrecip(dir string) ([]domain.PrecipFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var files []domain.PrecipFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		f, ok := domain.ParsePrecipName(e.Name())
		if !ok {
			continue
		}
		f.Path = filepath.Join(dir, e.Name())
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Timestamp.Before(files[j].Timestamp) })
	return files, nil
}
