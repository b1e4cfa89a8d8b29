// Package imerg talks to the NASA IMERG early-run HTTP archive: monthly
// directory listings plus per-file downloads over authenticated HTTP.
package imerg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/couchcryptid/flash-forecast-service/internal/domain"
	"github.com/couchcryptid/flash-forecast-service/internal/observability"
)

const (
	filePrefix = "3B-HHR-E.MS.MRG.3IMERG."
	fileSuffix = ".V07B.30min.tif"
)

// Client implements archive.ArchiveClient against the IMERG HTTP server.
// The registered email address is used as both username and password, which is
// how the upstream server authenticates.
type Client struct {
	baseURL    string
	credential string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics

	// Listing pages are month-granular; one cycle touches at most two months,
	// so a fetched page is cached for the rest of the cycle.
	mu       sync.Mutex
	listings map[string]map[time.Time]bool
}

// NewClient creates an archive client rooted at baseURL.
func NewClient(baseURL, credential string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		credential: credential,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:   logger,
		metrics:  metrics,
		listings: make(map[string]map[time.Time]bool),
	}
}

// Available reports whether the archive lists a file whose accumulation ends at t.
func (c *Client) Available(ctx context.Context, t time.Time) (bool, error) {
	listing, err := c.monthListing(ctx, t.Add(-domain.Cadence))
	if err != nil {
		return false, err
	}
	return listing[t.UTC()], nil
}

// Download fetches the raster for accumulation end time t into dir under the
// canonical observed name.
func (c *Client) Download(ctx context.Context, dir string, t time.Time) error {
	u := c.baseURL + "/" + monthFolder(t.Add(-domain.Cadence)) + objectName(t)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.credential, c.credential)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("archive error: status %d: %s", resp.StatusCode, body)
	}

	dst := filepath.Join(dir, domain.ObservedName(t))
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(dst)
		return fmt.Errorf("write %s: %w", dst, err)
	}
	c.metrics.FilesDownloaded.Inc()
	return out.Close()
}

// DownloadRange fetches every 30-minute timestep in [from, to]. A failed
// timestep is logged and skipped so one missing remote file never aborts a
// bulk patch.
func (c *Client) DownloadRange(ctx context.Context, dir string, from, to time.Time) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	for _, t := range domain.Grid(from, to) {
		if err := c.Download(ctx, dir, t); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("download failed, skipping timestep", "timestep", t, "error", err)
		}
	}
	return nil
}

// monthListing fetches and caches the directory listing covering windowStart.
func (c *Client) monthListing(ctx context.Context, windowStart time.Time) (map[time.Time]bool, error) {
	folder := monthFolder(windowStart)

	c.mu.Lock()
	cached, ok := c.listings[folder]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+folder, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.credential, c.credential)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive listing error: status %d", resp.StatusCode)
	}

	listing := make(map[time.Time]bool)
	for _, name := range parseListing(resp.Body) {
		if t, ok := listingTimestamp(name); ok {
			listing[t] = true
		}
	}

	c.mu.Lock()
	c.listings[folder] = listing
	c.mu.Unlock()

	c.logger.Debug("fetched archive listing", "folder", folder, "files", len(listing))
	return listing, nil
}

// monthFolder returns the YYYY/MM/ path segment for an accumulation window start.
func monthFolder(windowStart time.Time) string {
	return windowStart.UTC().Format("2006/01") + "/"
}

// objectName builds the archive file name for an accumulation ending at t.
// The name carries the window start, a window end at second 59, and the
// window-start minutes-of-day.
func objectName(t time.Time) string {
	ws := t.UTC().Add(-domain.Cadence)
	end := ws.Add(29 * time.Minute)
	minutes := ws.Hour()*60 + ws.Minute()
	return fmt.Sprintf("%s%s-S%s-E%s59.%04d%s",
		filePrefix, ws.Format("20060102"), ws.Format("150405"), end.Format("1504"), minutes, fileSuffix)
}

// listingTimestamp extracts the accumulation end time from an archive file
// name. Returns false for names that do not look like IMERG half-hour files.
func listingTimestamp(name string) (time.Time, bool) {
	idx := strings.Index(name, "3IMERG.")
	if idx < 0 || !strings.HasSuffix(name, "30min.tif") {
		return time.Time{}, false
	}
	stamp := name[idx+len("3IMERG."):]
	// Expect YYYYMMDD-SHHMMSS-…
	if len(stamp) < 16 || stamp[8] != '-' || stamp[9] != 'S' {
		return time.Time{}, false
	}
	ws, err := time.Parse("20060102150405", stamp[:8]+stamp[10:16])
	if err != nil {
		return time.Time{}, false
	}
	return ws.UTC().Add(domain.Cadence), true
}

// parseListing pulls the half-hour raster links out of an HTML index page.
func parseListing(r io.Reader) []string {
	doc, err := html.Parse(r)
	if err != nil {
		return nil
	}

	var files []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && strings.HasSuffix(attr.Val, "30min.tif") {
					files = append(files, attr.Val)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return files
}
