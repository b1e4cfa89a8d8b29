package imerg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flash-forecast-service/internal/domain"
	"github.com/couchcryptid/flash-forecast-service/internal/observability"
)

const testEmail = "ops@example.com"

func testClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		credential: testEmail,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:    observability.NewMetricsForTesting(),
		listings:   make(map[string]map[time.Time]bool),
	}
}

func TestObjectName(t *testing.T) {
	// Accumulation ending 06:00 is stored under its 05:30 window start;
	// 05:30 is minute 330 of the day.
	ts := time.Date(2024, 7, 4, 6, 0, 0, 0, time.UTC)
	assert.Equal(t,
		"3B-HHR-E.MS.MRG.3IMERG.20240704-S053000-E055959.0330.V07B.30min.tif",
		objectName(ts))
}

func TestListingTimestamp(t *testing.T) {
	t.Run("valid name", func(t *testing.T) {
		ts, ok := listingTimestamp("3B-HHR-E.MS.MRG.3IMERG.20240704-S053000-E055959.0330.V07B.30min.tif")
		require.True(t, ok)
		assert.Equal(t, time.Date(2024, 7, 4, 6, 0, 0, 0, time.UTC), ts)
	})

	t.Run("relative href", func(t *testing.T) {
		ts, ok := listingTimestamp("/data/2024/07/3B-HHR-E.MS.MRG.3IMERG.20240704-S000000-E002959.0000.V07B.30min.tif")
		require.True(t, ok)
		assert.Equal(t, time.Date(2024, 7, 4, 0, 30, 0, 0, time.UTC), ts)
	})

	t.Run("rejects other files", func(t *testing.T) {
		_, ok := listingTimestamp("parent_dir/")
		assert.False(t, ok)
		_, ok = listingTimestamp("3B-HHR-E.MS.MRG.3IMERG.garbage.tif")
		assert.False(t, ok)
	})
}

func listingPage(names ...string) string {
	page := "<html><body><table>"
	for _, n := range names {
		page += fmt.Sprintf(`<tr><td><a href=%q>%s</a></td></tr>`, n, n)
	}
	return page + "</table></body></html>"
}

func TestClient_Available(t *testing.T) {
	available := time.Date(2024, 7, 4, 6, 0, 0, 0, time.UTC)

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, testEmail, user)
		assert.Equal(t, testEmail, pass)
		assert.Equal(t, "/2024/07/", r.URL.Path)

		fmt.Fprint(w, listingPage(
			objectName(available),
			"../",
			"somefile.txt",
		))
	}))
	defer srv.Close()

	c := testClient(srv.URL)

	ok, err := c.Available(context.Background(), available)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Available(context.Background(), available.Add(domain.Cadence))
	require.NoError(t, err)
	assert.False(t, ok)

	// Second lookup in the same month hits the cache, not the server.
	assert.Equal(t, 1, hits)
}

func TestClient_Available_ListingError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Available(context.Background(), time.Date(2024, 7, 4, 6, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestClient_Download(t *testing.T) {
	ts := time.Date(2024, 7, 4, 6, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2024/07/"+objectName(ts), r.URL.Path)
		_, _ = w.Write([]byte("raster-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := testClient(srv.URL)
	require.NoError(t, c.Download(context.Background(), dir, ts))

	data, err := os.ReadFile(filepath.Join(dir, domain.ObservedName(ts)))
	require.NoError(t, err)
	assert.Equal(t, "raster-bytes", string(data))
}

func TestClient_Download_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	err := c.Download(context.Background(), t.TempDir(), time.Date(2024, 7, 4, 6, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestClient_DownloadRange_SkipsFailures(t *testing.T) {
	from := time.Date(2024, 7, 4, 5, 0, 0, 0, time.UTC)
	to := from.Add(2 * domain.Cadence)
	failing := objectName(from.Add(domain.Cadence))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if filepath.Base(r.URL.Path) == failing {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("raster-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := testClient(srv.URL)
	require.NoError(t, c.DownloadRange(context.Background(), dir, from, to))

	assert.FileExists(t, filepath.Join(dir, domain.ObservedName(from)))
	assert.NoFileExists(t, filepath.Join(dir, domain.ObservedName(from.Add(domain.Cadence))))
	assert.FileExists(t, filepath.Join(dir, domain.ObservedName(to)))
}
