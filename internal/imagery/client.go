package imagery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/choco-forest-watch/forest-watch-api/internal/properties"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/errgroup"
)

// ErrImageryUnavailable means the provider has no mosaic coverage for the
// requested period. Terminal for that basemap date; retrying will not help.
var ErrImageryUnavailable = errors.New("imagery unavailable for requested period")

// ErrTransientProvider marks network or 5xx failures the caller is expected
// to retry.
var ErrTransientProvider = errors.New("transient imagery provider error")

// Quad is one cached imagery tile covering part of the AOI.
type Quad struct {
	ID        string
	LocalPath string
	BBox      orb.Bound
}

// Client fetches and locally caches basemap quads from the imagery
// provider. Downloads are idempotent: a quad already in the cache is never
// fetched again.
type Client struct {
	http     *http.Client
	baseURL  string
	cacheDir string
}

func NewClient() *Client {
	httpClient := http.DefaultClient
	if properties.ImageryClientID() != "" {
		config := &clientcredentials.Config{
			ClientID:     properties.ImageryClientID(),
			ClientSecret: properties.ImageryClientSecret(),
			TokenURL:     properties.ImageryTokenURL(),
		}
		httpClient = config.Client(context.Background())
	}
	return &Client{
		http:     httpClient,
		baseURL:  properties.ImageryBaseURL(),
		cacheDir: filepath.Join(properties.RootPath(), "data", "quads"),
	}
}

// MosaicName builds the provider mosaic identifier for a basemap period.
func MosaicName(basemapDate string) string {
	return fmt.Sprintf("planet_medres_normalized_analytic_%s_mosaic", basemapDate)
}

// FetchTiles returns the cached quads covering aoiBounds (WGS84 lon/lat)
// for one basemap period, downloading any that are missing. Quads come back
// sorted by id so downstream mosaicking precedence is deterministic.
func (c *Client) FetchTiles(ctx context.Context, aoiBounds orb.Bound, basemapDate string) ([]Quad, error) {
	mosaicID, err := c.mosaicID(ctx, MosaicName(basemapDate))
	if err != nil {
		return nil, err
	}

	quads, err := c.quadInfo(ctx, mosaicID, aoiBounds)
	if err != nil {
		return nil, err
	}
	if len(quads) == 0 {
		return nil, fmt.Errorf("%w: no quads intersect the AOI for %s", ErrImageryUnavailable, basemapDate)
	}

	year, month, _ := strings.Cut(basemapDate, "-")
	dir := filepath.Join(c.cacheDir, year, month)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create quad cache dir: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	results := make([]Quad, len(quads))
	for i, q := range quads {
		i, q := i, q
		g.Go(func() error {
			localPath := filepath.Join(dir, fmt.Sprintf("%s_%s_%s.tif", q.ID, year, month))
			if _, err := os.Stat(localPath); err == nil {
				log.Debug().Str("quad", q.ID).Msg("quad already cached, skipping download")
			} else if err := c.downloadQuad(gctx, q.DownloadURL, localPath); err != nil {
				return fmt.Errorf("failed to download quad %s: %w", q.ID, err)
			}
			results[i] = Quad{ID: q.ID, LocalPath: localPath, BBox: q.BBox}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

type quadListing struct {
	ID          string
	DownloadURL string
	BBox        orb.Bound
}

func (c *Client) mosaicID(ctx context.Context, name string) (string, error) {
	url := fmt.Sprintf("%s/mosaics?name__is=%s", c.baseURL, name)
	body, err := c.getJSON(ctx, url)
	if err != nil {
		return "", err
	}

	var payload struct {
		Mosaics []struct {
			ID string `json:"id"`
		} `json:"mosaics"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("failed to decode mosaic listing: %w", err)
	}
	if len(payload.Mosaics) == 0 {
		return "", fmt.Errorf("%w: no mosaic named %s", ErrImageryUnavailable, name)
	}
	return payload.Mosaics[0].ID, nil
}

func (c *Client) quadInfo(ctx context.Context, mosaicID string, bounds orb.Bound) ([]quadListing, error) {
	bbox := fmt.Sprintf("%f,%f,%f,%f", bounds.Min[0], bounds.Min[1], bounds.Max[0], bounds.Max[1])
	url := fmt.Sprintf("%s/mosaics/%s/quads?bbox=%s&minimal=true", c.baseURL, mosaicID, bbox)
	body, err := c.getJSON(ctx, url)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Items []struct {
			ID    string    `json:"id"`
			BBox  []float64 `json:"bbox"`
			Links struct {
				Download string `json:"download"`
			} `json:"_links"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode quad listing: %w", err)
	}

	quads := make([]quadListing, 0, len(payload.Items))
	for _, item := range payload.Items {
		q := quadListing{ID: item.ID, DownloadURL: item.Links.Download}
		if len(item.BBox) == 4 {
			q.BBox = orb.Bound{
				Min: orb.Point{item.BBox[0], item.BBox[1]},
				Max: orb.Point{item.BBox[2], item.BBox[3]},
			}
		}
		quads = append(quads, q)
	}
	return quads, nil
}

func (c *Client) getJSON(ctx context.Context, url string) ([]byte, error) {
	const retries = 3
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrTransientProvider, err)
			time.Sleep(time.Duration(attempt) * time.Second)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if readErr != nil {
				return nil, fmt.Errorf("%w: %v", ErrTransientProvider, readErr)
			}
			return body, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrImageryUnavailable, url)
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%w: status %d from %s", ErrTransientProvider, resp.StatusCode, url)
			time.Sleep(time.Duration(attempt) * time.Second)
		default:
			return nil, fmt.Errorf("imagery provider returned status %d for %s", resp.StatusCode, url)
		}
	}
	return nil, lastErr
}

// downloadQuad streams a quad to disk, writing a temp file first so a
// partial download never looks like a cached quad.
func (c *Client) downloadQuad(ctx context.Context, url, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransientProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: status %d", ErrTransientProvider, resp.StatusCode)
		}
		return fmt.Errorf("quad download returned status %d", resp.StatusCode)
	}

	tmpPath := localPath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrTransientProvider, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	log.Info().Str("path", localPath).Msg("downloaded quad")
	return nil
}
