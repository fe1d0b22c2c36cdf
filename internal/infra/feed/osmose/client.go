package osmose

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	domain "github.com/ignfab/osmoreport/internal/domain/issues"
)

const (
	defaultEndpoint = "https://osmose.openstreetmap.fr/api/0.3"
	// feedTimestamp is the listing timestamp layout ("update" field).
	feedTimestamp = "2006-01-02 15:04:05-07:00"
	// detailTimestamp is the false-positive detail date layout.
	detailTimestamp = "2006-01-02T15:04:05.999999-07:00"

	retryMaxElapsed = 30 * time.Second
)

// Client queries the upstream anomaly feed (Osmose API 0.3).
type Client struct {
	endpoint  string
	userAgent string
	http      *http.Client
}

func NewClient(endpoint, userAgent string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:  strings.TrimRight(endpoint, "/"),
		userAgent: userAgent,
		http:      &http.Client{Timeout: timeout},
	}
}

func newRetryBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed
	return bo
}

// get fetches a URL with retry. 5xx and transport errors are retried;
// any other non-200 status is permanent.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("feed returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("feed returned %d", resp.StatusCode))
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(newRetryBackoff(), ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

// feedIssue is the wire shape of one listing entry. lat/lon arrive as
// strings, hence json.Number.
type feedIssue struct {
	ID       string      `json:"id"`
	Source   int         `json:"source"`
	Item     int         `json:"item"`
	Class    int         `json:"class"`
	Level    int         `json:"level"`
	Subtitle *struct {
		Auto string `json:"auto"`
	} `json:"subtitle"`
	Update    string          `json:"update"`
	Usernames []string        `json:"usernames"`
	Lat       json.Number     `json:"lat"`
	Lon       json.Number     `json:"lon"`
	OSMIDs    json.RawMessage `json:"osm_ids"`
}

// Fetch lists issues for one (country, source, item, class) combination.
// The country is widened with the feed's wildcard so sub-areas are included.
func (c *Client) Fetch(ctx context.Context, q domain.FeedQuery) ([]*domain.Issue, error) {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("country", q.Country+"*")
	v.Set("full", strconv.FormatBool(q.Full))
	v.Set("status", string(q.Status))
	v.Set("start_date", q.StartDate.Format("2006-01-02"))
	v.Set("end_date", q.EndDate.Format("2006-01-02"))
	v.Set("useDevItem", q.UseDevItem)
	v.Set("source", q.Source)
	v.Set("class", strconv.Itoa(q.ClassID))
	v.Set("item", strconv.Itoa(q.ItemID))

	body, err := c.get(ctx, c.endpoint+"/issues.json?"+v.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetch issues: %w", err)
	}

	var wire struct {
		Issues []feedIssue `json:"issues"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode issues: %w", err)
	}

	out := make([]*domain.Issue, 0, len(wire.Issues))
	for _, fi := range wire.Issues {
		iss, err := c.toDomain(fi, q)
		if err != nil {
			return nil, fmt.Errorf("issue %s: %w", fi.ID, err)
		}
		out = append(out, iss)
	}
	return out, nil
}

func (c *Client) toDomain(fi feedIssue, q domain.FeedQuery) (*domain.Issue, error) {
	lat, err := fi.Lat.Float64()
	if err != nil {
		return nil, fmt.Errorf("bad lat %q: %w", fi.Lat, err)
	}
	lon, err := fi.Lon.Float64()
	if err != nil {
		return nil, fmt.Errorf("bad lon %q: %w", fi.Lon, err)
	}
	updated, err := time.Parse(feedTimestamp, fi.Update)
	if err != nil {
		// Some deployments emit the numeric offset without a colon.
		updated, err = time.Parse("2006-01-02 15:04:05-0700", fi.Update)
	}
	if err != nil {
		return nil, fmt.Errorf("bad update %q: %w", fi.Update, err)
	}

	iss := &domain.Issue{
		Key:        fi.ID,
		FeedStatus: q.Status,
		Lat:        lat,
		Lon:        lon,
		Classification: domain.Classification{
			ItemID:  fi.Item,
			ClassID: fi.Class,
		},
		Level:         fi.Level,
		Country:       q.Country,
		Source:        fi.Source,
		Usernames:     strings.Join(fi.Usernames, ","),
		FeedUpdatedAt: updated,
	}
	if fi.Subtitle != nil {
		iss.Subtitle = fi.Subtitle.Auto
	}
	if len(fi.OSMIDs) > 0 {
		iss.Elems = string(fi.OSMIDs)
		var ids struct {
			Nodes     json.RawMessage `json:"nodes"`
			Ways      json.RawMessage `json:"ways"`
			Relations json.RawMessage `json:"relations"`
		}
		if err := json.Unmarshal(fi.OSMIDs, &ids); err != nil {
			return nil, fmt.Errorf("decode osm_ids: %w", err)
		}
		iss.Nodes = string(ids.Nodes)
		iss.Ways = string(ids.Ways)
		iss.Relations = string(ids.Relations)
	}
	return iss, nil
}

// FetchDetail loads the false-positive detail for one issue (bounding box
// and feed-side creation date).
func (c *Client) FetchDetail(ctx context.Context, key string) (*domain.Detail, error) {
	body, err := c.get(ctx, c.endpoint+"/false-positive/"+url.PathEscape(key))
	if err != nil {
		return nil, fmt.Errorf("fetch detail %s: %w", key, err)
	}

	var wire struct {
		MinLat float64 `json:"minlat"`
		MaxLat float64 `json:"maxlat"`
		MinLon float64 `json:"minlon"`
		MaxLon float64 `json:"maxlon"`
		Date   string  `json:"date"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode detail %s: %w", key, err)
	}

	d := &domain.Detail{
		MinLat: wire.MinLat,
		MaxLat: wire.MaxLat,
		MinLon: wire.MinLon,
		MaxLon: wire.MaxLon,
	}
	if wire.Date != "" {
		t, err := time.Parse(detailTimestamp, wire.Date)
		if err != nil {
			return nil, fmt.Errorf("bad detail date %q: %w", wire.Date, err)
		}
		d.Date = &t
	}
	return d, nil
}

// Countries lists the areas the feed can be queried for.
func (c *Client) Countries(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, c.endpoint+"/countries")
	if err != nil {
		return nil, fmt.Errorf("fetch countries: %w", err)
	}
	var wire struct {
		Countries []string `json:"countries"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode countries: %w", err)
	}
	return wire.Countries, nil
}
