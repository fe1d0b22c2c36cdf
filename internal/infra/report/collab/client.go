package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	domain "github.com/ignfab/osmoreport/internal/domain/issues"
)

const retryMaxElapsed = 30 * time.Second

// Client posts reports to the collaborative-space backend and polls their
// review status. Authentication is HTTP basic.
type Client struct {
	endpoint  string
	login     string
	password  string
	community int
	http      *http.Client
}

func NewClient(endpoint, login, password string, community int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:  strings.TrimRight(endpoint, "/"),
		login:     login,
		password:  password,
		community: community,
		http:      &http.Client{Timeout: timeout},
	}
}

func newRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed
	return bo
}

type reportAttributes struct {
	Community  int               `json:"community"`
	Theme      string            `json:"theme"`
	Attributes map[string]string `json:"attributes"`
}

type reportBody struct {
	Community     int              `json:"community"`
	Geometry      string           `json:"geometry"`
	Comment       string           `json:"comment"`
	Status        string           `json:"status"`
	InputDevice   string           `json:"input_device"`
	DeviceVersion string           `json:"device_version"`
	Attributes    reportAttributes `json:"attributes"`
	Sketch        *string          `json:"sketch,omitempty"`
}

// CreateReport posts one report and returns the id the backend assigned.
// Repost runs are forwarded as submit; the distinction only matters locally.
func (c *Client) CreateReport(ctx context.Context, d domain.ReportDraft) (int64, error) {
	status := string(d.Mode)
	if d.Mode == domain.ModeRepost {
		status = string(domain.ModeSubmit)
	}

	body := reportBody{
		Community:     c.community,
		Geometry:      fmt.Sprintf("POINT(%v %v)", d.Lon, d.Lat),
		Comment:       d.Message,
		Status:        status,
		InputDevice:   "UNKNOWN",
		DeviceVersion: "0.0",
		Attributes: reportAttributes{
			Community:  c.community,
			Theme:      d.Theme,
			Attributes: map[string]string{},
		},
		Sketch: d.Sketch,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("encode report: %w", err)
	}

	var created struct {
		ID int64 `json:"id"`
	}
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.SetBasicAuth(c.login, c.password)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("report backend returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusCreated {
			return backoff.Permanent(fmt.Errorf("report backend returned %d: %s", resp.StatusCode, raw))
		}
		return json.Unmarshal(raw, &created)
	}
	if err := backoff.Retry(op, backoff.WithContext(newRetryBackoff(), ctx)); err != nil {
		return 0, err
	}
	return created.ID, nil
}

// GetStatus returns the current review status of a report. Any non-200
// answer maps to nil without error: an unknown or unreadable report must
// never overwrite locally recorded state.
func (c *Client) GetStatus(ctx context.Context, id int64) (*string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint+"/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.login, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var wire struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode status %d: %w", id, err)
	}
	return &wire.Status, nil
}
