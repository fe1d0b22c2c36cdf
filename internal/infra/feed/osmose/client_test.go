package osmose

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/ignfab/osmoreport/internal/domain/issues"
)

const issuesPayload = `{
  "issues": [
    {
      "id": "45ffa954-6475-1598-a6e5-15c03c01f98e",
      "source": 14708,
      "item": 7170,
      "class": 1,
      "level": 2,
      "subtitle": {"auto": "Route manquante"},
      "update": "2026-02-10 08:30:00+00:00",
      "usernames": ["alice", "bob"],
      "lat": "48.8566",
      "lon": "2.3522",
      "osm_ids": {"ways": [123456]}
    }
  ]
}`

func TestFetch(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/issues.json", r.URL.Path)
		assert.Equal(t, "osmoreport-test", r.Header.Get("User-Agent"))
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Write([]byte(issuesPayload))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "osmoreport-test", time.Second)
	issues, err := c.Fetch(context.Background(), domain.FeedQuery{
		Limit:      500,
		Country:    "france",
		Full:       true,
		Status:     domain.FeedStatusFalse,
		StartDate:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		UseDevItem: "false",
		Source:     "14708",
		ClassID:    1,
		ItemID:     7170,
	})
	require.NoError(t, err)

	assert.Equal(t, "france*", gotQuery["country"])
	assert.Equal(t, "true", gotQuery["full"])
	assert.Equal(t, "false", gotQuery["status"])
	assert.Equal(t, "2026-01-01", gotQuery["start_date"])
	assert.Equal(t, "7170", gotQuery["item"])

	require.Len(t, issues, 1)
	iss := issues[0]
	assert.Equal(t, "45ffa954-6475-1598-a6e5-15c03c01f98e", iss.Key)
	assert.Equal(t, domain.FeedStatusFalse, iss.FeedStatus)
	assert.InDelta(t, 48.8566, iss.Lat, 1e-9)
	assert.InDelta(t, 2.3522, iss.Lon, 1e-9)
	assert.Equal(t, 7170, iss.Classification.ItemID)
	assert.Equal(t, 1, iss.Classification.ClassID)
	assert.Equal(t, "Route manquante", iss.Subtitle)
	assert.Equal(t, "france", iss.Country)
	assert.Equal(t, "alice,bob", iss.Usernames)
	assert.Equal(t, time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC), iss.FeedUpdatedAt.UTC())
	assert.Contains(t, iss.Elems, "ways")
	assert.Equal(t, "[123456]", iss.Ways)
}

func TestFetchDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/false-positive/abc", r.URL.Path)
		w.Write([]byte(`{"minlat":48.1,"maxlat":48.2,"minlon":2.1,"maxlon":2.2,"date":"2026-02-10T08:30:00.123456+00:00"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	d, err := c.FetchDetail(context.Background(), "abc")
	require.NoError(t, err)
	assert.InDelta(t, 48.1, d.MinLat, 1e-9)
	assert.InDelta(t, 2.2, d.MaxLon, 1e-9)
	require.NotNil(t, d.Date)
	assert.Equal(t, 2026, d.Date.Year())
}

func TestCountries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/countries", r.URL.Path)
		w.Write([]byte(`{"countries":["france","belgique"]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	got, err := c.Countries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"france", "belgique"}, got)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"issues":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.Fetch(context.Background(), domain.FeedQuery{Status: domain.FeedStatusFalse})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestFetchClientErrorIsPermanent(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.Fetch(context.Background(), domain.FeedQuery{Status: domain.FeedStatusFalse})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
