package collab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/ignfab/osmoreport/internal/domain/issues"
)

func TestCreateReport(t *testing.T) {
	var got reportBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "robot", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 4242}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "robot", "secret", 12, time.Second)
	sketch := `{"desc":"Emprise du cluster"}`
	id, err := c.CreateReport(context.Background(), domain.ReportDraft{
		Lon:     2.3522,
		Lat:     48.8566,
		Message: "Alerte",
		Theme:   "Route",
		Mode:    domain.ModeSubmit,
		Sketch:  &sketch,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4242), id)

	assert.Equal(t, 12, got.Community)
	assert.Equal(t, "POINT(2.3522 48.8566)", got.Geometry)
	assert.Equal(t, "submit", got.Status)
	assert.Equal(t, "UNKNOWN", got.InputDevice)
	assert.Equal(t, "0.0", got.DeviceVersion)
	assert.Equal(t, "Route", got.Attributes.Theme)
	require.NotNil(t, got.Sketch)
	assert.Equal(t, sketch, *got.Sketch)
}

func TestCreateReportRepostForwardsAsSubmit(t *testing.T) {
	var got reportBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 7}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "robot", "secret", 12, time.Second)
	_, err := c.CreateReport(context.Background(), domain.ReportDraft{Mode: domain.ModeRepost, Message: "m"})
	require.NoError(t, err)
	assert.Equal(t, "submit", got.Status)
	assert.Nil(t, got.Sketch)
}

func TestCreateReportRejected(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"bad geometry"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "robot", "secret", 12, time.Second)
	_, err := c.CreateReport(context.Background(), domain.ReportDraft{Mode: domain.ModeTest, Message: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Equal(t, 1, calls, "client errors are not retried")
}

func TestGetStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/4242", r.URL.Path)
		w.Write([]byte(`{"id":4242,"status":"valid"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "robot", "secret", 12, time.Second)
	status, err := c.GetStatus(context.Background(), 4242)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, "valid", *status)
}

func TestGetStatusUnknownReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "robot", "secret", 12, time.Second)
	status, err := c.GetStatus(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, status)
}
