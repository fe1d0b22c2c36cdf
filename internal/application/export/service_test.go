package export

import (
	"context"
	"encoding/csv"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/ignfab/osmoreport/internal/domain/issues"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type stubRepo struct {
	list []*domain.Issue
}

func (r *stubRepo) Save(ctx context.Context, i *domain.Issue) error { return nil }
func (r *stubRepo) Get(ctx context.Context, key string) (*domain.Issue, error) {
	return nil, nil
}
func (r *stubRepo) SelectEligible(ctx context.Context) ([]*domain.Issue, error) { return nil, nil }
func (r *stubRepo) SelectUnclosed(ctx context.Context, statuses []string) ([]*domain.Issue, error) {
	return nil, nil
}
func (r *stubRepo) SelectExclusionUnknown(ctx context.Context) ([]*domain.Issue, error) {
	return nil, nil
}
func (r *stubRepo) SelectByFeedStatus(ctx context.Context, status domain.FeedStatus) ([]*domain.Issue, error) {
	return r.list, nil
}
func (r *stubRepo) UpdateReport(ctx context.Context, key string, ref int64, status *string, refreshedAt time.Time) error {
	return nil
}
func (r *stubRepo) UpdateStatus(ctx context.Context, key string, status string, refreshedAt time.Time) error {
	return nil
}
func (r *stubRepo) UpdateExclusion(ctx context.Context, key string, excluded bool) error {
	return nil
}

func TestSnapshot(t *testing.T) {
	ref := int64(-42)
	status := "valid"
	excluded := false
	clusterKey := "7170-1--0"
	iss := &domain.Issue{
		Key:        "abc",
		FeedStatus: domain.FeedStatusFalse,
		Lat:        48.85,
		Lon:        2.35,
		Classification: domain.Classification{
			ItemID: 7170, ClassID: 1, ItemNameFR: "route",
		},
		Country:      "france",
		Excluded:     &excluded,
		ClusterKey:   &clusterKey,
		ReportRef:    &ref,
		ReportStatus: &status,
	}

	svc := &Service{
		Repo:  &stubRepo{list: []*domain.Issue{iss}},
		Clock: fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}

	dir := t.TempDir()
	path, err := svc.Snapshot(context.Background(), domain.FeedStatusFalse, dir)
	require.NoError(t, err)
	assert.Contains(t, path, "issues_false_20260301-120000.csv")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, header, rows[0])

	byCol := map[string]string{}
	for i, col := range rows[0] {
		byCol[col] = rows[1][i]
	}
	assert.Equal(t, "abc", byCol["key"])
	assert.Equal(t, "false", byCol["feed_status"])
	assert.Equal(t, "route", byCol["item_name_fr"])
	assert.Equal(t, "-42", byCol["report_ref"])
	assert.Equal(t, "valid", byCol["report_status"])
	assert.Equal(t, "7170-1--0", byCol["cluster_key"])
	assert.Equal(t, "false", byCol["excluded"])
	assert.Equal(t, "", byCol["status_refreshed_at"])
}
