package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignfab/osmoreport/internal/application"
	domain "github.com/ignfab/osmoreport/internal/domain/issues"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type reportWrite struct {
	ref    int64
	status *string
	stamp  time.Time
}

type fakeRepo struct {
	eligible []*domain.Issue
	unclosed []*domain.Issue

	reportWrites map[string]reportWrite
	statusWrites map[string]string
	failKey      string // UpdateReport for this key fails
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		reportWrites: map[string]reportWrite{},
		statusWrites: map[string]string{},
	}
}

func (r *fakeRepo) Save(ctx context.Context, i *domain.Issue) error { return nil }
func (r *fakeRepo) Get(ctx context.Context, key string) (*domain.Issue, error) {
	return nil, nil
}
func (r *fakeRepo) SelectEligible(ctx context.Context) ([]*domain.Issue, error) {
	return r.eligible, nil
}
func (r *fakeRepo) SelectUnclosed(ctx context.Context, statuses []string) ([]*domain.Issue, error) {
	return r.unclosed, nil
}
func (r *fakeRepo) SelectExclusionUnknown(ctx context.Context) ([]*domain.Issue, error) {
	return nil, nil
}
func (r *fakeRepo) SelectByFeedStatus(ctx context.Context, status domain.FeedStatus) ([]*domain.Issue, error) {
	return nil, nil
}
func (r *fakeRepo) UpdateReport(ctx context.Context, key string, ref int64, status *string, refreshedAt time.Time) error {
	if key == r.failKey {
		return errors.New("boom")
	}
	r.reportWrites[key] = reportWrite{ref: ref, status: status, stamp: refreshedAt}
	return nil
}
func (r *fakeRepo) UpdateStatus(ctx context.Context, key string, status string, refreshedAt time.Time) error {
	r.statusWrites[key] = status
	return nil
}
func (r *fakeRepo) UpdateExclusion(ctx context.Context, key string, excluded bool) error {
	return nil
}

type fakeSpatial struct {
	rows []domain.ClusterRow
}

func (s *fakeSpatial) Clusterize(ctx context.Context, points []domain.SpatialPoint) ([]domain.ClusterRow, error) {
	return s.rows, nil
}
func (s *fakeSpatial) AdminUnit(ctx context.Context, lat, lon float64) (*domain.AdminUnit, error) {
	return nil, nil
}
func (s *fakeSpatial) Territory(ctx context.Context, lat, lon float64) (*domain.Territory, error) {
	return nil, nil
}
func (s *fakeSpatial) Object(ctx context.Context, lat, lon float64, itemID int) (*domain.RefObject, error) {
	return nil, nil
}
func (s *fakeSpatial) InExclusionZone(ctx context.Context, lat, lon float64) (*bool, error) {
	return nil, nil
}
func (s *fakeSpatial) Departments(ctx context.Context) ([]string, error) { return nil, nil }
func (s *fakeSpatial) Regions(ctx context.Context) ([]string, error)     { return nil, nil }

type fakeReports struct {
	nextID   int64
	drafts   []domain.ReportDraft
	statuses map[int64]*string
	failOn   int // fail the nth CreateReport call (1-based), 0 disables
	badID    bool
	lookups  []int64
}

func (f *fakeReports) CreateReport(ctx context.Context, d domain.ReportDraft) (int64, error) {
	f.drafts = append(f.drafts, d)
	if f.failOn > 0 && len(f.drafts) == f.failOn {
		return 0, errors.New("backend down")
	}
	if f.badID {
		return 0, nil
	}
	f.nextID++
	return f.nextID, nil
}

func (f *fakeReports) GetStatus(ctx context.Context, id int64) (*string, error) {
	f.lookups = append(f.lookups, id)
	return f.statuses[id], nil
}

func newService(repo *fakeRepo, spatial *fakeSpatial, reports *fakeReports) *Service {
	return &Service{
		Repo:    repo,
		Spatial: spatial,
		Reports: reports,
		Clock:   fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		Pacer:   application.NopPacer{},
	}
}

func issue(key string, desc string) *domain.Issue {
	return &domain.Issue{Key: key, Lat: 48.0, Lon: 2.0, Description: desc, Theme: "Route"}
}

func strp(s string) *string { return &s }

func TestCorrelatePreservesResponseOrder(t *testing.T) {
	a, b, c := issue("a", "d"), issue("b", "d"), issue("c", "d")
	geom := "POLYGON((0 0,1 1,2 2,0 0))"
	lat, lon := 48.5, 2.5
	spatial := &fakeSpatial{rows: []domain.ClusterRow{
		{Key: "b", ClusterKey: strp("7170-1--0"), BoundingGeometry: &geom, CentroidLat: &lat, CentroidLon: &lon},
		{Key: "a", ClusterKey: strp("7170-1--0"), BoundingGeometry: &geom, CentroidLat: &lat, CentroidLon: &lon},
		{Key: "c"},
	}}
	svc := newService(newFakeRepo(), spatial, &fakeReports{})

	ordered, err := svc.Correlate(context.Background(), []*domain.Issue{a, b, c})
	require.NoError(t, err)
	require.Len(t, ordered, 3)
	assert.Equal(t, "b", ordered[0].Key)
	assert.Equal(t, "a", ordered[1].Key)
	assert.Equal(t, "c", ordered[2].Key)

	require.NotNil(t, ordered[0].Sketch)
	assert.Contains(t, *ordered[0].Sketch, "Emprise du cluster")
	assert.Contains(t, *ordered[0].Sketch, geom)
	assert.Contains(t, *ordered[0].Sketch, `"zoom":"17"`)
	assert.Nil(t, ordered[2].ClusterKey)
	assert.Nil(t, ordered[2].Sketch)
}

func TestCorrelateOrderingViolation(t *testing.T) {
	a, b, c := issue("a", "d"), issue("b", "d"), issue("c", "d")
	spatial := &fakeSpatial{rows: []domain.ClusterRow{
		{Key: "a", ClusterKey: strp("k1")},
		{Key: "b", ClusterKey: strp("k2")},
		{Key: "c", ClusterKey: strp("k1")},
	}}
	svc := newService(newFakeRepo(), spatial, &fakeReports{})

	_, err := svc.Correlate(context.Background(), []*domain.Issue{a, b, c})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrOrderingViolation)
}

func TestCorrelateUnknownKey(t *testing.T) {
	spatial := &fakeSpatial{rows: []domain.ClusterRow{{Key: "ghost"}}}
	svc := newService(newFakeRepo(), spatial, &fakeReports{})

	_, err := svc.Correlate(context.Background(), []*domain.Issue{issue("a", "d")})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownKey)
}

func TestEmitStandalone(t *testing.T) {
	repo := newFakeRepo()
	reports := &fakeReports{}
	svc := newService(repo, &fakeSpatial{}, reports)

	res, err := svc.Emit(context.Background(), []*domain.Issue{issue("a", "desc")}, domain.ModeSubmit)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reported)
	assert.Equal(t, 0, res.Linked)

	w := repo.reportWrites["a"]
	assert.Equal(t, int64(1), w.ref)
	require.NotNil(t, w.status)
	assert.Equal(t, "submit", *w.status)
}

func TestEmitClusterSignConvention(t *testing.T) {
	key := "7170-1--0"
	owner := issue("owner", "desc owner")
	m1 := issue("m1", "desc m1")
	m2 := issue("m2", "desc m2")
	sk := `{"desc":"Emprise du cluster"}`
	for _, iss := range []*domain.Issue{owner, m1, m2} {
		iss.ClusterKey = &key
		iss.Sketch = &sk
	}

	repo := newFakeRepo()
	reports := &fakeReports{}
	svc := newService(repo, &fakeSpatial{}, reports)

	res, err := svc.Emit(context.Background(), []*domain.Issue{owner, m1, m2}, domain.ModeTest)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reported)
	assert.Equal(t, 2, res.Linked)

	// One remote call for the whole cluster, carrying sketch and disclosure.
	require.Len(t, reports.drafts, 1)
	assert.NotNil(t, reports.drafts[0].Sketch)
	assert.Contains(t, reports.drafts[0].Message, clusterDisclosure)

	ow := repo.reportWrites["owner"]
	assert.Equal(t, int64(1), ow.ref)
	require.NotNil(t, ow.status)
	assert.Equal(t, "test", *ow.status)

	for _, k := range []string{"m1", "m2"} {
		w := repo.reportWrites[k]
		assert.Equal(t, int64(-1), w.ref, k)
		assert.Nil(t, w.status, k)
		assert.Equal(t, ow.stamp, w.stamp, k)
	}
}

func TestEmitStandaloneBreaksClusterRun(t *testing.T) {
	k1, k2 := "k1", "k2"
	a1, a2 := issue("a1", "d"), issue("a2", "d")
	a1.ClusterKey, a2.ClusterKey = &k1, &k1
	solo := issue("solo", "d")
	b1, b2 := issue("b1", "d"), issue("b2", "d")
	b1.ClusterKey, b2.ClusterKey = &k2, &k2

	repo := newFakeRepo()
	reports := &fakeReports{}
	svc := newService(repo, &fakeSpatial{}, reports)

	res, err := svc.Emit(context.Background(), []*domain.Issue{a1, a2, solo, b1, b2}, domain.ModeSubmit)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Reported) // a1, solo, b1
	assert.Equal(t, 2, res.Linked)   // a2, b2

	assert.Equal(t, int64(1), repo.reportWrites["a1"].ref)
	assert.Equal(t, int64(-1), repo.reportWrites["a2"].ref)
	assert.Equal(t, int64(2), repo.reportWrites["solo"].ref)
	assert.Equal(t, int64(3), repo.reportWrites["b1"].ref)
	assert.Equal(t, int64(-3), repo.reportWrites["b2"].ref)
}

func TestEmitSkipMode(t *testing.T) {
	repo := newFakeRepo()
	reports := &fakeReports{}
	svc := newService(repo, &fakeSpatial{}, reports)

	res, err := svc.Emit(context.Background(), []*domain.Issue{issue("a", "d")}, domain.ModeSkip)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Eligible)
	assert.Empty(t, reports.drafts)
	assert.Empty(t, repo.reportWrites)
}

func TestEmitMissingDescription(t *testing.T) {
	svc := newService(newFakeRepo(), &fakeSpatial{}, &fakeReports{})

	_, err := svc.Emit(context.Background(), []*domain.Issue{issue("a", "")}, domain.ModeSubmit)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingDescription)
}

func TestEmitBadReportID(t *testing.T) {
	svc := newService(newFakeRepo(), &fakeSpatial{}, &fakeReports{badID: true})

	_, err := svc.Emit(context.Background(), []*domain.Issue{issue("a", "d")}, domain.ModeSubmit)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBadReportID)
}

func TestEmitAbortKeepsEarlierWrites(t *testing.T) {
	repo := newFakeRepo()
	reports := &fakeReports{failOn: 2}
	svc := newService(repo, &fakeSpatial{}, reports)

	res, err := svc.Emit(context.Background(),
		[]*domain.Issue{issue("a", "d"), issue("b", "d"), issue("c", "d")}, domain.ModeSubmit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issue b")
	assert.Equal(t, 1, res.Reported)

	// The first issue's persisted state survives the abort; nothing was
	// written for the failed or unvisited issues.
	assert.Contains(t, repo.reportWrites, "a")
	assert.NotContains(t, repo.reportWrites, "b")
	assert.NotContains(t, repo.reportWrites, "c")
}

func TestRefreshStatuses(t *testing.T) {
	owner := issue("owner", "d")
	ref := int64(41)
	owner.ReportRef = &ref
	member := issue("member", "d")
	neg := int64(-41)
	member.ReportRef = &neg
	silent := issue("silent", "d")
	ref2 := int64(99)
	silent.ReportRef = &ref2

	repo := newFakeRepo()
	repo.unclosed = []*domain.Issue{owner, member, silent}
	reports := &fakeReports{statuses: map[int64]*string{41: strp("valid")}}
	svc := newService(repo, &fakeSpatial{}, reports)

	refreshed, err := svc.RefreshStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, refreshed)

	// Lookups always use the absolute report id.
	assert.Equal(t, []int64{41, 41, 99}, reports.lookups)
	assert.Equal(t, "valid", repo.statusWrites["owner"])
	assert.Equal(t, "valid", repo.statusWrites["member"])
	// No remote status means no write at all.
	assert.NotContains(t, repo.statusWrites, "silent")
}

func TestRunSkipNeverCallsSpatial(t *testing.T) {
	repo := newFakeRepo()
	repo.eligible = []*domain.Issue{issue("a", "d")}
	spatial := &fakeSpatial{rows: []domain.ClusterRow{{Key: "a"}}}
	svc := newService(repo, spatial, &fakeReports{})

	res, err := svc.Run(context.Background(), domain.ModeSkip)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Eligible)
	assert.Zero(t, res.Reported)
}

func TestEmitSummarizerFailureFallsBack(t *testing.T) {
	key := "k"
	owner := issue("owner", "raw text")
	owner.ClusterKey = &key

	repo := newFakeRepo()
	reports := &fakeReports{}
	svc := newService(repo, &fakeSpatial{}, reports)
	svc.Summarizer = failingSummarizer{}

	_, err := svc.Emit(context.Background(), []*domain.Issue{owner}, domain.ModeSubmit)
	require.NoError(t, err)
	require.Len(t, reports.drafts, 1)
	assert.Contains(t, reports.drafts[0].Message, "raw text")
}

type failingSummarizer struct{}

func (failingSummarizer) Summarize(ctx context.Context, message string) (string, error) {
	return "", fmt.Errorf("quota")
}
