package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ignfab/osmoreport/internal/application"
	domain "github.com/ignfab/osmoreport/internal/domain/issues"
	"github.com/ignfab/osmoreport/internal/domain/runs"
)

// Service writes CSV snapshots of the collected issues and optionally ships
// them to the artifact store.
type Service struct {
	Repo      domain.Repository
	Artifacts runs.ArtifactStore // nil disables uploads
	Clock     application.Clock
}

var header = []string{
	"key", "feed_status", "lat", "lon", "item_id", "class_id",
	"item_name_fr", "class_name_fr", "level", "subtitle", "country", "source",
	"commune_code", "commune_name", "department_code", "department_name",
	"region_code", "region_name", "territory_name",
	"object_id", "attr1", "excluded", "cluster_key",
	"report_ref", "report_status", "status_refreshed_at",
}

// Snapshot writes issues_<status>_<timestamp>.csv under dir and returns its path.
func (s *Service) Snapshot(ctx context.Context, status domain.FeedStatus, dir string) (string, error) {
	list, err := s.Repo.SelectByFeedStatus(ctx, status)
	if err != nil {
		return "", fmt.Errorf("select issues: %w", err)
	}

	name := fmt.Sprintf("issues_%s_%s.csv", status, s.Clock.Now().Format("20060102-150405"))
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, iss := range list {
		if err := w.Write(record(iss)); err != nil {
			return "", fmt.Errorf("issue %s: write: %w", iss.Key, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return path, nil
}

// SnapshotAndUpload writes the snapshot and ships it to the artifact store,
// removing the local file afterwards. Returns the artifact URL.
func (s *Service) SnapshotAndUpload(ctx context.Context, status domain.FeedStatus, dir, runID string) (string, error) {
	path, err := s.Snapshot(ctx, status, dir)
	if err != nil {
		return "", err
	}
	if s.Artifacts == nil {
		return path, nil
	}
	key := fmt.Sprintf("runs/%s/%s", runID, filepath.Base(path))
	return s.Artifacts.UploadAndCleanup(ctx, path, key)
}

func record(iss *domain.Issue) []string {
	g := iss.Geography
	return []string{
		iss.Key,
		string(iss.FeedStatus),
		strconv.FormatFloat(iss.Lat, 'f', -1, 64),
		strconv.FormatFloat(iss.Lon, 'f', -1, 64),
		strconv.Itoa(iss.Classification.ItemID),
		strconv.Itoa(iss.Classification.ClassID),
		iss.Classification.ItemNameFR,
		iss.Classification.ClassNameFR,
		strconv.Itoa(iss.Level),
		iss.Subtitle,
		iss.Country,
		strconv.Itoa(iss.Source),
		g.CommuneCode, g.CommuneName,
		g.DepartmentCode, g.DepartmentName,
		g.RegionCode, g.RegionName,
		g.TerritoryName,
		g.ObjectID, g.Attr1,
		boolPtr(iss.Excluded),
		strPtr(iss.ClusterKey),
		refPtr(iss.ReportRef),
		strPtr(iss.ReportStatus),
		timePtr(iss.StatusRefreshedAt),
	}
}

func strPtr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func boolPtr(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}

func refPtr(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func timePtr(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.Format(time.RFC3339)
}
