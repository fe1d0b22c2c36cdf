package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/ignfab/osmoreport/internal/domain/issues"
)

type IssueRepository struct {
	db *sql.DB
}

func NewIssueRepository(db *sql.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

const issueColumns = `
issue_key, feed_status, lat, lon, item_id, class_id,
item_name_en, item_name_fr, class_name_en, class_name_fr,
level, subtitle, country, source, usernames, feed_updated_at,
elems, nodes, ways, relations,
min_lat, max_lat, min_lon, max_lon, feed_date,
theme, ref_class, description,
collector_zone, commune_code, commune_name, canton_code,
arrondissement_code, arrondissement_name, collectivity_code, collectivity_name,
department_code, department_name, region_code, region_name,
territory_name, territory_srid, x, y,
object_id, attr1, attr2, attr3, attr4, attr5, object_modified_at,
excluded, cluster_key, sketch,
report_ref, report_status, status_refreshed_at`

// Save upserts the issue by external key. Report linkage columns are owned
// by UpdateReport/UpdateStatus and are deliberately not touched on conflict,
// so a re-collection pass can never clear an emitted report reference.
func (r *IssueRepository) Save(ctx context.Context, i *domain.Issue) error {
	q := `
INSERT INTO issues (` + issueColumns + `)
VALUES (` + placeholders(57) + `)
ON DUPLICATE KEY UPDATE
 feed_status=VALUES(feed_status),
 item_name_en=VALUES(item_name_en), item_name_fr=VALUES(item_name_fr),
 class_name_en=VALUES(class_name_en), class_name_fr=VALUES(class_name_fr),
 level=VALUES(level), subtitle=VALUES(subtitle), usernames=VALUES(usernames),
 feed_updated_at=VALUES(feed_updated_at),
 min_lat=VALUES(min_lat), max_lat=VALUES(max_lat),
 min_lon=VALUES(min_lon), max_lon=VALUES(max_lon), feed_date=VALUES(feed_date),
 theme=VALUES(theme), ref_class=VALUES(ref_class), description=VALUES(description),
 collector_zone=VALUES(collector_zone),
 commune_code=VALUES(commune_code), commune_name=VALUES(commune_name),
 canton_code=VALUES(canton_code),
 arrondissement_code=VALUES(arrondissement_code), arrondissement_name=VALUES(arrondissement_name),
 collectivity_code=VALUES(collectivity_code), collectivity_name=VALUES(collectivity_name),
 department_code=VALUES(department_code), department_name=VALUES(department_name),
 region_code=VALUES(region_code), region_name=VALUES(region_name),
 territory_name=VALUES(territory_name), territory_srid=VALUES(territory_srid),
 x=VALUES(x), y=VALUES(y),
 object_id=VALUES(object_id),
 attr1=VALUES(attr1), attr2=VALUES(attr2), attr3=VALUES(attr3),
 attr4=VALUES(attr4), attr5=VALUES(attr5),
 object_modified_at=VALUES(object_modified_at),
 cluster_key=VALUES(cluster_key), sketch=VALUES(sketch);`

	g := i.Geography
	var detail [5]any
	if i.Detail != nil {
		detail = [5]any{i.Detail.MinLat, i.Detail.MaxLat, i.Detail.MinLon, i.Detail.MaxLon, nullTime(i.Detail.Date)}
	} else {
		detail = [5]any{nil, nil, nil, nil, nil}
	}

	_, err := r.db.ExecContext(ctx, q,
		i.Key, string(i.FeedStatus), i.Lat, i.Lon, i.Classification.ItemID, i.Classification.ClassID,
		i.Classification.ItemNameEN, i.Classification.ItemNameFR,
		i.Classification.ClassNameEN, i.Classification.ClassNameFR,
		i.Level, i.Subtitle, i.Country, i.Source, i.Usernames, i.FeedUpdatedAt,
		i.Elems, i.Nodes, i.Ways, i.Relations,
		detail[0], detail[1], detail[2], detail[3], detail[4],
		i.Theme, i.RefClass, i.Description,
		g.CollectorZone, g.CommuneCode, g.CommuneName, g.CantonCode,
		g.ArrondissementCode, g.ArrondissementName, g.CollectivityCode, g.CollectivityName,
		g.DepartmentCode, g.DepartmentName, g.RegionCode, g.RegionName,
		g.TerritoryName, nullInt(g.TerritorySRID), nullFloat(g.X), nullFloat(g.Y),
		g.ObjectID, g.Attr1, g.Attr2, g.Attr3, g.Attr4, g.Attr5, nullTime(g.ObjectModifiedAt),
		nullBool(i.Excluded), nullStr(i.ClusterKey), nullStr(i.Sketch),
		nullRef(i.ReportRef), nullStr(i.ReportStatus), nullTime(i.StatusRefreshedAt),
	)
	return err
}

// Get by external key; nil when unknown.
func (r *IssueRepository) Get(ctx context.Context, key string) (*domain.Issue, error) {
	q := `SELECT ` + issueColumns + ` FROM issues WHERE issue_key=? LIMIT 1;`
	iss, err := scanIssue(r.db.QueryRowContext(ctx, q, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return iss, err
}

// SelectEligible returns candidates for reporting: no report reference and
// policy-exclusion resolved to not-excluded.
func (r *IssueRepository) SelectEligible(ctx context.Context) ([]*domain.Issue, error) {
	q := `SELECT ` + issueColumns + `
FROM issues
WHERE report_ref IS NULL AND excluded = FALSE
ORDER BY feed_updated_at;`
	return r.selectMany(ctx, q)
}

// SelectUnclosed returns issues holding a report whose status is in the
// allow-list.
func (r *IssueRepository) SelectUnclosed(ctx context.Context, statuses []string) ([]*domain.Issue, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	q := `SELECT ` + issueColumns + `
FROM issues
WHERE report_ref IS NOT NULL AND report_status IN (` + placeholders(len(statuses)) + `)
ORDER BY status_refreshed_at;`
	args := make([]any, len(statuses))
	for idx, st := range statuses {
		args[idx] = st
	}
	return r.selectMany(ctx, q, args...)
}

// SelectExclusionUnknown returns issues with an unresolved policy flag.
func (r *IssueRepository) SelectExclusionUnknown(ctx context.Context) ([]*domain.Issue, error) {
	q := `SELECT ` + issueColumns + ` FROM issues WHERE excluded IS NULL;`
	return r.selectMany(ctx, q)
}

// SelectByFeedStatus returns everything collected under a feed status.
func (r *IssueRepository) SelectByFeedStatus(ctx context.Context, status domain.FeedStatus) ([]*domain.Issue, error) {
	q := `SELECT ` + issueColumns + ` FROM issues WHERE feed_status=? ORDER BY issue_key;`
	return r.selectMany(ctx, q, string(status))
}

// UpdateReport persists reference + status + refresh timestamp in one
// statement, so an interrupted run can never leave a half-written linkage.
func (r *IssueRepository) UpdateReport(ctx context.Context, key string, ref int64, status *string, refreshedAt time.Time) error {
	const q = `
UPDATE issues
SET report_ref=?, report_status=?, status_refreshed_at=?
WHERE issue_key=?;`
	res, err := r.db.ExecContext(ctx, q, ref, nullStr(status), refreshedAt, key)
	if err != nil {
		return err
	}
	return requireRow(res, key)
}

// UpdateStatus persists a refreshed remote status.
func (r *IssueRepository) UpdateStatus(ctx context.Context, key string, status string, refreshedAt time.Time) error {
	const q = `
UPDATE issues
SET report_status=?, status_refreshed_at=?
WHERE issue_key=?;`
	res, err := r.db.ExecContext(ctx, q, status, refreshedAt, key)
	if err != nil {
		return err
	}
	return requireRow(res, key)
}

// UpdateExclusion persists a resolved policy flag.
func (r *IssueRepository) UpdateExclusion(ctx context.Context, key string, excluded bool) error {
	const q = `UPDATE issues SET excluded=? WHERE issue_key=?;`
	res, err := r.db.ExecContext(ctx, q, excluded, key)
	if err != nil {
		return err
	}
	return requireRow(res, key)
}

func requireRow(res sql.Result, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("issue %s: %w", key, sql.ErrNoRows)
	}
	return nil
}

func (r *IssueRepository) selectMany(ctx context.Context, q string, args ...any) ([]*domain.Issue, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Issue
	for rows.Next() {
		iss, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, iss)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*domain.Issue, error) {
	var i domain.Issue
	var feedStatus string
	var minLat, maxLat, minLon, maxLon sql.NullFloat64
	var feedDate sql.NullTime
	var srid sql.NullInt64
	var x, y sql.NullFloat64
	var objModified sql.NullTime
	var excluded sql.NullBool
	var clusterKey, sketch, reportStatus sql.NullString
	var reportRef sql.NullInt64
	var refreshedAt sql.NullTime

	g := &i.Geography
	if err := row.Scan(
		&i.Key, &feedStatus, &i.Lat, &i.Lon, &i.Classification.ItemID, &i.Classification.ClassID,
		&i.Classification.ItemNameEN, &i.Classification.ItemNameFR,
		&i.Classification.ClassNameEN, &i.Classification.ClassNameFR,
		&i.Level, &i.Subtitle, &i.Country, &i.Source, &i.Usernames, &i.FeedUpdatedAt,
		&i.Elems, &i.Nodes, &i.Ways, &i.Relations,
		&minLat, &maxLat, &minLon, &maxLon, &feedDate,
		&i.Theme, &i.RefClass, &i.Description,
		&g.CollectorZone, &g.CommuneCode, &g.CommuneName, &g.CantonCode,
		&g.ArrondissementCode, &g.ArrondissementName, &g.CollectivityCode, &g.CollectivityName,
		&g.DepartmentCode, &g.DepartmentName, &g.RegionCode, &g.RegionName,
		&g.TerritoryName, &srid, &x, &y,
		&g.ObjectID, &g.Attr1, &g.Attr2, &g.Attr3, &g.Attr4, &g.Attr5, &objModified,
		&excluded, &clusterKey, &sketch,
		&reportRef, &reportStatus, &refreshedAt,
	); err != nil {
		return nil, err
	}

	i.FeedStatus = domain.FeedStatus(feedStatus)
	if minLat.Valid {
		i.Detail = &domain.Detail{
			MinLat: minLat.Float64,
			MaxLat: maxLat.Float64,
			MinLon: minLon.Float64,
			MaxLon: maxLon.Float64,
		}
		if feedDate.Valid {
			t := feedDate.Time
			i.Detail.Date = &t
		}
	}
	if srid.Valid {
		v := int(srid.Int64)
		g.TerritorySRID = &v
	}
	if x.Valid {
		g.X = &x.Float64
	}
	if y.Valid {
		g.Y = &y.Float64
	}
	if objModified.Valid {
		t := objModified.Time
		g.ObjectModifiedAt = &t
	}
	if excluded.Valid {
		g2 := excluded.Bool
		i.Excluded = &g2
	}
	if clusterKey.Valid {
		i.ClusterKey = &clusterKey.String
	}
	if sketch.Valid {
		i.Sketch = &sketch.String
	}
	if reportRef.Valid {
		i.ReportRef = &reportRef.Int64
	}
	if reportStatus.Valid {
		i.ReportStatus = &reportStatus.String
	}
	if refreshedAt.Valid {
		t := refreshedAt.Time
		i.StatusRefreshedAt = &t
	}
	return &i, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
