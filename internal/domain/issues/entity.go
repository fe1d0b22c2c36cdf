package issues

import (
	"time"
)

// FeedStatus enum, status of the anomaly on the upstream feed
type FeedStatus string

const (
	FeedStatusFalse FeedStatus = "false"
	FeedStatusDone  FeedStatus = "done"
	FeedStatusOpen  FeedStatus = "open"
)

// ReportMode enum, run-scoped emission mode
type ReportMode string

const (
	// ModeSkip emits nothing, the reporting service is never called.
	ModeSkip ReportMode = "skip"
	// ModeTest emits reports the remote accepts but does not forward to collectors.
	ModeTest ReportMode = "test"
	// ModeSubmit emits reports forwarded to collectors.
	ModeSubmit ReportMode = "submit"
	// ModeRepost re-emits reports for issues left unreported by an aborted run.
	ModeRepost ReportMode = "repost"
)

// UnclosedStatuses is the allow-list of remote report statuses considered
// still open. Issues carrying one of these are candidates for a status
// refresh; anything else is terminal.
var UnclosedStatuses = []string{
	string(ModeTest), string(ModeSubmit), string(ModeRepost),
	"valid", "valid0", "reject", "reject0",
}

// Classification identifies the anomaly kind on the upstream feed.
type Classification struct {
	ItemID      int    `json:"item_id"`
	ItemNameEN  string `json:"item_name_en,omitempty"`
	ItemNameFR  string `json:"item_name_fr,omitempty"`
	ClassID     int    `json:"class_id"`
	ClassNameEN string `json:"class_name_en,omitempty"`
	ClassNameFR string `json:"class_name_fr,omitempty"`
}

// Geography holds the reference-geography enrichment attached to an issue.
// All fields are empty until the enrichment lookups have run.
type Geography struct {
	CollectorZone      string     `json:"collector_zone,omitempty"`
	CommuneCode        string     `json:"commune_code,omitempty"`
	CommuneName        string     `json:"commune_name,omitempty"`
	CantonCode         string     `json:"canton_code,omitempty"`
	ArrondissementCode string     `json:"arrondissement_code,omitempty"`
	ArrondissementName string     `json:"arrondissement_name,omitempty"`
	CollectivityCode   string     `json:"collectivity_code,omitempty"`
	CollectivityName   string     `json:"collectivity_name,omitempty"`
	DepartmentCode     string     `json:"department_code,omitempty"`
	DepartmentName     string     `json:"department_name,omitempty"`
	RegionCode         string     `json:"region_code,omitempty"`
	RegionName         string     `json:"region_name,omitempty"`
	TerritoryName      string     `json:"territory_name,omitempty"`
	TerritorySRID      *int       `json:"territory_srid,omitempty"`
	X                  *float64   `json:"x,omitempty"`
	Y                  *float64   `json:"y,omitempty"`
	ObjectID           string     `json:"object_id,omitempty"`
	Attr1              string     `json:"attr1,omitempty"`
	Attr2              string     `json:"attr2,omitempty"`
	Attr3              string     `json:"attr3,omitempty"`
	Attr4              string     `json:"attr4,omitempty"`
	Attr5              string     `json:"attr5,omitempty"`
	ObjectModifiedAt   *time.Time `json:"object_modified_at,omitempty"`
}

// Detail holds the per-issue detail fetched from the feed after the first
// listing pass (bounding box and feed-side creation date).
type Detail struct {
	MinLat float64    `json:"minlat"`
	MaxLat float64    `json:"maxlat"`
	MinLon float64    `json:"minlon"`
	MaxLon float64    `json:"maxlon"`
	Date   *time.Time `json:"date,omitempty"`
}

// Aggregate Root: Issue, one anomaly from the feed and its accumulated
// enrichment and report state. The external Key is immutable and unique;
// issues are never deleted, only advanced through their lifecycle.
type Issue struct {
	Key            string         `json:"key"`
	FeedStatus     FeedStatus     `json:"feed_status"`
	Lat            float64        `json:"lat"`
	Lon            float64        `json:"lon"`
	Classification Classification `json:"classification"`
	Level          int            `json:"level,omitempty"`
	Subtitle       string         `json:"subtitle,omitempty"`
	Country        string         `json:"country,omitempty"`
	Source         int            `json:"source,omitempty"`
	Usernames      string         `json:"usernames,omitempty"`
	FeedUpdatedAt  time.Time      `json:"feed_updated_at"`
	Elems          string         `json:"elems,omitempty"`
	Nodes          string         `json:"nodes,omitempty"`
	Ways           string         `json:"ways,omitempty"`
	Relations      string         `json:"relations,omitempty"`
	Detail         *Detail        `json:"detail,omitempty"`

	Theme       string    `json:"theme,omitempty"`
	RefClass    string    `json:"ref_class,omitempty"`
	Description string    `json:"description,omitempty"`
	Geography   Geography `json:"geography"`

	// Excluded is the tri-state policy-exclusion flag: nil = not yet
	// resolved, true = inside an exclusion zone, false = reportable.
	Excluded *bool `json:"excluded,omitempty"`

	// ClusterKey is set by the correlation engine. nil means the issue
	// belongs to no cluster and is reported standalone.
	ClusterKey *string `json:"cluster_key,omitempty"`
	// Sketch is the JSON annotation (bounding geometry + centroid) attached
	// to the cluster owner's report. Present only for clustered issues.
	Sketch *string `json:"sketch,omitempty"`

	// ReportRef uses a sign convention: the issue that triggered the report
	// stores the positive id, every other member of the same cluster stores
	// its negation. abs(ReportRef) is the remote report id either way.
	ReportRef         *int64     `json:"report_ref,omitempty"`
	ReportStatus      *string    `json:"report_status,omitempty"`
	StatusRefreshedAt *time.Time `json:"status_refreshed_at,omitempty"`
}

// OwnsReport reports whether this issue holds reporting responsibility for
// its cluster (or is a standalone report).
func (i *Issue) OwnsReport() bool {
	return i.ReportRef != nil && *i.ReportRef > 0
}

// ReportID returns the remote report id regardless of linkage sign, or 0
// when the issue has no report reference.
func (i *Issue) ReportID() int64 {
	if i.ReportRef == nil {
		return 0
	}
	if *i.ReportRef < 0 {
		return -*i.ReportRef
	}
	return *i.ReportRef
}
