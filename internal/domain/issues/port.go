package issues

import (
	"context"
	"time"
)

// Repository port (interface for persistence)
type Repository interface {
	// Save upserts the full issue row by external key. Atomic.
	Save(ctx context.Context, i *Issue) error
	// Get returns the issue for the key, or nil when unknown.
	Get(ctx context.Context, key string) (*Issue, error)

	// SelectEligible returns issues with no report reference whose
	// policy-exclusion flag is resolved to not-excluded.
	SelectEligible(ctx context.Context) ([]*Issue, error)
	// SelectUnclosed returns issues holding a report reference whose report
	// status is in the given allow-list.
	SelectUnclosed(ctx context.Context, statuses []string) ([]*Issue, error)
	// SelectExclusionUnknown returns issues whose policy flag is unresolved.
	SelectExclusionUnknown(ctx context.Context) ([]*Issue, error)
	// SelectByFeedStatus returns all issues collected under a feed status.
	SelectByFeedStatus(ctx context.Context, status FeedStatus) ([]*Issue, error)

	// UpdateReport persists report reference + status + refresh timestamp
	// for one issue as a single write.
	UpdateReport(ctx context.Context, key string, ref int64, status *string, refreshedAt time.Time) error
	// UpdateStatus persists a refreshed report status + timestamp.
	UpdateStatus(ctx context.Context, key string, status string, refreshedAt time.Time) error
	// UpdateExclusion persists a resolved policy-exclusion flag.
	UpdateExclusion(ctx context.Context, key string, excluded bool) error
}

// FeedQuery is one listing request against the issue feed.
type FeedQuery struct {
	Limit      int
	Country    string
	Full       bool
	Status     FeedStatus
	StartDate  time.Time
	EndDate    time.Time
	UseDevItem string
	Source     string
	ClassID    int
	ItemID     int
}

// Feed port (interface for the upstream anomaly feed)
type Feed interface {
	Fetch(ctx context.Context, q FeedQuery) ([]*Issue, error)
	FetchDetail(ctx context.Context, key string) (*Detail, error)
	// Countries lists the territories the feed can be queried for.
	Countries(ctx context.Context) ([]string, error)
}

// SpatialPoint is the minimal projection of an issue sent to the
// clustering computation.
type SpatialPoint struct {
	Key     string  `json:"key"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	ItemID  int     `json:"item_id"`
	ClassID int     `json:"class_id"`
	Attr1   string  `json:"attr1"`
}

// ClusterRow is one row of the clustering response. Rows arrive ordered by
// cluster key, then by member distance to the cluster centroid.
type ClusterRow struct {
	Key              string
	ClusterKey       *string
	BoundingGeometry *string
	CentroidLon      *float64
	CentroidLat      *float64
}

// AdminUnit is the administrative-geography record for a location.
type AdminUnit struct {
	CollectorZone      string
	CommuneCode        string
	CommuneName        string
	CantonCode         string
	ArrondissementCode string
	ArrondissementName string
	CollectivityCode   string
	CollectivityName   string
	DepartmentCode     string
	DepartmentName     string
	RegionCode         string
	RegionName         string
}

// Territory is the legal-projection record for a location.
type Territory struct {
	Name string
	SRID int
	X    float64
	Y    float64
}

// RefObject is the reference-inventory object matched to a location.
type RefObject struct {
	ID         string
	Attr1      string
	Attr2      string
	Attr3      string
	Attr4      string
	Attr5      string
	ModifiedAt *time.Time
}

// SpatialService port (interface for the reference-geography backend).
// Clusterize performs the spatial clustering server-side; the engine only
// consumes its ordered output.
type SpatialService interface {
	Clusterize(ctx context.Context, points []SpatialPoint) ([]ClusterRow, error)
	AdminUnit(ctx context.Context, lat, lon float64) (*AdminUnit, error)
	Territory(ctx context.Context, lat, lon float64) (*Territory, error)
	Object(ctx context.Context, lat, lon float64, itemID int) (*RefObject, error)
	// InExclusionZone returns nil when membership could not be determined.
	InExclusionZone(ctx context.Context, lat, lon float64) (*bool, error)
	Departments(ctx context.Context) ([]string, error)
	Regions(ctx context.Context) ([]string, error)
}

// ReportDraft is the payload for one report creation.
type ReportDraft struct {
	Lon     float64
	Lat     float64
	Message string
	Theme   string
	Mode    ReportMode
	Sketch  *string
}

// ReportService port (interface for the remote reporting backend)
type ReportService interface {
	// CreateReport returns the id assigned by the remote service.
	CreateReport(ctx context.Context, d ReportDraft) (int64, error)
	// GetStatus returns nil when the report is unknown or the lookup came
	// back empty; callers must not treat that as a status change.
	GetStatus(ctx context.Context, id int64) (*string, error)
}
