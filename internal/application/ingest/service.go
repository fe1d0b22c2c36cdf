package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ignfab/osmoreport/internal/application"
	"github.com/ignfab/osmoreport/internal/config"
	domain "github.com/ignfab/osmoreport/internal/domain/issues"
)

// Service implements the collection use-cases: pull anomalies from the feed,
// enrich them from the reference geography, filter them spatially and
// persist the survivors. All of this happens upstream of the emission core.
type Service struct {
	Feed    domain.Feed
	Repo    domain.Repository
	Spatial domain.SpatialService
	Items   map[int]config.ItemInfo
	Keyword string // report header keyword
	Clock   application.Clock
	Pacer   application.Pacer
}

// Query describes one collection pass over the feed.
type Query struct {
	Countries   []string
	Sources     []string
	Items       []int
	Status      domain.FeedStatus
	StartDate   time.Time
	EndDate     time.Time
	UseDevItem  string
	Departments []string // INSEE codes, keep issues in these departments
	Regions     []string // INSEE codes, mutually exclusive with Departments
	Limit       int
}

// Stats counts what one collection pass did.
type Stats struct {
	Collected int // issues returned by the feed
	New       int // issues unknown to the store
	Persisted int // new issues that passed the spatial filter
}

// Validate checks the query against the feed and reference lists before any
// work starts. Bad parameters abort the run up front.
func (s *Service) Validate(ctx context.Context, q Query) error {
	if !q.StartDate.After(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)) {
		return fmt.Errorf("start date %s before 2020-01-01", q.StartDate.Format("2006-01-02"))
	}
	if !q.StartDate.Before(q.EndDate) {
		return fmt.Errorf("end date %s not after start date %s",
			q.EndDate.Format("2006-01-02"), q.StartDate.Format("2006-01-02"))
	}
	for _, item := range q.Items {
		if _, ok := s.Items[item]; !ok {
			return fmt.Errorf("unknown item %d", item)
		}
	}
	if len(q.Departments) > 0 && len(q.Regions) > 0 {
		return fmt.Errorf("department and region filters are mutually exclusive")
	}

	countries, err := s.Feed.Countries(ctx)
	if err != nil {
		return fmt.Errorf("list feed countries: %w", err)
	}
	known := make(map[string]bool, len(countries))
	for _, c := range countries {
		known[c] = true
	}
	for _, c := range q.Countries {
		if !known[c] {
			return fmt.Errorf("unknown territory %q", c)
		}
	}

	if len(q.Departments) > 0 {
		ref, err := s.Spatial.Departments(ctx)
		if err != nil {
			return fmt.Errorf("list departments: %w", err)
		}
		if unknown := missing(q.Departments, ref); unknown != "" {
			return fmt.Errorf("unknown department %q", unknown)
		}
	}
	if len(q.Regions) > 0 {
		ref, err := s.Spatial.Regions(ctx)
		if err != nil {
			return fmt.Errorf("list regions: %w", err)
		}
		if unknown := missing(q.Regions, ref); unknown != "" {
			return fmt.Errorf("unknown region %q", unknown)
		}
	}
	return nil
}

func missing(want, ref []string) string {
	known := make(map[string]bool, len(ref))
	for _, r := range ref {
		known[r] = true
	}
	for _, w := range want {
		if !known[w] {
			return w
		}
	}
	return ""
}

// Collect runs the (country x source x item x class) filter grid against the
// feed, keeps issues unknown to the store, enriches them and persists those
// matching the spatial filter. Only false-positive feeds are persisted; other
// statuses are collected for export only.
func (s *Service) Collect(ctx context.Context, q Query) (Stats, []*domain.Issue, error) {
	var stats Stats
	var all []*domain.Issue
	var fresh []*domain.Issue
	seen := make(map[string]bool)

	for _, country := range q.Countries {
		for _, source := range q.Sources {
			for _, item := range q.Items {
				info := s.Items[item]
				for classID := range info.Classes {
					batch, err := s.Feed.Fetch(ctx, domain.FeedQuery{
						Limit:      q.Limit,
						Country:    country,
						Full:       true,
						Status:     q.Status,
						StartDate:  q.StartDate,
						EndDate:    q.EndDate,
						UseDevItem: q.UseDevItem,
						Source:     source,
						ClassID:    classID,
						ItemID:     item,
					})
					if err != nil {
						return stats, nil, fmt.Errorf("fetch country=%s item=%d class=%d: %w", country, item, classID, err)
					}
					log.Printf("phase=collect country=%s source=%s item=%d class=%d issues=%d",
						country, source, item, classID, len(batch))
					for _, iss := range batch {
						if seen[iss.Key] {
							continue
						}
						seen[iss.Key] = true
						s.decorate(iss, info)
						all = append(all, iss)
						known, err := s.Repo.Get(ctx, iss.Key)
						if err != nil {
							return stats, nil, fmt.Errorf("issue %s: lookup: %w", iss.Key, err)
						}
						if err := s.Pacer.Pace(ctx); err != nil {
							return stats, nil, err
						}
						if known == nil {
							fresh = append(fresh, iss)
						}
					}
				}
			}
		}
	}
	stats.Collected = len(all)
	stats.New = len(fresh)
	log.Printf("phase=collect collected=%d new=%d", stats.Collected, stats.New)

	// Detail pass: bounding box + feed date, false positives only.
	for _, iss := range fresh {
		if iss.FeedStatus != domain.FeedStatusFalse {
			continue
		}
		detail, err := s.Feed.FetchDetail(ctx, iss.Key)
		if err != nil {
			return stats, nil, fmt.Errorf("issue %s: detail: %w", iss.Key, err)
		}
		iss.Detail = detail
		if err := s.Pacer.Pace(ctx); err != nil {
			return stats, nil, err
		}
	}

	// Administrative enrichment drives the spatial filter.
	for _, iss := range fresh {
		if err := s.enrichAdmin(ctx, iss); err != nil {
			return stats, nil, err
		}
		if err := s.Pacer.Pace(ctx); err != nil {
			return stats, nil, err
		}
	}

	if q.Status != domain.FeedStatusFalse {
		log.Printf("phase=collect status=%s nothing to persist", q.Status)
		return stats, all, nil
	}

	for _, iss := range fresh {
		if !s.inFilter(iss, q) {
			log.Printf("phase=collect issue=%s outside spatial filter", iss.Key)
			continue
		}
		if err := s.enrichObject(ctx, iss); err != nil {
			return stats, nil, err
		}
		s.buildDescription(iss)
		if err := s.Repo.Save(ctx, iss); err != nil {
			return stats, nil, fmt.Errorf("issue %s: persist: %w", iss.Key, err)
		}
		stats.Persisted++
		if err := s.Pacer.Pace(ctx); err != nil {
			return stats, nil, err
		}
	}
	log.Printf("phase=collect persisted=%d", stats.Persisted)
	return stats, all, nil
}

// decorate fills catalog-derived fields the feed does not carry.
func (s *Service) decorate(iss *domain.Issue, info config.ItemInfo) {
	iss.Classification.ItemNameEN = info.NameEN
	iss.Classification.ItemNameFR = info.NameFR
	if titles, ok := info.Classes[iss.Classification.ClassID]; ok {
		iss.Classification.ClassNameEN = titles.TitleEN
		iss.Classification.ClassNameFR = titles.TitleFR
	}
	iss.Theme = info.Theme
	iss.RefClass = info.RefClass
}

func (s *Service) inFilter(iss *domain.Issue, q Query) bool {
	if len(q.Departments) == 0 && len(q.Regions) == 0 {
		return true
	}
	for _, dep := range q.Departments {
		if iss.Geography.DepartmentCode == dep {
			return true
		}
	}
	for _, reg := range q.Regions {
		if iss.Geography.RegionCode == reg {
			return true
		}
	}
	return false
}

func (s *Service) enrichAdmin(ctx context.Context, iss *domain.Issue) error {
	unit, err := s.Spatial.AdminUnit(ctx, iss.Lat, iss.Lon)
	if err != nil {
		return fmt.Errorf("issue %s: admin unit: %w", iss.Key, err)
	}
	if unit == nil {
		log.Printf("phase=collect issue=%s outside known territory", iss.Key)
		return nil
	}
	g := &iss.Geography
	g.CollectorZone = unit.CollectorZone
	g.CommuneCode = unit.CommuneCode
	g.CommuneName = unit.CommuneName
	g.CantonCode = unit.CantonCode
	g.ArrondissementCode = unit.ArrondissementCode
	g.ArrondissementName = unit.ArrondissementName
	g.CollectivityCode = unit.CollectivityCode
	g.CollectivityName = unit.CollectivityName
	g.DepartmentCode = unit.DepartmentCode
	g.DepartmentName = unit.DepartmentName
	g.RegionCode = unit.RegionCode
	g.RegionName = unit.RegionName
	return nil
}

func (s *Service) enrichObject(ctx context.Context, iss *domain.Issue) error {
	terr, err := s.Spatial.Territory(ctx, iss.Lat, iss.Lon)
	if err != nil {
		return fmt.Errorf("issue %s: territory: %w", iss.Key, err)
	}
	if terr != nil {
		iss.Geography.TerritoryName = terr.Name
		srid := terr.SRID
		iss.Geography.TerritorySRID = &srid
		x, y := terr.X, terr.Y
		iss.Geography.X = &x
		iss.Geography.Y = &y
	}

	obj, err := s.Spatial.Object(ctx, iss.Lat, iss.Lon, iss.Classification.ItemID)
	if err != nil {
		return fmt.Errorf("issue %s: ref object: %w", iss.Key, err)
	}
	if obj != nil {
		g := &iss.Geography
		g.ObjectID = obj.ID
		g.Attr1 = obj.Attr1
		g.Attr2 = obj.Attr2
		g.Attr3 = obj.Attr3
		g.Attr4 = obj.Attr4
		g.Attr5 = obj.Attr5
		g.ObjectModifiedAt = obj.ModifiedAt
	}
	return nil
}

// ResolveExclusions resolves the policy flag for every issue still in the
// unknown state. An undetermined membership stays unknown; the issue simply
// remains ineligible until a later pass resolves it.
func (s *Service) ResolveExclusions(ctx context.Context) (int, error) {
	pending, err := s.Repo.SelectExclusionUnknown(ctx)
	if err != nil {
		return 0, err
	}
	log.Printf("phase=exclusion pending=%d", len(pending))
	resolved := 0
	for _, iss := range pending {
		in, err := s.Spatial.InExclusionZone(ctx, iss.Lat, iss.Lon)
		if err != nil {
			return resolved, fmt.Errorf("issue %s: exclusion check: %w", iss.Key, err)
		}
		if in == nil {
			continue
		}
		if err := s.Repo.UpdateExclusion(ctx, iss.Key, *in); err != nil {
			return resolved, fmt.Errorf("issue %s: persist exclusion: %w", iss.Key, err)
		}
		resolved++
		if err := s.Pacer.Pace(ctx); err != nil {
			return resolved, err
		}
	}
	log.Printf("phase=exclusion resolved=%d", resolved)
	return resolved, nil
}
