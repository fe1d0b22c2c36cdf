package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/ignfab/osmoreport/internal/application"
	domai "github.com/ignfab/osmoreport/internal/domain/ai"
	domain "github.com/ignfab/osmoreport/internal/domain/issues"
)

// clusterDisclosure is appended to the message of every cluster-owning
// report so collectors know the report covers an area, not a point.
const clusterDisclosure = "**Attention : ce signalement englobe une zone. " +
	"Vous pouvez trouver cette zone sur la géométrie affichée ci-contre.**"

// sketchZoom is the fixed zoom level embedded in cluster sketch payloads.
const sketchZoom = "17"

// Service implements the report correlation and emission use-cases.
// Emission is strictly sequential (cluster state is carried across
// iterations); status refresh has no cross-issue state.
type Service struct {
	Repo       domain.Repository
	Spatial    domain.SpatialService
	Reports    domain.ReportService
	Summarizer domai.Summarizer // optional, nil disables summaries
	Clock      application.Clock
	Pacer      application.Pacer
}

// Eligible returns the issues that are candidates for reporting: no report
// reference yet, policy-exclusion resolved to not-excluded.
func (s *Service) Eligible(ctx context.Context) ([]*domain.Issue, error) {
	return s.Repo.SelectEligible(ctx)
}

// Correlate sends the eligible batch to the spatial service and reattaches
// the returned cluster assignments onto the in-memory issues. The returned
// slice follows the response-row order (cluster-ordered, closest-to-centroid
// first within a cluster), which Emit depends on. Issues dropped by the
// spatial service are absent from the result.
func (s *Service) Correlate(ctx context.Context, eligible []*domain.Issue) ([]*domain.Issue, error) {
	if len(eligible) == 0 {
		return nil, nil
	}

	points := make([]domain.SpatialPoint, 0, len(eligible))
	for _, iss := range eligible {
		points = append(points, domain.SpatialPoint{
			Key:     iss.Key,
			Lat:     iss.Lat,
			Lon:     iss.Lon,
			ItemID:  iss.Classification.ItemID,
			ClassID: iss.Classification.ClassID,
			Attr1:   iss.Geography.Attr1,
		})
	}

	rows, err := s.Spatial.Clusterize(ctx, points)
	if err != nil {
		return nil, fmt.Errorf("clusterize batch of %d: %w", len(points), err)
	}

	byKey := make(map[string]*domain.Issue, len(eligible))
	for _, iss := range eligible {
		byKey[iss.Key] = iss
	}

	ordered := make([]*domain.Issue, 0, len(rows))
	seen := make(map[string]bool)
	var last *string
	for _, row := range rows {
		iss, ok := byKey[row.Key]
		if !ok {
			return nil, fmt.Errorf("issue %s: %w", row.Key, domain.ErrUnknownKey)
		}
		if row.ClusterKey != nil {
			// A cluster key reappearing after the run moved past it means
			// the service broke its ordering contract. Surface it, the
			// emission pass would otherwise open a duplicate report.
			if (last == nil || *last != *row.ClusterKey) && seen[*row.ClusterKey] {
				return nil, fmt.Errorf("cluster %s: %w", *row.ClusterKey, domain.ErrOrderingViolation)
			}
			seen[*row.ClusterKey] = true
			iss.ClusterKey = row.ClusterKey
			sketch, err := buildSketch(row)
			if err != nil {
				return nil, fmt.Errorf("issue %s: sketch: %w", iss.Key, err)
			}
			iss.Sketch = &sketch
		} else {
			iss.ClusterKey = nil
			iss.Sketch = nil
		}
		last = row.ClusterKey
		ordered = append(ordered, iss)
	}
	return ordered, nil
}

// sketch mirrors the annotation format the reporting service renders next
// to a report.
type sketch struct {
	Desc     string         `json:"desc"`
	Name     string         `json:"name"`
	Objects  []sketchObject `json:"objects"`
	Contexte sketchContext  `json:"contexte"`
}

type sketchObject struct {
	Type       string            `json:"type"`
	Geometry   string            `json:"geometry"`
	Attributes map[string]string `json:"attributes"`
}

type sketchContext struct {
	Lat  string `json:"lat"`
	Lon  string `json:"lon"`
	Zoom string `json:"zoom"`
}

func buildSketch(row domain.ClusterRow) (string, error) {
	var geom, clat, clon string
	if row.BoundingGeometry != nil {
		geom = *row.BoundingGeometry
	}
	if row.CentroidLat != nil {
		clat = fmt.Sprintf("%v", *row.CentroidLat)
	}
	if row.CentroidLon != nil {
		clon = fmt.Sprintf("%v", *row.CentroidLon)
	}
	b, err := json.Marshal(sketch{
		Desc: "Emprise du cluster",
		Name: "Emprise du cluster",
		Objects: []sketchObject{{
			Type:       "Polygone",
			Geometry:   geom,
			Attributes: map[string]string{},
		}},
		Contexte: sketchContext{Lat: clat, Lon: clon, Zoom: sketchZoom},
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EmitResult summarizes one emission pass.
type EmitResult struct {
	Eligible int
	Reported int // reports actually created (owners + standalones)
	Linked   int // issues attached to an existing cluster report
}

// Emit walks the cluster-ordered sequence once and decides, per issue,
// whether to create a report or attach the issue to the previous cluster's
// report. The carried accumulator (current cluster key + owning report id)
// is reset by every standalone issue. The first failure aborts the
// traversal; issues persisted earlier in the run keep their state.
func (s *Service) Emit(ctx context.Context, ordered []*domain.Issue, mode domain.ReportMode) (EmitResult, error) {
	res := EmitResult{Eligible: len(ordered)}
	if mode == domain.ModeSkip {
		return res, nil
	}

	runStamp := s.Clock.Now()
	modeStatus := string(mode)

	var curKey *string
	var curID int64

	for _, iss := range ordered {
		if iss.Description == "" {
			return res, fmt.Errorf("issue %s: %w", iss.Key, domain.ErrMissingDescription)
		}

		switch {
		case iss.ClusterKey == nil:
			// Standalone report. Never extends a cluster run.
			id, err := s.createReport(ctx, domain.ReportDraft{
				Lon:     iss.Lon,
				Lat:     iss.Lat,
				Message: iss.Description,
				Theme:   iss.Theme,
				Mode:    mode,
			})
			if err != nil {
				return res, fmt.Errorf("issue %s: %w", iss.Key, err)
			}
			if err := s.Repo.UpdateReport(ctx, iss.Key, id, &modeStatus, runStamp); err != nil {
				return res, fmt.Errorf("issue %s: persist report ref: %w", iss.Key, err)
			}
			iss.ReportRef = &id
			iss.ReportStatus = &modeStatus
			iss.StatusRefreshedAt = &runStamp
			curKey = nil
			curID = 0
			res.Reported++
			log.Printf("phase=emit issue=%s report=%d cluster=-", iss.Key, id)

		case curKey == nil || *curKey != *iss.ClusterKey:
			// First member seen for a new cluster: this issue owns the report.
			msg := iss.Description + "\n " + clusterDisclosure + "\n "
			msg = s.maybeSummarize(ctx, msg)
			id, err := s.createReport(ctx, domain.ReportDraft{
				Lon:     iss.Lon,
				Lat:     iss.Lat,
				Message: msg,
				Theme:   iss.Theme,
				Mode:    mode,
				Sketch:  iss.Sketch,
			})
			if err != nil {
				return res, fmt.Errorf("issue %s: %w", iss.Key, err)
			}
			if err := s.Repo.UpdateReport(ctx, iss.Key, id, &modeStatus, runStamp); err != nil {
				return res, fmt.Errorf("issue %s: persist report ref: %w", iss.Key, err)
			}
			iss.ReportRef = &id
			iss.ReportStatus = &modeStatus
			iss.StatusRefreshedAt = &runStamp
			curKey = iss.ClusterKey
			curID = id
			res.Reported++
			log.Printf("phase=emit issue=%s report=%d cluster=%s owner=true", iss.Key, id, *iss.ClusterKey)

		default:
			// Same cluster as the previous member: link, no remote call.
			// The sign is re-derived from the absolute value so an already
			// negative carried id cannot flip it back.
			ref := -abs(curID)
			if err := s.Repo.UpdateReport(ctx, iss.Key, ref, nil, runStamp); err != nil {
				return res, fmt.Errorf("issue %s: persist linkage: %w", iss.Key, err)
			}
			iss.ReportRef = &ref
			iss.ReportStatus = nil
			iss.StatusRefreshedAt = &runStamp
			res.Linked++
			log.Printf("phase=emit issue=%s report=%d cluster=%s owner=false", iss.Key, ref, *iss.ClusterKey)
		}
	}
	return res, nil
}

func (s *Service) createReport(ctx context.Context, d domain.ReportDraft) (int64, error) {
	if err := s.Pacer.Pace(ctx); err != nil {
		return 0, err
	}
	id, err := s.Reports.CreateReport(ctx, d)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("id=%d: %w", id, domain.ErrBadReportID)
	}
	return id, nil
}

func (s *Service) maybeSummarize(ctx context.Context, msg string) string {
	if s.Summarizer == nil {
		return msg
	}
	summary, err := s.Summarizer.Summarize(ctx, msg)
	if err != nil {
		// A missing summary never blocks a report.
		log.Printf("phase=emit summarize error: %v", err)
		return msg
	}
	return msg + "\n" + summary + "\n"
}

// RefreshStatuses polls the reporting service for every issue holding an
// unclosed report and persists status transitions. A lookup that returns no
// status leaves the issue untouched, timestamp included. Issues are
// independent units here; the loop never carries state across them.
func (s *Service) RefreshStatuses(ctx context.Context) (int, error) {
	list, err := s.Repo.SelectUnclosed(ctx, domain.UnclosedStatuses)
	if err != nil {
		return 0, err
	}
	log.Printf("phase=refresh candidates=%d", len(list))

	stamp := s.Clock.Now()
	refreshed := 0
	for _, iss := range list {
		if iss.ReportRef == nil {
			continue
		}
		if err := s.Pacer.Pace(ctx); err != nil {
			return refreshed, err
		}
		// Status is always looked up by the owning report id, never the
		// negated linkage id.
		status, err := s.Reports.GetStatus(ctx, abs(*iss.ReportRef))
		if err != nil {
			return refreshed, fmt.Errorf("issue %s: status lookup: %w", iss.Key, err)
		}
		if status == nil {
			continue
		}
		if err := s.Repo.UpdateStatus(ctx, iss.Key, *status, stamp); err != nil {
			return refreshed, fmt.Errorf("issue %s: persist status: %w", iss.Key, err)
		}
		refreshed++
	}
	return refreshed, nil
}

// Run chains eligibility, correlation and emission for one pass.
func (s *Service) Run(ctx context.Context, mode domain.ReportMode) (EmitResult, error) {
	eligible, err := s.Eligible(ctx)
	if err != nil {
		return EmitResult{}, fmt.Errorf("select eligible: %w", err)
	}
	log.Printf("phase=emit eligible=%d mode=%s", len(eligible), mode)
	if mode == domain.ModeSkip {
		return EmitResult{Eligible: len(eligible)}, nil
	}
	ordered, err := s.Correlate(ctx, eligible)
	if err != nil {
		return EmitResult{Eligible: len(eligible)}, err
	}
	return s.Emit(ctx, ordered, mode)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
