package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ignfab/osmoreport/internal/application/export"
	"github.com/ignfab/osmoreport/internal/application/ingest"
	"github.com/ignfab/osmoreport/internal/application/reconcile"
	domain "github.com/ignfab/osmoreport/internal/domain/issues"
	"github.com/ignfab/osmoreport/internal/domain/runs"
	"github.com/ignfab/osmoreport/internal/middleware"
)

var runFlags struct {
	countries   []string
	sources     []string
	items       []int
	startDate   string
	endDate     string
	mode        string
	useDevItem  string
	departments []string
	regions     []string
	limit       int
	exportDir   string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one full workflow pass: collect, enrich, cluster, report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeRun(cmd.Context())
	},
}

func init() {
	f := runCmd.Flags()
	f.StringSliceVar(&runFlags.countries, "country", []string{"france"}, "feed territories to collect")
	f.StringSliceVar(&runFlags.sources, "source", nil, "feed source numbers")
	f.IntSliceVar(&runFlags.items, "item", []int{7170}, "feed items to collect")
	f.StringVar(&runFlags.startDate, "start-date", "", "collection window start (YYYY-MM-DD)")
	f.StringVar(&runFlags.endDate, "end-date", "", "collection window end (YYYY-MM-DD)")
	f.StringVar(&runFlags.mode, "mode", "skip", "report mode: skip, test, submit or repost")
	f.StringVar(&runFlags.useDevItem, "use-dev-item", "false", "query inactive feed items")
	f.StringSliceVar(&runFlags.departments, "department", nil, "keep issues in these INSEE departments")
	f.StringSliceVar(&runFlags.regions, "region", nil, "keep issues in these INSEE regions")
	f.IntVar(&runFlags.limit, "limit", 10000, "max issues per feed call")
	f.StringVar(&runFlags.exportDir, "export-dir", os.TempDir(), "directory for the CSV snapshot")
	runCmd.MarkFlagRequired("start-date")
	runCmd.MarkFlagRequired("end-date")
}

func parseRunQuery() (ingest.Query, domain.ReportMode, error) {
	var q ingest.Query

	if err := middleware.ValidateReportMode(runFlags.mode); err != nil {
		return q, "", err
	}
	start, err := middleware.ValidateDate(runFlags.startDate)
	if err != nil {
		return q, "", err
	}
	end, err := middleware.ValidateDate(runFlags.endDate)
	if err != nil {
		return q, "", err
	}
	for _, dep := range runFlags.departments {
		if err := middleware.ValidateDepartmentCode(dep); err != nil {
			return q, "", err
		}
	}
	for _, reg := range runFlags.regions {
		if err := middleware.ValidateRegionCode(reg); err != nil {
			return q, "", err
		}
	}

	q = ingest.Query{
		Countries:   runFlags.countries,
		Sources:     runFlags.sources,
		Items:       runFlags.items,
		Status:      domain.FeedStatusFalse,
		StartDate:   start,
		EndDate:     end,
		UseDevItem:  runFlags.useDevItem,
		Departments: runFlags.departments,
		Regions:     runFlags.regions,
		Limit:       runFlags.limit,
	}
	return q, domain.ReportMode(strings.ToLower(runFlags.mode)), nil
}

func executeRun(ctx context.Context) error {
	q, mode, err := parseRunQuery()
	if err != nil {
		return err
	}

	d, err := wire(ctx)
	if err != nil {
		return err
	}
	defer closeDeps(d)

	ingestSvc := &ingest.Service{
		Feed:    d.feed,
		Repo:    d.issues,
		Spatial: d.spatial,
		Items:   d.cfg.Items,
		Keyword: d.cfg.Run.ReportKeyword,
		Clock:   d.clock,
		Pacer:   d.pacer,
	}
	reconcileSvc := &reconcile.Service{
		Repo:       d.issues,
		Spatial:    d.spatial,
		Reports:    d.reports,
		Summarizer: d.summarizer,
		Clock:      d.clock,
		Pacer:      d.pacer,
	}
	exportSvc := &export.Service{
		Repo:      d.issues,
		Artifacts: d.artifacts,
		Clock:     d.clock,
	}

	params, _ := json.Marshal(map[string]any{
		"countries":   q.Countries,
		"sources":     q.Sources,
		"items":       q.Items,
		"start_date":  q.StartDate.Format("2006-01-02"),
		"end_date":    q.EndDate.Format("2006-01-02"),
		"mode":        mode,
		"departments": q.Departments,
		"regions":     q.Regions,
	})
	run := &runs.Run{
		ID:         uuid.NewString(),
		Parameters: string(params),
		StartedAt:  d.clock.Now(),
	}
	if err := d.runs.Insert(ctx, run); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	log.Printf("phase=start run=%s mode=%s", run.ID, mode)

	if err := workflow(ctx, d, run, q, mode, ingestSvc, reconcileSvc, exportSvc); err != nil {
		msg := err.Error()
		run.ExceptionLog = &msg
		run.MarkEnded(d.clock.Now())
		if uerr := d.runs.Update(ctx, run); uerr != nil {
			log.Printf("phase=end run=%s update error: %v", run.ID, uerr)
		}
		return err
	}

	run.MarkEnded(d.clock.Now())
	if err := d.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	log.Printf("phase=end run=%s duration=%ds", run.ID, *run.DurationSeconds)
	return nil
}

// workflow is the run body: every phase updates the bookkeeping row so an
// abort leaves a usable trace.
func workflow(ctx context.Context, d *deps, run *runs.Run, q ingest.Query, mode domain.ReportMode,
	ingestSvc *ingest.Service, reconcileSvc *reconcile.Service, exportSvc *export.Service) error {

	if err := ingestSvc.Validate(ctx, q); err != nil {
		return fmt.Errorf("validate query: %w", err)
	}

	collectStart := d.clock.Now()
	run.CollectStart = &collectStart
	stats, _, err := ingestSvc.Collect(ctx, q)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	collectEnd := d.clock.Now()
	run.CollectEnd = &collectEnd
	detailsAt := collectEnd
	run.DetailsAddedAt = &detailsAt
	run.CollectedCount = &stats.Collected
	run.NewCount = &stats.New
	if err := d.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("update run after collect: %w", err)
	}

	if _, err := ingestSvc.ResolveExclusions(ctx); err != nil {
		return fmt.Errorf("resolve exclusions: %w", err)
	}

	res, err := reconcileSvc.Run(ctx, mode)
	if err != nil {
		return fmt.Errorf("emit: %w", err)
	}
	reported := res.Reported
	run.ReportedCount = &reported
	log.Printf("phase=emit run=%s eligible=%d reported=%d linked=%d", run.ID, res.Eligible, res.Reported, res.Linked)
	if err := d.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("update run after emit: %w", err)
	}

	url, err := exportSvc.SnapshotAndUpload(ctx, domain.FeedStatusFalse, runFlags.exportDir, run.ID)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	run.ArtifactURL = url
	log.Printf("phase=export run=%s artifact=%s", run.ID, url)
	return nil
}
