package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignfab/osmoreport/internal/application"
	"github.com/ignfab/osmoreport/internal/config"
	domai "github.com/ignfab/osmoreport/internal/domain/ai"
	domain "github.com/ignfab/osmoreport/internal/domain/issues"
	"github.com/ignfab/osmoreport/internal/domain/runs"
	aiopenai "github.com/ignfab/osmoreport/internal/infra/ai/openai"
	mysqlp "github.com/ignfab/osmoreport/internal/infra/db/mysql"
	"github.com/ignfab/osmoreport/internal/infra/feed/osmose"
	geopg "github.com/ignfab/osmoreport/internal/infra/geo/postgres"
	"github.com/ignfab/osmoreport/internal/infra/report/collab"
	minioStore "github.com/ignfab/osmoreport/internal/infra/storage"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "osmoreport",
	Short: "Reconcile anomaly feeds against the reference inventory and report them",
	Long: `osmoreport pulls anomaly records from the upstream feed, enriches them
from the reference geography, clusters spatially related anomalies and posts
reports to the collaborative space.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default $CONFIG_PATH or ./config.yaml)")
	rootCmd.AddCommand(runCmd, refreshCmd, exportCmd, serveCmd)
}

// deps is the wired dependency graph shared by the subcommands. Optional
// backends (artifact store, summarizer) stay nil when unconfigured.
type deps struct {
	cfg *config.Config

	issues  domain.Repository
	runs    runs.Repository
	feed    domain.Feed
	spatial domain.SpatialService
	reports domain.ReportService

	artifacts  runs.ArtifactStore
	summarizer domai.Summarizer

	clock application.Clock
	pacer application.Pacer

	db      *sql.DB
	geo     *geopg.Client
	closeDB func() error
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = "config.yaml"
		if v := os.Getenv("CONFIG_PATH"); v != "" {
			path = v
		}
	}
	return config.Load(path)
}

func wire(ctx context.Context) (*deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}

	geo, err := geopg.Connect(ctx, cfg.RefGeoDSN(), cfg.Run.ClusterDistanceM)
	if err != nil {
		db.Close()
		return nil, err
	}
	geo.SetObjectClasses(objectClasses(cfg.Items))

	d := &deps{
		cfg:     cfg,
		issues:  mysqlp.NewIssueRepository(db),
		runs:    mysqlp.NewRunRepository(db),
		feed:    osmose.NewClient(cfg.Feed.Endpoint, cfg.Feed.UserAgent, time.Duration(cfg.Feed.TimeoutS)*time.Second),
		spatial: geo,
		reports: collab.NewClient(cfg.Collab.Endpoint, cfg.Collab.Login, cfg.Collab.Password, cfg.Collab.Community, time.Duration(cfg.Collab.TimeoutS)*time.Second),
		clock:   application.SystemClock{},
		pacer:   application.FixedDelay{D: cfg.Pace()},
		db:      db,
		geo:     geo,
		closeDB: func() error {
			geo.Close()
			return db.Close()
		},
	}

	if cfg.Minio.Endpoint != "" {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			d.closeDB()
			return nil, err
		}
		d.artifacts = store
	}

	if cfg.OpenAI.APIKey != "" {
		d.summarizer = aiopenai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	}

	return d, nil
}

// objectClasses maps the catalog onto the reference-table configuration the
// spatial backend queries per item.
func objectClasses(items map[int]config.ItemInfo) map[int]geopg.ObjectClassConfig {
	out := make(map[int]geopg.ObjectClassConfig, len(items))
	for id, info := range items {
		if info.RefClass == "" {
			continue
		}
		out[id] = geopg.ObjectClassConfig{
			Table:   info.RefClass,
			Attr1:   info.Attrs["attribut_1"],
			Attr2:   info.Attrs["attribut_2"],
			Attr3:   info.Attrs["attribut_3"],
			Attr4:   info.Attrs["attribut_4"],
			Attr5:   info.Attrs["attribut_5"],
			GeomCol: info.Attrs["attribut_geometrie"],
		}
	}
	return out
}

func closeDeps(d *deps) {
	if err := d.closeDB(); err != nil {
		log.Printf("close stores: %v", err)
	}
}
