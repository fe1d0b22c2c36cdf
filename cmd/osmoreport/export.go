package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/ignfab/osmoreport/internal/application/export"
	domain "github.com/ignfab/osmoreport/internal/domain/issues"
)

var exportFlags struct {
	status string
	dir    string
	upload bool
	runID  string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a CSV snapshot of the collected issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		status := domain.FeedStatus(exportFlags.status)
		switch status {
		case domain.FeedStatusFalse, domain.FeedStatusDone, domain.FeedStatusOpen:
		default:
			return fmt.Errorf("invalid status %q (allowed: false, done, open)", exportFlags.status)
		}

		ctx := cmd.Context()
		d, err := wire(ctx)
		if err != nil {
			return err
		}
		defer closeDeps(d)

		svc := &export.Service{Repo: d.issues, Artifacts: d.artifacts, Clock: d.clock}
		if exportFlags.upload {
			if d.artifacts == nil {
				return fmt.Errorf("no artifact store configured")
			}
			url, err := svc.SnapshotAndUpload(ctx, status, exportFlags.dir, exportFlags.runID)
			if err != nil {
				return err
			}
			log.Printf("phase=export artifact=%s", url)
			return nil
		}

		path, err := svc.Snapshot(ctx, status, exportFlags.dir)
		if err != nil {
			return err
		}
		log.Printf("phase=export file=%s", path)
		return nil
	},
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportFlags.status, "status", "false", "feed status to export: false, done or open")
	f.StringVar(&exportFlags.dir, "dir", os.TempDir(), "directory for the CSV file")
	f.BoolVar(&exportFlags.upload, "upload", false, "ship the snapshot to the artifact store")
	f.StringVar(&exportFlags.runID, "run-id", "adhoc", "run id used in the artifact key")
}
