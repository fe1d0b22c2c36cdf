package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/ignfab/osmoreport/internal/application/reconcile"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Poll the reporting backend for unclosed report statuses",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		d, err := wire(ctx)
		if err != nil {
			return err
		}
		defer closeDeps(d)

		svc := &reconcile.Service{
			Repo:    d.issues,
			Spatial: d.spatial,
			Reports: d.reports,
			Clock:   d.clock,
			Pacer:   d.pacer,
		}
		refreshed, err := svc.RefreshStatuses(ctx)
		if err != nil {
			return err
		}
		log.Printf("phase=refresh refreshed=%d", refreshed)
		return nil
	},
}
