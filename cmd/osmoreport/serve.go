package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/ignfab/osmoreport/internal/infra/httpserver"
	"github.com/ignfab/osmoreport/internal/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only admin API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		d, err := wire(ctx)
		if err != nil {
			return err
		}
		defer closeDeps(d)

		checkers := map[string]middleware.HealthChecker{
			"store":  &middleware.DatabaseHealthChecker{DB: d.db},
			"refgeo": &middleware.DatabaseHealthChecker{DB: d.geo.DB()},
		}

		mux := chi.NewRouter()
		mux.Use(middleware.MetricsMiddleware)
		if len(d.cfg.Server.APIKeys) > 0 {
			mux.Use(middleware.APIKeyAuth(d.cfg.Server.APIKeys))
		}
		mux.Use(middleware.RateLimitMiddleware(100, 10))
		mux.Get("/metrics", middleware.MetricsHandler)
		mux.Mount("/", httpserver.NewRouter(d.issues, d.runs, checkers))

		addr := fmt.Sprintf(":%d", d.cfg.Server.Port)
		srv := &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			log.Printf("server listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("server error: %v", err)
			}
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Println("shutting down server...")

		ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx2)
	},
}
