package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

// Client talks to the PostGIS-backed reference geography database. It
// implements domain.SpatialService: the clustering computation itself runs
// server-side (ST_ClusterDBSCAN); this client only shapes the input batch
// and preserves the response ordering.
type Client struct {
	db *sql.DB
	// epsMeters is the DBSCAN max distance between two cluster members.
	epsMeters int
	classes   map[int]ObjectClassConfig
}

func Connect(ctx context.Context, dsn string, epsMeters int) (*Client, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		return nil, err
	}
	if epsMeters <= 0 {
		epsMeters = 1000
	}
	return &Client{db: db, epsMeters: epsMeters}, nil
}

func (c *Client) Close() error { return c.db.Close() }

// DB exposes the handle for health checks.
func (c *Client) DB() *sql.DB { return c.db }
