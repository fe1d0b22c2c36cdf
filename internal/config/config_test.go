package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  port: 8080
  apiKeys: ["k1"]
database:
  host: db
  port: 3306
  user: osmoreport
  password: pw
  name: issues
refgeo:
  host: geo
  port: 5432
  user: ro
  password: pw2
  name: bduni
feed:
  userAgent: "test-agent"
collab:
  endpoint: https://espacecollaboratif.example/gcms/api/reports
  login: robot
  password: pw3
  community: 12
run:
  paceMillis: 250
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"k1"}, cfg.Server.APIKeys)
	assert.Equal(t, "test-agent", cfg.Feed.UserAgent)
	assert.Equal(t, 12, cfg.Collab.Community)
	assert.Equal(t, 250*time.Millisecond, cfg.Pace())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t))
	require.NoError(t, err)

	assert.Equal(t, "ROBOT_OSMOREPORT", cfg.Run.ReportKeyword)
	assert.Equal(t, 1000, cfg.Run.ClusterDistanceM)
	assert.Equal(t, "https://osmose.openstreetmap.fr/api/0.3", cfg.Feed.Endpoint)
	assert.Equal(t, "require", cfg.RefGeo.SSLMode)

	// Catalog defaults cover the road item.
	info, ok := cfg.Items[7170]
	require.True(t, ok)
	assert.Equal(t, "troncon_de_route", info.RefClass)
	assert.NotEmpty(t, info.Classes)
}

func TestDSNs(t *testing.T) {
	cfg, err := Load(writeConfig(t))
	require.NoError(t, err)

	assert.Equal(t,
		"osmoreport:pw@tcp(db:3306)/issues?parseTime=true&charset=utf8mb4&loc=UTC",
		cfg.MySQLDSN())
	assert.Equal(t,
		"host=geo port=5432 user=ro password=pw2 dbname=bduni sslmode=require",
		cfg.RefGeoDSN())
}
