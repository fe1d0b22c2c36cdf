package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port    int      `yaml:"port"`
		APIKeys []string `yaml:"apiKeys"`
	} `yaml:"server"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	// RefGeo is the PostGIS-backed reference geography database used for
	// clustering, administrative lookups and exclusion-zone checks.
	RefGeo struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"refgeo"`

	Feed struct {
		Endpoint  string `yaml:"endpoint"`
		UserAgent string `yaml:"userAgent"`
		TimeoutS  int    `yaml:"timeoutSeconds"`
	} `yaml:"feed"`

	Collab struct {
		Endpoint  string `yaml:"endpoint"`
		Login     string `yaml:"login"`
		Password  string `yaml:"password"`
		Community int    `yaml:"community"`
		TimeoutS  int    `yaml:"timeoutSeconds"`
	} `yaml:"collab"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`

	Run struct {
		PaceMillis    int    `yaml:"paceMillis"`
		ReportKeyword string `yaml:"reportKeyword"`
		// ClusterDistanceM is the DBSCAN eps in meters.
		ClusterDistanceM int `yaml:"clusterDistanceMeters"`
	} `yaml:"run"`

	// Items maps feed item ids to their classification catalog entries.
	// When empty, DefaultCatalog applies.
	Items map[int]ItemInfo `yaml:"items"`
}

// ItemInfo describes one feed item: display names, its class titles, the
// report theme and the reference-inventory class + attribute columns used
// for enrichment.
type ItemInfo struct {
	NameEN   string              `yaml:"nameEN"`
	NameFR   string              `yaml:"nameFR"`
	Classes  map[int]ClassTitles `yaml:"classes"`
	Theme    string              `yaml:"theme"`
	RefClass string              `yaml:"refClass"`
	Attrs    map[string]string   `yaml:"attrs"`
}

type ClassTitles struct {
	TitleFR string `yaml:"titleFR"`
	TitleEN string `yaml:"titleEN"`
}

// DefaultCatalog covers the road item the program was built around.
var DefaultCatalog = map[int]ItemInfo{
	7170: {
		NameEN: "road",
		NameFR: "route",
		Classes: map[int]ClassTitles{
			1:  {TitleFR: "OSM ne constate pas de route à cet endroit", TitleEN: "possibly missing highway in the area"},
			3:  {TitleFR: "OSM ne constate pas de route à cet endroit", TitleEN: "missing ref=* or misaligned road"},
			4:  {TitleFR: "OSM ne constate pas le même type de route", TitleEN: "misaligned road or bad highway=* type"},
			13: {TitleFR: "OSM ne constate pas de route à cet endroit", TitleEN: "road not integrated"},
			20: {TitleFR: "OSM ne constate pas le même nombre de voies", TitleEN: "lanes=* missing on highway with more than 2 lanes"},
		},
		Theme:    "Route",
		RefClass: "troncon_de_route",
		Attrs: map[string]string{
			"attribut_1":         "nom_collaboratif_gauche",
			"attribut_2":         "nature",
			"attribut_3":         "nombre_de_voies",
			"attribut_4":         "importance",
			"attribut_5":         "importance",
			"attribut_geometrie": "geometrie",
		},
	},
}

// Load reads the YAML config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Items == nil {
		c.Items = DefaultCatalog
	}
	if c.Run.PaceMillis == 0 {
		c.Run.PaceMillis = 1000
	}
	if c.Run.ReportKeyword == "" {
		c.Run.ReportKeyword = "ROBOT_OSMOREPORT"
	}
	if c.Run.ClusterDistanceM == 0 {
		c.Run.ClusterDistanceM = 1000
	}
	if c.Feed.Endpoint == "" {
		c.Feed.Endpoint = "https://osmose.openstreetmap.fr/api/0.3"
	}
	if c.Feed.UserAgent == "" {
		c.Feed.UserAgent = "IGNF/osmoreport/1.0"
	}
	if c.Feed.TimeoutS == 0 {
		c.Feed.TimeoutS = 15
	}
	if c.Collab.TimeoutS == 0 {
		c.Collab.TimeoutS = 15
	}
	if c.RefGeo.SSLMode == "" {
		c.RefGeo.SSLMode = "require"
	}
}

// Pace returns the configured inter-call delay.
func (c *Config) Pace() time.Duration {
	return time.Duration(c.Run.PaceMillis) * time.Millisecond
}

// MySQLDSN helper to build the durable-store DSN
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// RefGeoDSN helper to build the reference-geography DSN
func (c *Config) RefGeoDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.RefGeo.Host,
		c.RefGeo.Port,
		c.RefGeo.User,
		c.RefGeo.Password,
		c.RefGeo.Name,
		c.RefGeo.SSLMode,
	)
}
