package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/ignfab/osmoreport/internal/domain/issues"
)

// AdminUnit resolves the administrative chain for a WGS84 location. Returns
// nil when the point falls outside every known commune.
func (c *Client) AdminUnit(ctx context.Context, lat, lon float64) (*domain.AdminUnit, error) {
	const q = `
SELECT COALESCE(z.collecteur, 'Collecteur inconnu'),
       co.code_insee, co.nom_officiel,
       COALESCE(co.code_insee_du_canton, ''),
       COALESCE(co.code_insee_de_l_arrondissement, ''),
       COALESCE(a.nom_officiel, ''),
       COALESCE(co.code_insee_de_la_collectivite_terr, ''),
       COALESCE(ct.nom_officiel, ''),
       COALESCE(co.code_insee_du_departement, ''),
       COALESCE(d.nom_officiel, ''),
       COALESCE(d.code_insee_de_la_region, ''),
       COALESCE(re.nom_officiel, '')
FROM commune co
LEFT JOIN zone_de_collecte z
       ON ST_Intersects(z.geometrie, ST_SetSRID(ST_MakePoint($1, $2), 4326))
LEFT JOIN arrondissement a ON a.code_insee = co.code_insee_de_l_arrondissement
LEFT JOIN collectivite_territoriale ct ON ct.code_insee = co.code_insee_de_la_collectivite_terr
LEFT JOIN departement d ON d.code_insee = co.code_insee_du_departement
LEFT JOIN region re ON re.code_insee = d.code_insee_de_la_region
WHERE ST_Intersects(co.geometrie, ST_SetSRID(ST_MakePoint($1, $2), 4326))
LIMIT 1;`

	var u domain.AdminUnit
	err := c.db.QueryRowContext(ctx, q, lon, lat).Scan(
		&u.CollectorZone,
		&u.CommuneCode, &u.CommuneName,
		&u.CantonCode,
		&u.ArrondissementCode, &u.ArrondissementName,
		&u.CollectivityCode, &u.CollectivityName,
		&u.DepartmentCode, &u.DepartmentName,
		&u.RegionCode, &u.RegionName,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("admin unit lookup: %w", err)
	}
	return &u, nil
}

// Territory returns the legal projection for a location and the point
// reprojected into it, or nil outside every territory.
func (c *Client) Territory(ctx context.Context, lat, lon float64) (*domain.Territory, error) {
	const q = `
SELECT t.nom, t.srid,
       ST_X(ST_Transform(ST_SetSRID(ST_MakePoint($1, $2), 4326), t.srid)),
       ST_Y(ST_Transform(ST_SetSRID(ST_MakePoint($1, $2), 4326), t.srid))
FROM territoire t
WHERE ST_Intersects(t.geometrie, ST_SetSRID(ST_MakePoint($1, $2), 4326))
LIMIT 1;`

	var t domain.Territory
	err := c.db.QueryRowContext(ctx, q, lon, lat).Scan(&t.Name, &t.SRID, &t.X, &t.Y)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("territory lookup: %w", err)
	}
	return &t, nil
}

// objectSQL matches the nearest reference object of the item's class within
// 50m of the location. Attribute columns vary per class, hence the format
// verbs; column names come from the trusted catalog, never from user input.
const objectSQL = `
SELECT cleabs,
       COALESCE(%s::text, ''), COALESCE(%s::text, ''), COALESCE(%s::text, ''),
       COALESCE(%s::text, ''), COALESCE(%s::text, ''),
       gcms_date_modification
FROM %s
WHERE NOT gcms_detruit
  AND ST_DWithin(%s::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, 50)
ORDER BY ST_Distance(%s::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography)
LIMIT 1;`

// ObjectClassConfig names the table and columns queried per feed item.
type ObjectClassConfig struct {
	Table   string
	Attr1   string
	Attr2   string
	Attr3   string
	Attr4   string
	Attr5   string
	GeomCol string
}

// DefaultObjectClasses covers the road item; new feed items get an entry
// here when their reference class is decided.
var DefaultObjectClasses = map[int]ObjectClassConfig{
	7170: {
		Table:   "troncon_de_route",
		Attr1:   "nature",
		Attr2:   "nom_collaboratif_gauche",
		Attr3:   "importance",
		Attr4:   "nombre_de_voies",
		Attr5:   "acces_vehicule_leger",
		GeomCol: "geometrie",
	},
}

// SetObjectClasses overrides the per-item reference class table, typically
// from configuration at wiring time.
func (c *Client) SetObjectClasses(m map[int]ObjectClassConfig) {
	c.classes = m
}

// Object returns the reference object matched to the location for this feed
// item, or nil when nothing lies close enough.
func (c *Client) Object(ctx context.Context, lat, lon float64, itemID int) (*domain.RefObject, error) {
	classes := c.classes
	if classes == nil {
		classes = DefaultObjectClasses
	}
	cfg, ok := classes[itemID]
	if !ok {
		return nil, fmt.Errorf("no reference class configured for item %d", itemID)
	}
	q := fmt.Sprintf(objectSQL,
		cfg.Attr1, cfg.Attr2, cfg.Attr3, cfg.Attr4, cfg.Attr5,
		cfg.Table, cfg.GeomCol, cfg.GeomCol)

	var o domain.RefObject
	var modified sql.NullTime
	err := c.db.QueryRowContext(ctx, q, lon, lat).Scan(
		&o.ID, &o.Attr1, &o.Attr2, &o.Attr3, &o.Attr4, &o.Attr5, &modified,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("object lookup: %w", err)
	}
	if modified.Valid {
		o.ModifiedAt = &modified.Time
	}
	return &o, nil
}

// InExclusionZone checks policy-zone membership. nil means the check could
// not determine membership (point outside the zone index coverage).
func (c *Client) InExclusionZone(ctx context.Context, lat, lon float64) (*bool, error) {
	const q = `
SELECT bool_or(ST_Intersects(z.geometrie, ST_SetSRID(ST_MakePoint($1, $2), 4326)))
FROM zicad z;`

	var in sql.NullBool
	if err := c.db.QueryRowContext(ctx, q, lon, lat).Scan(&in); err != nil {
		return nil, fmt.Errorf("exclusion zone lookup: %w", err)
	}
	if !in.Valid {
		return nil, nil
	}
	return &in.Bool, nil
}

// Departments lists the INSEE department codes, state-service meaning.
func (c *Client) Departments(ctx context.Context) ([]string, error) {
	codes, err := c.listCodes(ctx, `SELECT code_insee FROM departement ORDER BY code_insee;`)
	if err != nil {
		return nil, err
	}
	// Saint-Barthélemy and Saint-Martin are handled as departments by the
	// state services but absent from the departement table.
	return append(codes, "977", "978"), nil
}

// Regions lists the INSEE region codes.
func (c *Client) Regions(ctx context.Context) ([]string, error) {
	return c.listCodes(ctx, `SELECT code_insee FROM region ORDER BY code_insee;`)
}

func (c *Client) listCodes(ctx context.Context, q string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}
