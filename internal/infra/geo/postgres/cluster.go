package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	domain "github.com/ignfab/osmoreport/internal/domain/issues"
)

// clusterizeSQL feeds the batch in as JSON, partitions by (item, class,
// attr1), clusters each partition with ST_ClusterDBSCAN and derives the
// cluster key, envelope and centroid. The ORDER BY is the contract the
// correlation engine depends on: cluster key first, then distance to the
// cluster centroid, closest first. Standalone rows (NULL raw id) sort last.
const clusterizeSQL = `
WITH pts AS (
    SELECT r.key, r.lat, r.lon, r.item_id, r.class_id, COALESCE(r.attr1, '') AS attr1,
           ST_SetSRID(ST_MakePoint(r.lon, r.lat), 4326)::geometry AS geom
    FROM jsonb_to_recordset($1::jsonb)
         AS r(key text, lat double precision, lon double precision,
              item_id int, class_id int, attr1 text)
),
clustered AS (
    SELECT key, lat, lon, item_id, class_id, attr1, geom,
           ST_ClusterDBSCAN(ST_Transform(geom, 2154), eps := $2, minpoints := 2)
               OVER (PARTITION BY item_id, class_id, attr1) AS raw_cluster_id
    FROM pts
),
keyed AS (
    SELECT *,
           CASE WHEN raw_cluster_id IS NULL THEN NULL
                ELSE item_id::text || '-' || class_id::text || '-' || attr1 || '-' || raw_cluster_id::text
           END AS cluster_key
    FROM clustered
),
geoms AS (
    SELECT cluster_key,
           ST_AsText(ST_Envelope(ST_Collect(geom))) AS bounding_box,
           ST_Centroid(ST_Collect(geom)) AS centroid
    FROM keyed
    WHERE cluster_key IS NOT NULL
    GROUP BY cluster_key
)
SELECT k.key, k.cluster_key,
       g.bounding_box,
       ST_X(g.centroid) AS centroid_lon,
       ST_Y(g.centroid) AS centroid_lat
FROM keyed k
LEFT JOIN geoms g USING (cluster_key)
ORDER BY k.cluster_key NULLS LAST,
         ST_Distance(k.geom, g.centroid) NULLS LAST,
         k.key;`

// Clusterize runs the server-side DBSCAN over the batch. The response rows
// are returned in query order, untouched.
func (c *Client) Clusterize(ctx context.Context, points []domain.SpatialPoint) ([]domain.ClusterRow, error) {
	if len(points) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(points)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, clusterizeSQL, string(payload), c.epsMeters)
	if err != nil {
		return nil, fmt.Errorf("clusterize query: %w", err)
	}
	defer rows.Close()

	var out []domain.ClusterRow
	for rows.Next() {
		var row domain.ClusterRow
		var clusterKey, bbox sql.NullString
		var clon, clat sql.NullFloat64
		if err := rows.Scan(&row.Key, &clusterKey, &bbox, &clon, &clat); err != nil {
			return nil, err
		}
		if clusterKey.Valid {
			row.ClusterKey = &clusterKey.String
		}
		if bbox.Valid {
			row.BoundingGeometry = &bbox.String
		}
		if clon.Valid {
			row.CentroidLon = &clon.Float64
		}
		if clat.Valid {
			row.CentroidLat = &clat.Float64
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
