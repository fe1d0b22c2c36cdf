package mysql

import (
	"context"
	"database/sql"

	"github.com/ignfab/osmoreport/internal/domain/runs"
)

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Insert creates the run row at workflow start.
func (r *RunRepository) Insert(ctx context.Context, run *runs.Run) error {
	const q = `
INSERT INTO workflow_runs
(id, parameters, started_at, collect_start, collect_end, details_added_at,
 ended_at, duration_seconds, collected_count, new_count, reported_count,
 artifact_url, exception_log)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?);`
	_, err := r.db.ExecContext(ctx, q,
		run.ID, run.Parameters, run.StartedAt,
		nullTime(run.CollectStart), nullTime(run.CollectEnd), nullTime(run.DetailsAddedAt),
		nullTime(run.EndedAt), nullRef(run.DurationSeconds),
		nullInt(run.CollectedCount), nullInt(run.NewCount), nullInt(run.ReportedCount),
		run.ArtifactURL, nullStr(run.ExceptionLog),
	)
	return err
}

// Update rewrites the mutable columns as phases complete.
func (r *RunRepository) Update(ctx context.Context, run *runs.Run) error {
	const q = `
UPDATE workflow_runs
SET collect_start=?, collect_end=?, details_added_at=?,
    ended_at=?, duration_seconds=?,
    collected_count=?, new_count=?, reported_count=?,
    artifact_url=?, exception_log=?
WHERE id=?;`
	_, err := r.db.ExecContext(ctx, q,
		nullTime(run.CollectStart), nullTime(run.CollectEnd), nullTime(run.DetailsAddedAt),
		nullTime(run.EndedAt), nullRef(run.DurationSeconds),
		nullInt(run.CollectedCount), nullInt(run.NewCount), nullInt(run.ReportedCount),
		run.ArtifactURL, nullStr(run.ExceptionLog),
		run.ID,
	)
	return err
}

// Latest runs, most recent first
func (r *RunRepository) Latest(ctx context.Context, limit int) ([]*runs.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, parameters, started_at, collect_start, collect_end, details_added_at,
       ended_at, duration_seconds, collected_count, new_count, reported_count,
       artifact_url, exception_log
FROM workflow_runs
ORDER BY started_at DESC LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*runs.Run
	for rows.Next() {
		var run runs.Run
		var collectStart, collectEnd, detailsAt, endedAt sql.NullTime
		var duration sql.NullInt64
		var collected, fresh, reported sql.NullInt64
		var exceptionLog sql.NullString
		if err := rows.Scan(
			&run.ID, &run.Parameters, &run.StartedAt,
			&collectStart, &collectEnd, &detailsAt,
			&endedAt, &duration,
			&collected, &fresh, &reported,
			&run.ArtifactURL, &exceptionLog,
		); err != nil {
			return nil, err
		}
		if collectStart.Valid {
			run.CollectStart = &collectStart.Time
		}
		if collectEnd.Valid {
			run.CollectEnd = &collectEnd.Time
		}
		if detailsAt.Valid {
			run.DetailsAddedAt = &detailsAt.Time
		}
		if endedAt.Valid {
			run.EndedAt = &endedAt.Time
		}
		if duration.Valid {
			run.DurationSeconds = &duration.Int64
		}
		if collected.Valid {
			v := int(collected.Int64)
			run.CollectedCount = &v
		}
		if fresh.Valid {
			v := int(fresh.Int64)
			run.NewCount = &v
		}
		if reported.Valid {
			v := int(reported.Int64)
			run.ReportedCount = &v
		}
		if exceptionLog.Valid {
			run.ExceptionLog = &exceptionLog.String
		}
		out = append(out, &run)
	}
	return out, rows.Err()
}
