package runs

import "context"

// Repository port for run bookkeeping
type Repository interface {
	Insert(ctx context.Context, r *Run) error
	Update(ctx context.Context, r *Run) error
	Latest(ctx context.Context, limit int) ([]*Run, error)
}

// ArtifactStore port for run artifacts (CSV snapshots)
type ArtifactStore interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
	UploadAndCleanup(ctx context.Context, localPath, key string) (string, error)
}
