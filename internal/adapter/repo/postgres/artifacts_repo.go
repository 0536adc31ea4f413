package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/leadpilot/leadpilot/internal/domain"
)

// ArtifactRepo persists and loads generated email artifacts.
type ArtifactRepo struct{ Pool PgxPool }

// NewArtifactRepo constructs an ArtifactRepo with the given pool.
func NewArtifactRepo(p PgxPool) *ArtifactRepo { return &ArtifactRepo{Pool: p} }

// Upsert stores or replaces the artifact for a job.
func (r *ArtifactRepo) Upsert(ctx domain.Context, a domain.EmailArtifact) error {
	tracer := otel.Tracer("repo.artifacts")
	ctx, span := tracer.Start(ctx, "artifacts.Upsert")
	defer span.End()
	q := `INSERT INTO artifacts (job_id, subject, body, rationale, refinement_count, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6)
	      ON CONFLICT (job_id) DO UPDATE SET subject=EXCLUDED.subject, body=EXCLUDED.body, rationale=EXCLUDED.rationale, refinement_count=EXCLUDED.refinement_count`
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := r.Pool.Exec(ctx, q, a.JobID, a.Subject, a.Body, a.Rationale, a.RefinementCount, created)
	if err != nil {
		return fmt.Errorf("op=artifact.upsert: %w", err)
	}
	return nil
}

// GetByJobID loads the artifact for a job.
func (r *ArtifactRepo) GetByJobID(ctx domain.Context, jobID string) (domain.EmailArtifact, error) {
	tracer := otel.Tracer("repo.artifacts")
	ctx, span := tracer.Start(ctx, "artifacts.GetByJobID")
	defer span.End()
	q := `SELECT job_id, subject, body, rationale, refinement_count, created_at FROM artifacts WHERE job_id=$1`
	row := r.Pool.QueryRow(ctx, q, jobID)
	var a domain.EmailArtifact
	if err := row.Scan(&a.JobID, &a.Subject, &a.Body, &a.Rationale, &a.RefinementCount, &a.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.EmailArtifact{}, fmt.Errorf("op=artifact.get: %w", domain.ErrNotFound)
		}
		return domain.EmailArtifact{}, fmt.Errorf("op=artifact.get: %w", err)
	}
	return a, nil
}
