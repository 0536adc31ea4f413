// Package usecase contains application business logic services.
package usecase

import (
	"fmt"
	"time"

	"github.com/leadpilot/leadpilot/internal/domain"
	"github.com/leadpilot/leadpilot/internal/observability"
)

// GenerateService orchestrates job creation and queueing for generation.
type GenerateService struct {
	Jobs  domain.JobRepository
	Queue domain.Queue
}

// NewGenerateService constructs a GenerateService with its dependencies.
func NewGenerateService(j domain.JobRepository, q domain.Queue) GenerateService {
	return GenerateService{Jobs: j, Queue: q}
}

// Enqueue validates inputs, creates a job, and enqueues the generation task.
func (s GenerateService) Enqueue(ctx domain.Context, p domain.Provider, lead domain.LeadContext, style domain.StyleConstraints, idemKey string) (string, error) {
	if lead.CompanyName == "" {
		return "", fmt.Errorf("%w: company name required", domain.ErrInvalidArgument)
	}
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidArgument, p)
	}
	// Idempotency: if provided, try to find an existing job
	if idemKey != "" {
		if j, err := s.Jobs.FindByIdempotencyKey(ctx, idemKey); err == nil && j.ID != "" {
			return j.ID, nil
		}
	}
	j := domain.Job{Status: domain.JobQueued, Provider: p, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	if idemKey != "" {
		j.IdemKey = &idemKey
	}
	jobID, err := s.Jobs.Create(ctx, j)
	if err != nil {
		return "", err
	}
	payload := domain.GenerateTaskPayload{JobID: jobID, Provider: p, Lead: lead, Style: style}
	if _, err := s.Queue.EnqueueGenerate(ctx, payload); err != nil {
		_ = s.Jobs.UpdateStatus(ctx, jobID, domain.JobFailed, ptr("enqueue failed"))
		return "", err
	}
	observability.JobsEnqueuedTotal.WithLabelValues("generate").Inc()
	return jobID, nil
}

// ReadinessCheck represents a single readiness probe result used by handlers.
type ReadinessCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Details string `json:"details"`
}

func ptr(s string) *string { return &s }
