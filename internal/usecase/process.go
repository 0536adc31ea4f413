package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/leadpilot/leadpilot/internal/domain"
	"github.com/leadpilot/leadpilot/internal/observability"
	"github.com/leadpilot/leadpilot/internal/service/provider"
	"github.com/leadpilot/leadpilot/internal/usecase/refine"
)

// Executors resolves the rotation executor for a provider. Built once at
// worker start; the closed provider set makes a plain map sufficient.
type Executors map[domain.Provider]*provider.Executor

// ProcessService runs generation tasks on the worker side: it drives the
// refinement workflow and persists the outcome.
type ProcessService struct {
	Jobs      domain.JobRepository
	Artifacts domain.ArtifactRepository
	Execs     Executors
	Prompts   refine.PromptSet[refine.EmailDraft]
	// MaxRefinements caps the refine loop; 3 unless configured otherwise.
	MaxRefinements int
}

// NewProcessService constructs a ProcessService.
func NewProcessService(j domain.JobRepository, a domain.ArtifactRepository, execs Executors, prompts refine.PromptSet[refine.EmailDraft], maxRefinements int) ProcessService {
	if maxRefinements <= 0 {
		maxRefinements = 3
	}
	return ProcessService{Jobs: j, Artifacts: a, Execs: execs, Prompts: prompts, MaxRefinements: maxRefinements}
}

// Process handles one dequeued generation task end to end. Errors are
// recorded on the job; the returned error only signals the queue layer
// whether redelivery makes sense.
func (s ProcessService) Process(ctx domain.Context, payload domain.GenerateTaskPayload) error {
	tracer := otel.Tracer("usecase.process")
	ctx, span := tracer.Start(ctx, "process.Generate")
	defer span.End()

	log := slog.With(slog.String("job_id", payload.JobID), slog.String("provider", string(payload.Provider)))

	exec, ok := s.Execs[payload.Provider]
	if !ok {
		msg := fmt.Sprintf("no executor for provider %q", payload.Provider)
		_ = s.Jobs.UpdateStatus(ctx, payload.JobID, domain.JobFailed, &msg)
		observability.JobsFailedTotal.WithLabelValues("generate").Inc()
		return fmt.Errorf("op=process: %s: %w", msg, domain.ErrInvalidArgument)
	}

	if err := s.Jobs.UpdateStatus(ctx, payload.JobID, domain.JobProcessing, nil); err != nil {
		return fmt.Errorf("op=process: mark processing: %w", err)
	}

	sink := func(p refine.Progress) {
		log.Info("workflow progress",
			slog.String("status", string(p.Status)),
			slog.String("message", p.Message),
			slog.Int("refinements", p.RefinementCount))
	}
	wf := refine.New(exec, s.Prompts,
		refine.WithMaxRefinements[refine.EmailDraft](s.MaxRefinements),
		refine.WithSink[refine.EmailDraft](sink))

	result := wf.Run(ctx, refine.Input{Lead: payload.Lead, Style: payload.Style})
	if !result.Success {
		_ = s.Jobs.UpdateStatus(ctx, payload.JobID, domain.JobFailed, &result.Error)
		observability.JobsFailedTotal.WithLabelValues("generate").Inc()
		log.Error("generation failed", slog.String("error", result.Error))
		// Terminal for this delivery: the workflow already rotated through
		// every credential and model before giving up.
		return nil
	}

	artifact := domain.EmailArtifact{
		JobID:           payload.JobID,
		Subject:         result.Artifact.Subject,
		Body:            result.Artifact.Body,
		Rationale:       result.Artifact.Rationale,
		RefinementCount: result.RefinementCount,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.Artifacts.Upsert(ctx, artifact); err != nil {
		msg := "failed to store artifact"
		_ = s.Jobs.UpdateStatus(ctx, payload.JobID, domain.JobFailed, &msg)
		observability.JobsFailedTotal.WithLabelValues("generate").Inc()
		return fmt.Errorf("op=process: upsert artifact: %w", err)
	}
	if err := s.Jobs.UpdateStatus(ctx, payload.JobID, domain.JobCompleted, nil); err != nil {
		return fmt.Errorf("op=process: mark completed: %w", err)
	}
	observability.JobsCompletedTotal.WithLabelValues("generate").Inc()
	log.Info("generation completed", slog.Int("refinements", result.RefinementCount))
	return nil
}
