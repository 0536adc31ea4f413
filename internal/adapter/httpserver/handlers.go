package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/leadpilot/leadpilot/internal/config"
	"github.com/leadpilot/leadpilot/internal/domain"
	"github.com/leadpilot/leadpilot/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Generate   usecase.GenerateService
	Jobs       domain.JobRepository
	Artifacts  domain.ArtifactRepository
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
	KafkaCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, gen usecase.GenerateService, jobs domain.JobRepository, artifacts domain.ArtifactRepository, dbCheck, redisCheck, kafkaCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Generate: gen, Jobs: jobs, Artifacts: artifacts, DBCheck: dbCheck, RedisCheck: redisCheck, KafkaCheck: kafkaCheck}
}

var (
	vld     *validator.Validate
	vldOnce sync.Once
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

func acceptsJSON(w http.ResponseWriter, r *http.Request) bool {
	a := r.Header.Get("Accept")
	if a == "" || a == "*/*" || strings.Contains(a, "application/json") {
		return true
	}
	writeJSON(w, http.StatusNotAcceptable, errorEnvelope{Error: apiError{
		Code: "INVALID_ARGUMENT", Message: "not acceptable", Details: map[string]any{"accept": a},
	}})
	return false
}

type generateRequest struct {
	Provider       string `json:"provider"`
	CompanyName    string `json:"company_name" validate:"required,max=200"`
	CompanyWebsite string `json:"company_website" validate:"omitempty,max=500"`
	Industry       string `json:"industry" validate:"omitempty,max=200"`
	ContactName    string `json:"contact_name" validate:"omitempty,max=200"`
	ContactRole    string `json:"contact_role" validate:"omitempty,max=200"`
	Notes          string `json:"notes" validate:"omitempty,max=5000"`

	Tone            string `json:"tone" validate:"omitempty,max=100"`
	MaxWords        int    `json:"max_words" validate:"omitempty,gte=0,lte=2000"`
	LinkPlaceholder string `json:"link_placeholder" validate:"omitempty,max=200"`
}

// GenerateHandler enqueues an outreach email generation job.
func (s *Server) GenerateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		// Cap body size to prevent abuse
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			verrs := map[string]string{}
			if ve, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range ve {
					verrs[strings.ToLower(fe.Field())] = fe.Tag()
				}
			}
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
			return
		}
		prov := domain.Provider(req.Provider)
		if req.Provider == "" {
			prov = domain.Provider(s.Cfg.DefaultProvider)
		}
		lead := domain.LeadContext{
			CompanyName:    req.CompanyName,
			CompanyWebsite: req.CompanyWebsite,
			Industry:       req.Industry,
			ContactName:    req.ContactName,
			ContactRole:    req.ContactRole,
			Notes:          req.Notes,
		}
		style := domain.StyleConstraints{
			Tone:            req.Tone,
			MaxWords:        req.MaxWords,
			LinkPlaceholder: req.LinkPlaceholder,
		}
		jobID, err := s.Generate.Enqueue(r.Context(), prov, lead, style, r.Header.Get("Idempotency-Key"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": jobID, "status": string(domain.JobQueued)})
	}
}

type resultResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Result *artifactResult `json:"result,omitempty"`
}

type artifactResult struct {
	Subject         string `json:"subject"`
	Body            string `json:"body"`
	Rationale       string `json:"rationale,omitempty"`
	RefinementCount int    `json:"refinement_count"`
}

// ResultHandler returns job status and the generated email once completed.
func (s *Server) ResultHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, r, fmt.Errorf("%w: id missing", domain.ErrInvalidArgument), nil)
			return
		}
		ctx := r.Context()
		job, err := s.Jobs.Get(ctx, id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		resp := resultResponse{ID: job.ID, Status: string(job.Status), Error: job.Error}
		if job.Status == domain.JobCompleted {
			a, err := s.Artifacts.GetByJobID(ctx, job.ID)
			if err != nil {
				writeError(w, r, err, nil)
				return
			}
			resp.Result = &artifactResult{
				Subject:         a.Subject,
				Body:            a.Body,
				Rationale:       a.Rationale,
				RefinementCount: a.RefinementCount,
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HealthzHandler reports process liveness.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler probes the database, Redis and Kafka dependencies.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]usecase.ReadinessCheck, 0, 3)
		run := func(name string, probe func(context.Context) error) {
			if probe == nil {
				return
			}
			if err := probe(ctx); err != nil {
				checks = append(checks, usecase.ReadinessCheck{Name: name, OK: false, Details: err.Error()})
				return
			}
			checks = append(checks, usecase.ReadinessCheck{Name: name, OK: true})
		}
		run("db", s.DBCheck)
		run("redis", s.RedisCheck)
		run("kafka", s.KafkaCheck)
		st := http.StatusOK
		for _, c := range checks {
			if !c.OK {
				st = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
