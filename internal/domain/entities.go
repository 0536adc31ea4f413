package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrAllExhausted      = errors.New("all credentials exhausted")
	ErrCancelled         = errors.New("cancelled")
	ErrInternal          = errors.New("internal error")
)

// Provider identifies an interchangeable LLM backend. The set is closed;
// each provider exposes a fixed catalog of model identifiers.
type Provider string

// Known providers.
const (
	ProviderOpenAI     Provider = "openai"
	ProviderGroq       Provider = "groq"
	ProviderOpenRouter Provider = "openrouter"
	ProviderStub       Provider = "stub"
)

// Valid reports whether p is one of the known providers.
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderGroq, ProviderOpenRouter, ProviderStub:
		return true
	}
	return false
}

// Credential is an opaque API secret plus optional owner metadata.
// The core never compares credentials by value, only by index.
type Credential struct {
	Secret   string
	OwnerID  string
	Metadata map[string]string
}

// LeadContext is the business/contact metadata a generation request is
// grounded on.
type LeadContext struct {
	CompanyName    string
	CompanyWebsite string
	Industry       string
	ContactName    string
	ContactRole    string
	Notes          string
}

// StyleConstraints are caller-supplied constraints the draft must honor.
type StyleConstraints struct {
	Tone            string
	MaxWords        int
	LinkPlaceholder string
}

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Job tracks one generation request through the queue.
type Job struct {
	ID        string
	Status    JobStatus
	Error     string
	Provider  Provider
	CreatedAt time.Time
	UpdatedAt time.Time
	IdemKey   *string
}

// EmailArtifact is the finished output of a generation job.
type EmailArtifact struct {
	JobID           string
	Subject         string
	Body            string
	Rationale       string
	RefinementCount int
	CreatedAt       time.Time
}

// GenerateTaskPayload is the queue message for one generation job.
type GenerateTaskPayload struct {
	JobID    string
	Provider Provider
	Lead     LeadContext
	Style    StyleConstraints
}

// Repositories (ports)

type JobRepository interface {
	Create(ctx Context, j Job) (string, error)
	UpdateStatus(ctx Context, id string, status JobStatus, errMsg *string) error
	Get(ctx Context, id string) (Job, error)
	FindByIdempotencyKey(ctx Context, key string) (Job, error)
}

type ArtifactRepository interface {
	Upsert(ctx Context, a EmailArtifact) error
	GetByJobID(ctx Context, jobID string) (EmailArtifact, error)
}

// Queue (port)

type Queue interface {
	EnqueueGenerate(ctx Context, payload GenerateTaskPayload) (string, error)
}

// ProviderInvoker (port)
//
// Invoke performs one chat completion against a provider with the given
// credential and model, returning the raw text. Implementations surface
// failures as errors carrying an HTTP-like status (see retryx) and enforce
// their own timeouts; the rotation executors add none of their own.
type ProviderInvoker interface {
	Invoke(ctx Context, cred Credential, model, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// Context is an alias to std context; kept so domain signatures read the
// same across adapters and usecases.
type Context = context.Context
