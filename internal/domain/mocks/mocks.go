// Package mocks provides testify mocks for the domain ports.
package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/leadpilot/leadpilot/internal/domain"
)

// MockJobRepository mocks domain.JobRepository.
type MockJobRepository struct{ mock.Mock }

func (m *MockJobRepository) Create(ctx domain.Context, j domain.Job) (string, error) {
	args := m.Called(ctx, j)
	return args.String(0), args.Error(1)
}

func (m *MockJobRepository) UpdateStatus(ctx domain.Context, id string, status domain.JobStatus, errMsg *string) error {
	args := m.Called(ctx, id, status, errMsg)
	return args.Error(0)
}

func (m *MockJobRepository) Get(ctx domain.Context, id string) (domain.Job, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Job), args.Error(1)
}

func (m *MockJobRepository) FindByIdempotencyKey(ctx domain.Context, key string) (domain.Job, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(domain.Job), args.Error(1)
}

// MockArtifactRepository mocks domain.ArtifactRepository.
type MockArtifactRepository struct{ mock.Mock }

func (m *MockArtifactRepository) Upsert(ctx domain.Context, a domain.EmailArtifact) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockArtifactRepository) GetByJobID(ctx domain.Context, jobID string) (domain.EmailArtifact, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(domain.EmailArtifact), args.Error(1)
}

// MockQueue mocks domain.Queue.
type MockQueue struct{ mock.Mock }

func (m *MockQueue) EnqueueGenerate(ctx domain.Context, payload domain.GenerateTaskPayload) (string, error) {
	args := m.Called(ctx, payload)
	return args.String(0), args.Error(1)
}

// MockProviderInvoker mocks domain.ProviderInvoker.
type MockProviderInvoker struct{ mock.Mock }

func (m *MockProviderInvoker) Invoke(ctx domain.Context, cred domain.Credential, model, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	args := m.Called(ctx, cred, model, systemPrompt, userPrompt, maxTokens)
	return args.String(0), args.Error(1)
}
