package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/leadpilot/leadpilot/internal/domain"
	"github.com/leadpilot/leadpilot/internal/domain/mocks"
	"github.com/leadpilot/leadpilot/internal/usecase"
)

func lead() domain.LeadContext {
	return domain.LeadContext{CompanyName: "Acme", ContactName: "Sam"}
}

func TestEnqueueSuccess(t *testing.T) {
	t.Parallel()
	jobs := new(mocks.MockJobRepository)
	queue := new(mocks.MockQueue)
	jobs.On("Create", mock.Anything, mock.MatchedBy(func(j domain.Job) bool {
		return j.Status == domain.JobQueued && j.Provider == domain.ProviderOpenRouter
	})).Return("job-1", nil).Once()
	queue.On("EnqueueGenerate", mock.Anything, mock.MatchedBy(func(p domain.GenerateTaskPayload) bool {
		return p.JobID == "job-1" && p.Lead.CompanyName == "Acme"
	})).Return("job-1", nil).Once()

	svc := usecase.NewGenerateService(jobs, queue)
	id, err := svc.Enqueue(context.Background(), domain.ProviderOpenRouter, lead(), domain.StyleConstraints{}, "")
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	jobs.AssertExpectations(t)
	queue.AssertExpectations(t)
}

func TestEnqueueValidation(t *testing.T) {
	t.Parallel()
	svc := usecase.NewGenerateService(new(mocks.MockJobRepository), new(mocks.MockQueue))

	_, err := svc.Enqueue(context.Background(), domain.ProviderOpenRouter, domain.LeadContext{}, domain.StyleConstraints{}, "")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = svc.Enqueue(context.Background(), domain.Provider("anthropic"), lead(), domain.StyleConstraints{}, "")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestEnqueueIdempotency(t *testing.T) {
	t.Parallel()
	jobs := new(mocks.MockJobRepository)
	queue := new(mocks.MockQueue)
	jobs.On("FindByIdempotencyKey", mock.Anything, "idem-1").
		Return(domain.Job{ID: "existing"}, nil).Once()

	svc := usecase.NewGenerateService(jobs, queue)
	id, err := svc.Enqueue(context.Background(), domain.ProviderOpenAI, lead(), domain.StyleConstraints{}, "idem-1")
	require.NoError(t, err)
	assert.Equal(t, "existing", id)
	jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	queue.AssertNotCalled(t, "EnqueueGenerate", mock.Anything, mock.Anything)
}

func TestEnqueueQueueFailureMarksJobFailed(t *testing.T) {
	t.Parallel()
	jobs := new(mocks.MockJobRepository)
	queue := new(mocks.MockQueue)
	jobs.On("Create", mock.Anything, mock.Anything).Return("job-1", nil).Once()
	queue.On("EnqueueGenerate", mock.Anything, mock.Anything).
		Return("", errors.New("broker down")).Once()
	jobs.On("UpdateStatus", mock.Anything, "job-1", domain.JobFailed, mock.Anything).
		Return(nil).Once()

	svc := usecase.NewGenerateService(jobs, queue)
	_, err := svc.Enqueue(context.Background(), domain.ProviderGroq, lead(), domain.StyleConstraints{}, "")
	require.Error(t, err)
	jobs.AssertExpectations(t)
}
