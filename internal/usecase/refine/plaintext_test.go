package refine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadpilot/leadpilot/internal/adapter/ai/stub"
	"github.com/leadpilot/leadpilot/internal/domain"
	"github.com/leadpilot/leadpilot/internal/service/provider"
	"github.com/leadpilot/leadpilot/internal/usecase/refine"
)

func TestTextPromptSetShapes(t *testing.T) {
	t.Parallel()
	ps := refine.TextPromptSet("short LinkedIn connection notes", 100, 300, 50)
	in := refine.Input{
		Lead:  domain.LeadContext{CompanyName: "Acme", ContactName: "Sam", ContactRole: "CTO"},
		Style: domain.StyleConstraints{Tone: "casual"},
	}

	analysis := ps.AnalysisPrompts(in)
	require.Len(t, analysis, 1)
	assert.Contains(t, analysis[0].User, "Acme")

	draft := ps.DraftPrompt(in, "ctx")
	assert.Contains(t, draft.System, "LinkedIn")
	assert.Contains(t, draft.User, "tone: casual")

	got, err := ps.ParseDraft("```\nShort note here.\n```")
	require.NoError(t, err)
	assert.Equal(t, "Short note here.", got)

	_, err = ps.ParseDraft("   ")
	require.Error(t, err)

	refined := ps.RefinePrompt(in, "Short note here.", "too generic")
	assert.Contains(t, refined.User, "too generic")
	assert.Equal(t, "as is", ps.Render("as is"))
}

func TestTextWorkflowRun(t *testing.T) {
	t.Parallel()
	exec := provider.New(domain.ProviderStub, stub.New(), []domain.Credential{{Secret: "stub"}},
		provider.WithMaxRetriesPerCombination(1),
		provider.WithBackoffUnit(time.Nanosecond))
	wf := refine.New(exec, refine.TextPromptSet("call openers", 100, 300, 50))

	res := wf.Run(context.Background(), refine.Input{
		Lead: domain.LeadContext{CompanyName: "Acme", ContactName: "Sam"},
	})
	require.True(t, res.Success, res.Error)
	assert.NotEmpty(t, res.Artifact)
	assert.Equal(t, 0, res.RefinementCount, "stub judge approves first pass")
}
