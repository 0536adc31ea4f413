package refine

import (
	"fmt"
	"strings"

	"github.com/leadpilot/leadpilot/internal/service/provider"
)

// TextPromptSet builds the prompt set for a free-text artifact (e.g. a
// LinkedIn note or call opener). Same state machine as the email flavor,
// different builders and a pass-through parser.
func TextPromptSet(purpose string, maxAnalysisTokens, maxDraftTokens, maxJudgeTokens int) PromptSet[string] {
	return PromptSet[string]{
		AnalysisPrompts: func(in Input) []provider.Prompt {
			return []provider.Prompt{{
				System: "You are a concise business analyst.",
				User: fmt.Sprintf(
					"Summarize in 3 factual sentences what this company does.\nCompany: %s\nWebsite: %s\nIndustry: %s\nNotes: %s",
					in.Lead.CompanyName, in.Lead.CompanyWebsite, in.Lead.Industry, in.Lead.Notes),
				MaxTokens: maxAnalysisTokens,
			}}
		},
		DraftPrompt: func(in Input, analysis string) provider.Prompt {
			return provider.Prompt{
				System: fmt.Sprintf("You write %s. Respond with the text only, no preamble.", purpose),
				User: fmt.Sprintf(
					"Write for %s (%s) at %s.\nConstraints: %s\n\nContext:\n%s",
					in.Lead.ContactName, in.Lead.ContactRole, in.Lead.CompanyName,
					constraintText(in.Style), analysis),
				MaxTokens: maxDraftTokens,
			}
		},
		ParseDraft: func(raw string) (string, error) {
			s := strings.TrimSpace(stripCodeFence(raw))
			if s == "" {
				return "", fmt.Errorf("op=refine.parseText: empty response")
			}
			return s, nil
		},
		JudgePrompt: func(in Input, draft string) provider.Prompt {
			return provider.Prompt{
				System: judgeSystemPrompt,
				User: fmt.Sprintf("Constraints: %s\n\nDraft:\n%s",
					constraintText(in.Style), draft),
				MaxTokens: maxJudgeTokens,
			}
		},
		RefinePrompt: func(in Input, draft string, reason string) provider.Prompt {
			return provider.Prompt{
				System: fmt.Sprintf("You write %s. Respond with the text only, no preamble.", purpose),
				User: fmt.Sprintf(
					"Revise the draft below. Reviewer feedback: %s\nConstraints: %s\n\nCurrent draft:\n%s",
					reason, constraintText(in.Style), draft),
				MaxTokens: maxDraftTokens,
			}
		},
		Render: func(s string) string { return s },
	}
}
