package refine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leadpilot/leadpilot/internal/domain"
	"github.com/leadpilot/leadpilot/internal/service/provider"
)

// EmailDraft is the structured artifact for outreach email generation.
type EmailDraft struct {
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Rationale string `json:"rationale"`
}

const emailSystemPrompt = `You are an outreach copywriter for B2B lead generation.
Respond with ONLY valid JSON matching {"subject": string, "body": string, "rationale": string}.
No explanations, reasoning, or markdown outside the JSON.`

const judgeSystemPrompt = `You are a strict reviewer of outreach emails.
Answer with exactly one line starting with either
APPROVED: <short reason>
or
REFINE: <specific, actionable reason>`

// EmailPromptSet builds the prompt set for subject/body/rationale artifacts.
func EmailPromptSet(maxAnalysisTokens, maxDraftTokens, maxJudgeTokens int) PromptSet[EmailDraft] {
	return PromptSet[EmailDraft]{
		AnalysisPrompts: func(in Input) []provider.Prompt {
			company := fmt.Sprintf(
				"Summarize in 3 factual sentences what this company does and why it might need outreach automation.\nCompany: %s\nWebsite: %s\nIndustry: %s\nNotes: %s",
				in.Lead.CompanyName, in.Lead.CompanyWebsite, in.Lead.Industry, in.Lead.Notes)
			contact := fmt.Sprintf(
				"In 2 sentences, suggest the most relevant angle to open a cold email to this person.\nName: %s\nRole: %s\nCompany: %s",
				in.Lead.ContactName, in.Lead.ContactRole, in.Lead.CompanyName)
			return []provider.Prompt{
				{System: "You are a concise business analyst.", User: company, MaxTokens: maxAnalysisTokens},
				{System: "You are a concise business analyst.", User: contact, MaxTokens: maxAnalysisTokens},
			}
		},
		DraftPrompt: func(in Input, analysis string) provider.Prompt {
			return provider.Prompt{
				System:    emailSystemPrompt,
				User:      draftInstructions(in, analysis),
				MaxTokens: maxDraftTokens,
			}
		},
		ParseDraft: ParseEmailDraft,
		JudgePrompt: func(in Input, draft EmailDraft) provider.Prompt {
			return provider.Prompt{
				System: judgeSystemPrompt,
				User: fmt.Sprintf(
					"Constraints: %s\n\nSubject: %s\n\nBody:\n%s",
					constraintText(in.Style), draft.Subject, draft.Body),
				MaxTokens: maxJudgeTokens,
			}
		},
		RefinePrompt: func(in Input, draft EmailDraft, reason string) provider.Prompt {
			current, _ := json.Marshal(draft)
			return provider.Prompt{
				System: emailSystemPrompt,
				User: fmt.Sprintf(
					"Revise the draft below. Reviewer feedback: %s\n\n%s\n\nCurrent draft:\n%s",
					reason, draftInstructions(in, ""), string(current)),
				MaxTokens: maxDraftTokens,
			}
		},
		Render: func(d EmailDraft) string {
			return fmt.Sprintf("Subject: %s\n\n%s", d.Subject, d.Body)
		},
	}
}

func draftInstructions(in Input, analysis string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a cold outreach email to %s (%s) at %s.\n", in.Lead.ContactName, in.Lead.ContactRole, in.Lead.CompanyName)
	fmt.Fprintf(&b, "Constraints: %s\n", constraintText(in.Style))
	if analysis != "" {
		fmt.Fprintf(&b, "\nContext:\n%s\n", analysis)
	}
	return b.String()
}

// constraintText renders the caller's style constraints for prompts. The
// link placeholder is a literal token the desktop app substitutes later; the
// model must reproduce it verbatim.
func constraintText(s domain.StyleConstraints) string {
	parts := make([]string, 0, 3)
	if s.Tone != "" {
		parts = append(parts, fmt.Sprintf("tone: %s", s.Tone))
	}
	if s.MaxWords > 0 {
		parts = append(parts, fmt.Sprintf("at most %d words", s.MaxWords))
	}
	if s.LinkPlaceholder != "" {
		parts = append(parts, fmt.Sprintf("include the placeholder %s exactly once, unmodified", s.LinkPlaceholder))
	}
	if len(parts) == 0 {
		return "professional tone"
	}
	return strings.Join(parts, "; ")
}

// ParseEmailDraft decodes the provider response into an EmailDraft,
// tolerating markdown code fences around the JSON. Empty subject or body is
// rejected; a partial draft upstream means "needs regeneration", not
// "deliver garbage".
func ParseEmailDraft(raw string) (EmailDraft, error) {
	var d EmailDraft
	cleaned := stripCodeFence(raw)
	if err := json.Unmarshal([]byte(cleaned), &d); err != nil {
		return EmailDraft{}, fmt.Errorf("op=refine.ParseEmailDraft: %w", err)
	}
	if strings.TrimSpace(d.Subject) == "" || strings.TrimSpace(d.Body) == "" {
		return EmailDraft{}, fmt.Errorf("op=refine.ParseEmailDraft: empty subject or body")
	}
	return d, nil
}

// stripCodeFence removes a surrounding ```json ... ``` fence if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
