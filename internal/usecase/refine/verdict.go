package refine

import "strings"

// verdict is the judge's parsed decision.
type verdict struct {
	approved bool
	reason   string
}

// parseVerdict classifies a judge response by prefix. The rule is uniform
// project-wide: case-insensitive match on "APPROVED" or "REFINE", optional
// colon, leading whitespace ignored. Anything that matches neither prefix
// approves the draft; an unparseable judge must not block delivery.
func parseVerdict(raw string) verdict {
	s := strings.TrimSpace(raw)
	upper := strings.ToUpper(s)
	switch {
	case strings.HasPrefix(upper, "REFINE"):
		return verdict{approved: false, reason: verdictReason(s, len("REFINE"))}
	case strings.HasPrefix(upper, "APPROVED"):
		return verdict{approved: true, reason: verdictReason(s, len("APPROVED"))}
	default:
		return verdict{approved: true, reason: s}
	}
}

func verdictReason(s string, prefixLen int) string {
	rest := s[prefixLen:]
	rest = strings.TrimLeft(rest, ": \t\r\n")
	return strings.TrimSpace(rest)
}
