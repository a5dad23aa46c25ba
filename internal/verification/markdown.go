package verification

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *VerificationReport, generatedAt time.Time) string {
	var sb strings.Builder

	sb.WriteString("# Journal Verification Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", generatedAt.UTC().Format(time.RFC3339)))

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Markets | %d |\n", r.TotalMarkets))
	sb.WriteString(fmt.Sprintf("| Matched | %d |\n", r.MatchedMarkets))
	sb.WriteString(fmt.Sprintf("| Divergent | %d |\n", r.DivergentMarkets))
	sb.WriteString(fmt.Sprintf("| Events Replayed | %d |\n", r.TotalEvents))
	sb.WriteString("\n")

	sb.WriteString("## Markets\n\n")
	if len(r.Results) == 0 {
		sb.WriteString("No markets stored.\n")
		return sb.String()
	}
	sb.WriteString("| Market ID | Address | Events | Status |\n")
	sb.WriteString("|-----------|---------|--------|--------|\n")
	for _, res := range r.Results {
		status := "DIVERGENT"
		if res.Match {
			status = "MATCH"
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %d | %s |\n", res.MarketID, res.Market, res.Events, status))
	}
	sb.WriteString("\n")

	if r.DivergentMarkets == 0 {
		sb.WriteString("**All markets match their journal.**\n")
		return sb.String()
	}

	sb.WriteString("## Divergences\n\n")
	for _, res := range r.Results {
		if res.Match {
			continue
		}
		sb.WriteString(fmt.Sprintf("### %s\n\n", res.MarketID))
		sb.WriteString("| Field | Stored | Replayed |\n")
		sb.WriteString("|-------|--------|----------|\n")
		for _, d := range res.Divergences {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n", d.Field, show(d.Expected), show(d.Actual)))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// show prints pointers by value so optional fields read naturally.
func show(v interface{}) string {
	switch p := v.(type) {
	case nil:
		return "-"
	case *bool:
		if p == nil {
			return "-"
		}
		return fmt.Sprint(*p)
	case *int64:
		if p == nil {
			return "-"
		}
		return fmt.Sprint(*p)
	}
	return fmt.Sprint(v)
}
