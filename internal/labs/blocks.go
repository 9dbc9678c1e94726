package labs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rcliao/thyra/internal/model"
)

var (
	stepRe      = regexp.MustCompile(`(\S)(Step\s*\d+:)`)
	arrowFlagRe = regexp.MustCompile(`(?i)(->\s*(HIGH|LOW|NORMAL))(\S)`)
	blankRunRe  = regexp.MustCompile(`\n{3,}`)
)

// Sanitize cleans free text before it enters a prompt: normalized
// newlines, square brackets and backticks replaced (they collide with the
// structured markers used in prompts), blank runs compressed.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = stepRe.ReplaceAllString(s, "$1\n$2")
	s = arrowFlagRe.ReplaceAllString(s, "$1\n$3")
	s = strings.NewReplacer("[", "(", "]", ")", "`", "'").Replace(s)
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Truncate caps text at limit characters, noting how much was dropped.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + fmt.Sprintf("\n...(truncated %d chars)", len(s)-limit)
}

// LabBlock renders the case's raw lab values as the session-grouped text
// block embedded in every LLM prompt.
func LabBlock(c *model.CaseRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Patient ID: %s\n", c.SubjectID)
	b.WriteString("The following are multiple thyroid lab test sessions for the same patient.\n")
	for i, s := range Sessions(c) {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "\n### Test Session (%s)\n", s.Time)
		for _, m := range s.Results {
			if m.Unit != "" {
				fmt.Fprintf(&b, "- %s: %s %s (ref %s - %s)\n", m.RawName, m.ValueText, m.Unit, rangeText(m.Lower), rangeText(m.Upper))
			} else {
				fmt.Fprintf(&b, "- %s: %s (ref %s - %s)\n", m.RawName, m.ValueText, rangeText(m.Lower), rangeText(m.Upper))
			}
		}
	}
	return Sanitize(b.String())
}

// FlagBlock renders programmatic HIGH/LOW/NORMAL judgments per session,
// used when a prompt must not invite the model to re-derive numbers.
func FlagBlock(c *model.CaseRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Patient ID: %s\n", c.SubjectID)
	b.WriteString("Structured HIGH/LOW/NORMAL judgments per session.\n")
	for i, s := range Sessions(c) {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "\n### Session (%s)\n", s.Time)
		for _, m := range s.Results {
			fmt.Fprintf(&b, "%s: %s\n", m.RawName, m.Flag)
		}
	}
	return Sanitize(b.String())
}

func rangeText(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
