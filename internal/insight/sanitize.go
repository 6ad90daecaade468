package insight

import (
	"log"
	"os"
	"regexp"
	"strings"

	"github.com/kinloop/kinloop/internal/stats"
)

var (
	uuidPattern = regexp.MustCompile(
		`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	childIDPhrasePattern = regexp.MustCompile(`(?i)child ID\s*:?\s*([0-9a-fA-F][0-9a-fA-F-]{5,})`)
	extraSpacePattern    = regexp.MustCompile(`[ \t]{2,}`)
	spaceBeforePunct     = regexp.MustCompile(`\s+([.,;:!?])`)
)

// Placeholder phrases upstream generators emit when they had nothing to say.
var placeholderPhrases = []string{
	"no specific behavior data",
	"no data available",
}

// Sanitize removes internal identifiers from free text before it reaches an
// end user. "child ID <token>" phrases and standalone UUID tokens become the
// resolved child's display name; unresolvable phrases become "this child" and
// unresolvable UUIDs are deleted outright.
func Sanitize(text string, roster []stats.ChildSummary) string {
	names := make(map[string]string, len(roster))
	for _, c := range roster {
		names[strings.ToLower(c.ID)] = c.Name
	}

	out := childIDPhrasePattern.ReplaceAllStringFunc(text, func(m string) string {
		token := childIDPhrasePattern.FindStringSubmatch(m)[1]
		if name, ok := names[strings.ToLower(token)]; ok && name != "" {
			return name
		}
		return "this child"
	})

	out = uuidPattern.ReplaceAllStringFunc(out, func(token string) string {
		if name, ok := names[strings.ToLower(token)]; ok && name != "" {
			return name
		}
		return ""
	})

	out = extraSpacePattern.ReplaceAllString(out, " ")
	out = spaceBeforePunct.ReplaceAllString(out, "$1")
	out = strings.TrimSpace(out)

	if uuidPattern.MatchString(out) && !isProduction() {
		log.Printf("sanitizer: identifier survived cleanup: %q", out)
	}
	return out
}

// NeedsSanitization reports whether text still carries an identifier pattern
// or a known placeholder phrase, so the caller can substitute safe boilerplate
// instead of shipping a half-cleaned string.
func NeedsSanitization(text string) bool {
	if uuidPattern.MatchString(text) {
		return true
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "child id") {
		return true
	}
	for _, phrase := range placeholderPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// NeedsSanitizationAny checks every text field of an insight.
func NeedsSanitizationAny(ins Insight) bool {
	for _, field := range []string{
		ins.Title, ins.Observation, ins.Diagnosis,
		ins.Recommendation, ins.ExpectedResult, ins.NextCheck,
	} {
		if NeedsSanitization(field) {
			return true
		}
	}
	return false
}

func isProduction() bool {
	return os.Getenv("APP_ENV") == "production"
}
