package policy

import (
	"encoding/json"
	"regexp"
	"strings"
)

// urlTail matches the rest of a URL up to whitespace or markup delimiters.
const urlTail = "[^\\s<>\"{\\[\\]`]*"

// Labelled forms go first so the label is removed together with its URL.
var linkedInPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Company\s+LinkedIn:?\s*https?://` + urlTail),
	regexp.MustCompile(`(?i)LinkedIn\s+page:?\s*https?://` + urlTail),
	regexp.MustCompile(`(?i)LinkedIn:?\s*https?://` + urlTail),
	regexp.MustCompile(`(?i)https?://(?:www\.)?linkedin\.com/` + urlTail),
	regexp.MustCompile(`(?i)linkedin\.com/` + urlTail),
}

var (
	blankLinesPattern = regexp.MustCompile(`\n\s*\n\s*\n`)
	pipeTailPattern   = regexp.MustCompile(`\s*\|.*$`)
	multiSpacePattern = regexp.MustCompile(` {2,}`)
)

// StripLinkedIn removes LinkedIn URLs and labelled LinkedIn references,
// collapses runs of blank lines and trims the result. It is idempotent.
func StripLinkedIn(value string) string {
	current := value
	for range 8 {
		next := stripLinkedInOnce(current)
		if next == current {
			return next
		}
		current = next
	}
	return current
}

func stripLinkedInOnce(value string) string {
	for _, pattern := range linkedInPatterns {
		value = pattern.ReplaceAllString(value, "")
	}
	value = blankLinesPattern.ReplaceAllString(value, "\n\n")
	return strings.TrimSpace(value)
}

// StripLinkedInValue applies StripLinkedIn to every string inside a
// decoded JSON value. Maps and slices are copied, never modified in place.
func StripLinkedInValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		cloned := make(map[string]any, len(typed))
		for key, child := range typed {
			cloned[key] = StripLinkedInValue(child)
		}
		return cloned
	case []any:
		cloned := make([]any, 0, len(typed))
		for _, child := range typed {
			cloned = append(cloned, StripLinkedInValue(child))
		}
		return cloned
	case string:
		return StripLinkedIn(typed)
	default:
		return value
	}
}

// StripLinkedInJSON cleans every string in a JSON document. Payloads that
// are not valid JSON are cleaned as plain text.
func StripLinkedInJSON(payload json.RawMessage) json.RawMessage {
	if strings.TrimSpace(string(payload)) == "" {
		return append(json.RawMessage(nil), payload...)
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return json.RawMessage(StripLinkedIn(string(payload)))
	}

	encoded, err := json.Marshal(StripLinkedInValue(decoded))
	if err != nil {
		return append(json.RawMessage(nil), payload...)
	}
	return encoded
}

// CleanCompanyName prepares a company name for headers: LinkedIn
// references and anything after a pipe are dropped and repeated spaces
// collapsed.
func CleanCompanyName(name string) string {
	name = StripLinkedIn(name)
	name = pipeTailPattern.ReplaceAllString(name, "")
	name = multiSpacePattern.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}
