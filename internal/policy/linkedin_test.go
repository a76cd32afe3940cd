package policy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripLinkedInRemovesURLsAndLabels(t *testing.T) {
	cases := map[string]struct {
		input string
		want  string
	}{
		"scheme url":     {"See https://www.linkedin.com/company/acme for more", "See  for more"},
		"bare url":       {"Profile: linkedin.com/in/jane-doe.", "Profile:"},
		"case":           {"HTTPS://LinkedIn.com/company/acme", ""},
		"labelled":       {"LinkedIn: https://lnkd.in/abc", ""},
		"page label":     {"Visit LinkedIn page: https://lnkd.in/abc today", "Visit  today"},
		"company label":  {"Company LinkedIn https://www.linkedin.com/company/x", ""},
		"untouched":      {"Market grows at 12% CAGR", "Market grows at 12% CAGR"},
		"stops at quote": {`href="https://linkedin.com/company/a"`, `href=""`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, StripLinkedIn(tc.input))
		})
	}
}

func TestStripLinkedInCollapsesBlankLines(t *testing.T) {
	input := "Intro\n\nhttps://linkedin.com/company/acme\n\n\nNext\n \n \n\nEnd\n"

	assert.Equal(t, "Intro\n\nNext\n\nEnd", StripLinkedIn(input))
}

func TestStripLinkedInIsIdempotent(t *testing.T) {
	inputs := []string{
		"A\n\nlinkedin.com/x\n\n\n\nB",
		"LinkedIn: https://linkedin.com/company/acme\n\n\n\nLinkedIn page: http://x.y",
		"  padded text  ",
		"",
	}
	for _, input := range inputs {
		once := StripLinkedIn(input)
		assert.Equal(t, once, StripLinkedIn(once), input)
	}
}

func TestStripLinkedInValueWalksNestedValues(t *testing.T) {
	var decoded any
	require.NoError(t, json.Unmarshal([]byte(`{
		"summary":"Acme https://linkedin.com/company/acme grows",
		"items":[{"note":"linkedin.com/in/ceo"},42,true],
		"size":12.5
	}`), &decoded))

	cleaned := StripLinkedInValue(decoded).(map[string]any)

	assert.Equal(t, "Acme  grows", cleaned["summary"])
	assert.Equal(t, "", cleaned["items"].([]any)[0].(map[string]any)["note"])
	assert.Equal(t, 42.0, cleaned["items"].([]any)[1])
	assert.Equal(t, 12.5, cleaned["size"])
	assert.Contains(t, decoded.(map[string]any)["summary"], "linkedin.com")
}

func TestStripLinkedInJSONFallsBackToText(t *testing.T) {
	assert.JSONEq(t, `{"a":"x"}`, string(StripLinkedInJSON(json.RawMessage(`{"a":"x linkedin.com/in/y"}`))))
	assert.Equal(t, "not json", string(StripLinkedInJSON(json.RawMessage("not json linkedin.com/in/y"))))
}

func TestCleanCompanyName(t *testing.T) {
	assert.Equal(t, "Acme Corp", CleanCompanyName("Acme   Corp | https://www.linkedin.com/company/acme"))
	assert.Equal(t, "Acme", CleanCompanyName("Acme|extra"))
	assert.Equal(t, "Beta Labs", CleanCompanyName("Beta Labs"))
}
