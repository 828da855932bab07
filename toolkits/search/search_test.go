package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearch(t *testing.T) {
	got := Search("How is LLM used in Healthcare?")
	assert.Equal(t, []Result{{
		Snippet: "Clinician notes summarization can reduce documentation time but requires strict PHI handling.",
		Source:  "local:healthcare-llm-001",
	}}, got)

	got = Search("what drives inflation in the US")
	if assert.Len(t, got, 1) {
		assert.Equal(t, "local:macro-001", got[0].Source)
	}

	got = Search("renewable energy capacity growth")
	if assert.Len(t, got, 1) {
		assert.Equal(t, "local:energy-001", got[0].Source)
	}
}

func TestSearch_NoMatch(t *testing.T) {
	for _, q := range []string{"", "   ", "weather in paris", "llm"} {
		got := Search(q)
		assert.NotNil(t, got, q)
		assert.Empty(t, got, q)
	}
}

func TestSearch_DatasetOrder(t *testing.T) {
	got := Search("llm healthcare and inflation us")
	if assert.Len(t, got, 2) {
		assert.Equal(t, "local:healthcare-llm-001", got[0].Source)
		assert.Equal(t, "local:macro-001", got[1].Source)
	}
}
