// Package search is a deterministic stub search over a small local dataset.
package search

import "strings"

// Name and Description identify the tool when it is registered.
const (
	Name        = "search"
	Description = "Deterministic stub search over a small local dataset."
)

// Result is one matching snippet and the source it came from.
type Result struct {
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// Args is the tool input.
type Args struct {
	Query string `json:"query" jsonschema_description:"Free-text query matched against the local knowledge base"`
}

// Output is the tool result.
type Output struct {
	Results []Result `json:"results"`
}

type entry struct {
	keywords []string
	result   Result
}

var dataset = []entry{
	{
		keywords: []string{"llm", "healthcare"},
		result: Result{
			Snippet: "Clinician notes summarization can reduce documentation time but requires strict PHI handling.",
			Source:  "local:healthcare-llm-001",
		},
	},
	{
		keywords: []string{"inflation", "us"},
		result: Result{
			Snippet: "Inflation is measured by CPI and PCE; both track price changes over time.",
			Source:  "local:macro-001",
		},
	},
	{
		keywords: []string{"renewable", "energy", "capacity"},
		result: Result{
			Snippet: "Global renewable capacity has grown rapidly in recent years, led by solar and wind.",
			Source:  "local:energy-001",
		},
	},
}

// Search returns every dataset entry whose keywords all occur in the lower-cased
// query, in dataset order. A blank query matches nothing. The result is never nil.
func Search(query string) []Result {
	results := []Result{}
	if strings.TrimSpace(query) == "" {
		return results
	}
	q := strings.ToLower(query)
	for _, e := range dataset {
		if matches(q, e.keywords) {
			results = append(results, e.result)
		}
	}
	return results
}

func matches(query string, keywords []string) bool {
	for _, k := range keywords {
		if !strings.Contains(query, k) {
			return false
		}
	}
	return true
}
