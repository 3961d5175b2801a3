package models

// SuggestionSource tells whether a suggestion came from the language
// model or from the local rule-based fallback.
type SuggestionSource string

const (
	SuggestionSourceModel    SuggestionSource = "model"
	SuggestionSourceFallback SuggestionSource = "fallback"
)

// Suggestion is ephemeral: computed fresh per request, never persisted.
type Suggestion struct {
	Suggestion string           `json:"suggestion"`
	Reasoning  string           `json:"reasoning"`
	Source     SuggestionSource `json:"source"`
}
