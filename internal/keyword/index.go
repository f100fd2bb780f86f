// Package keyword provides an in-memory full-text index over conversation
// summaries, used for local conversation search.
package keyword

// Doc is the indexed view of a conversation summary.
type Doc struct {
	Title   string `json:"title"`
	Preview string `json:"preview"`
}

// SearchOptions are optional search parameters. Nil means defaults.
type SearchOptions struct {
	// TitleBoost multiplies matches in the title. Values <= 1 disable it.
	TitleBoost float64
	// Fuzzy enables typo-tolerant matching.
	Fuzzy bool
	// Fuzziness is the maximum edit distance when Fuzzy is set (default 1).
	Fuzziness int
}

// Result is a single search hit.
type Result struct {
	ID    string
	Score float64
}
