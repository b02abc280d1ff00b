package model

import "time"

// ResultKind tags a SubmissionResult variant.
type ResultKind string

const (
	ResultNavigateToSummary ResultKind = "navigate_to_summary"
	ResultNavigateToLoading ResultKind = "navigate_to_loading"
	ResultShowMatchModal    ResultKind = "show_match_modal"
	ResultValidationError   ResultKind = "validation_error"
)

// SubmissionResult is the tagged union returned for one user submission.
// Exactly the fields implied by Kind are populated.
type SubmissionResult struct {
	Kind ResultKind `json:"kind"`

	// navigate_to_summary: the cached or freshly extracted record.
	Record *CacheRecord `json:"record,omitempty"`

	// navigate_to_loading: extraction is proceeding under this key.
	NormalizedKey string `json:"normalized_key,omitempty"`

	// show_match_modal: near-duplicate originals ranked by similarity.
	Candidates []MatchCandidate `json:"candidates,omitempty"`

	// validation_error: safe to show verbatim.
	Message string `json:"message,omitempty"`

	Diagnostics *Diagnostics `json:"diagnostics,omitempty"`
}

// Usage tracks provider token consumption for one submission.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Add accumulates another usage sample.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Diagnostics describes how a submission was served. Provider identity is
// observability only and never part of the success contract.
type Diagnostics struct {
	CacheHit       bool          `json:"cache_hit"`
	ServedBy       string        `json:"served_by,omitempty"`
	FallbackUsed   bool          `json:"fallback_used"`
	ScrapeStrategy string        `json:"scrape_strategy,omitempty"`
	Usage          Usage         `json:"usage"`
	Elapsed        time.Duration `json:"elapsed_ms"`
}
