package model

import "time"

// SourceType distinguishes canonical originals from user-derived forks.
type SourceType string

const (
	SourceOriginal     SourceType = "original"
	SourceUserModified SourceType = "user_modified"
)

// InputKind labels classified raw input.
type InputKind string

const (
	KindURL     InputKind = "url"
	KindRawText InputKind = "raw_text"
	KindVideo   InputKind = "video"
	KindImages  InputKind = "images"
	KindInvalid InputKind = "invalid"
)

// CacheRecord is a persisted row wrapping a CanonicalRecipe. A record is
// either an original (immutable after creation except cache bookkeeping,
// addressable by SourceKey, fuzzy-searchable when an embedding exists) or a
// fork (mutable, linked to its parent, never indexed for fuzzy search).
type CacheRecord struct {
	ID              string          `json:"id"`
	SourceType      SourceType      `json:"source_type"`
	Data            CanonicalRecipe `json:"data"`
	CreatedAt       time.Time       `json:"created_at"`
	LastProcessedAt time.Time       `json:"last_processed_at"`

	// Exactly one of Original / Fork is set, matching SourceType.
	Original *OriginalMeta `json:"original,omitempty"`
	Fork     *ForkMeta     `json:"fork,omitempty"`
}

// OriginalMeta holds fields meaningful only for original records.
type OriginalMeta struct {
	// SourceKey is the normalized URL or image content hash; empty for
	// text-originated records, which are only reachable by fuzzy search.
	SourceKey string `json:"source_key,omitempty"`
	// Embedding is present once the asynchronous embedding write lands.
	Embedding []float32 `json:"embedding,omitempty"`
}

// ForkMeta holds fields meaningful only for fork records.
type ForkMeta struct {
	ParentID          string `json:"parent_id"`
	ChangeDescription string `json:"change_description,omitempty"`
}

// IsUserModified reports whether the record accepts partial updates.
func (r *CacheRecord) IsUserModified() bool {
	return r.SourceType == SourceUserModified
}

// SourceKey returns the exact-match cache key, or "" when the record has
// none (forks and text-originated originals).
func (r *CacheRecord) SourceKey() string {
	if r.Original != nil {
		return r.Original.SourceKey
	}
	return ""
}

// ParentID returns the fork's parent id, or "" for originals.
func (r *CacheRecord) ParentID() string {
	if r.Fork != nil {
		return r.Fork.ParentID
	}
	return ""
}

// SavedPointer associates a user with a CacheRecord plus a display-title
// override. It is re-pointed, never duplicated, when a fork replaces what it
// referenced. The pointer table belongs to the app layer; the pipeline only
// re-points rows handed to it during Fork.
type SavedPointer struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	RecordID      string    `json:"record_id"`
	DisplayTitle  string    `json:"display_title,omitempty"`
	ChangeSummary string    `json:"change_summary,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MatchCandidate is one fuzzy-match result for a free-text query.
type MatchCandidate struct {
	Record     CacheRecord `json:"record"`
	Similarity float64     `json:"similarity"`
}
