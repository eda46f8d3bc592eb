// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

package recommend

import (
	"context"
	"time"
)

// Swipe is one explicit feedback event: a rating a listener gave a speaker.
// Ratings at or above the configured like threshold count as approval.
type Swipe struct {
	ItemID int64   `json:"item_id"`
	Rating float64 `json:"rating"`
}

// Request is the input to a recommendation computation.
type Request struct {
	// UserID identifies the listener.
	UserID int64 `json:"user_id"`

	// TraitChoices are the listener's stated categorical preferences, as
	// trait tokens ("Group::Value") or bare values. Unknown tokens reject
	// the whole request.
	TraitChoices []string `json:"trait_choices"`

	// Swipes is the listener's feedback history. When empty, the engine
	// reads it from the record store.
	Swipes []Swipe `json:"swipes,omitempty"`

	// Limit caps the number of results. Zero means the configured default.
	Limit int `json:"limit"`

	// ExcludeItemIDs removes specific speakers from the candidate pool.
	ExcludeItemIDs []int64 `json:"exclude_item_ids,omitempty"`

	// AllowedItemIDs, when non-empty, restricts the candidate pool to
	// these speakers.
	AllowedItemIDs []int64 `json:"allowed_item_ids,omitempty"`

	// ForceRefresh bypasses the freshness window and recomputes.
	ForceRefresh bool `json:"force_refresh"`

	// Detailed requests per-item explanation fields in the response.
	// Explanations come from the latent-factor path, so detailed
	// requests are routed there first.
	Detailed bool `json:"detailed"`
}

// Recommendation is one ranked result.
type Recommendation struct {
	ItemID int64   `json:"item_id"`
	Name   string  `json:"name,omitempty"`
	Score  float64 `json:"score"`
}

// DetailedRecommendation adds explainability fields used for
// "why recommended" text.
type DetailedRecommendation struct {
	Recommendation

	// ContentCosine is the cosine similarity between the preference vector
	// and the item's trait-pooled content vector.
	ContentCosine float64 `json:"content_cosine"`

	// TopTraits are the item's top traits by alignment with the
	// preference vector, best first, at most three.
	TopTraits []string `json:"top_traits,omitempty"`
}

// Response is a ranked recommendation list plus provenance.
type Response struct {
	UserID          int64                    `json:"user_id"`
	Recommendations []Recommendation         `json:"recommendations"`
	Detailed        []DetailedRecommendation `json:"detailed,omitempty"`

	// Path records which scoring path produced the list: "semantic",
	// "factor", "fallback", or "stored" for a replayed persisted record.
	Path string `json:"path"`

	// Cached is true when the response was served from the in-memory
	// response cache rather than recomputed.
	Cached bool `json:"cached"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Speaker is the plain speaker record the data layer provides.
type Speaker struct {
	ID     int64    `json:"id"`
	Name   string   `json:"name"`
	Bio    string   `json:"bio,omitempty"`
	Traits []string `json:"traits,omitempty"`

	// Curated marks speakers eligible for the static fallback list.
	Curated bool `json:"curated"`

	// Servable marks speakers eligible to appear in results at all.
	Servable bool `json:"servable"`
}

// Record is the persisted per-user recommendation list. It is overwritten
// wholesale on each recomputation; last write wins.
type Record struct {
	UserID     int64     `json:"user_id"`
	SpeakerIDs []int64   `json:"speaker_ids"`
	Scores     []float64 `json:"scores,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Scorer ranks candidates from the latent-factor artifact.
type Scorer interface {
	// Score computes a ranked list for the request. An empty result means
	// no candidates survived filtering; the caller decides the fallback.
	Score(ctx context.Context, req Request) (*Response, error)
}

// SemanticRanker ranks candidates by sentence-embedding similarity.
type SemanticRanker interface {
	// Rank computes a ranked list for the request. Errors indicate the
	// text encoder was unavailable; callers degrade to the factor path.
	Rank(ctx context.Context, req Request) (*Response, error)
}

// RecordStore is the persistence contract the engine depends on.
type RecordStore interface {
	// Swipes returns the listener's full feedback history.
	Swipes(ctx context.Context, userID int64) ([]Swipe, error)

	// Record returns the stored recommendation record, or nil when the
	// listener has none yet.
	Record(ctx context.Context, userID int64) (*Record, error)

	// UpsertRecord overwrites the listener's recommendation record.
	UpsertRecord(ctx context.Context, rec Record) error

	// Speakers returns all servable speakers.
	Speakers(ctx context.Context) ([]Speaker, error)

	// CuratedSpeakers returns the curated fallback list in display order.
	CuratedSpeakers(ctx context.Context) ([]Speaker, error)

	// SpeakerNames resolves speaker ids to display names.
	SpeakerNames(ctx context.Context, ids []int64) (map[int64]string, error)
}
