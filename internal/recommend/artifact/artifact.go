// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

// Package artifact holds the immutable embedding artifact produced by the
// offline trainer: user/item id embeddings, the shared trait embedding table,
// bias terms, and the index tables that map external ids to embedding rows.
//
// An artifact is loaded once at startup and shared read-only across all
// concurrent requests. It is never mutated at serving time.
package artifact

import (
	"fmt"
	"math"
	"time"

	"github.com/kerygma-labs/kerygma/internal/recommend/vocab"
)

// FormatVersion is the on-disk format version this build reads and writes.
const FormatVersion = 1

// Metadata describes a stored artifact.
type Metadata struct {
	// FormatVersion is the serialization format version.
	FormatVersion int `json:"format_version"`

	// Checksum is the SHA-256 checksum of the uncompressed payload.
	Checksum string `json:"checksum"`

	// TrainedAt is when the offline trainer produced the tables.
	TrainedAt time.Time `json:"trained_at"`

	// SavedAt is when the artifact file was written.
	SavedAt time.Time `json:"saved_at"`

	// Dim is the embedding dimension.
	Dim int `json:"dim"`

	UserCount  int `json:"user_count"`
	ItemCount  int `json:"item_count"`
	TraitCount int `json:"trait_count"`

	// SizeBytes is the compressed payload size.
	SizeBytes int64 `json:"size_bytes"`
}

// Tables is the serializable payload of an artifact: everything the trainer
// exports, nothing derived.
type Tables struct {
	// Dim is the embedding dimension shared by all matrices.
	Dim int

	// GlobalBias is the global score offset learned during training.
	GlobalBias float64

	// Users and Items are id-embedding matrices indexed by internal index.
	Users [][]float64
	Items [][]float64

	// Traits is the shared trait embedding table indexed by trait id.
	Traits [][]float64

	// UserBias and ItemBias are per-row bias terms.
	UserBias []float64
	ItemBias []float64

	// UserIDs and ItemIDs map internal index to external id.
	UserIDs []int64
	ItemIDs []int64

	// ItemTraitIDs lists the trait ids attached to each item, by internal
	// index. Every item carries at least one id (the trainer assigns the
	// reserved fallback trait to items with none).
	ItemTraitIDs [][]int

	// TraitTokens maps canonical trait tokens to trait ids.
	TraitTokens map[string]int

	// TrainedAt is when the trainer produced these tables.
	TrainedAt time.Time
}

// Artifact is a validated, query-ready view over loaded Tables: index maps
// and the trait vocabulary are built once, then everything is read-only.
type Artifact struct {
	tables Tables
	meta   Metadata

	userIndex map[int64]int
	itemIndex map[int64]int
	vocab     *vocab.Vocabulary
	scale     float64
}

// New validates the tables and builds the derived lookup structures.
// Validation fails loudly on any missing or inconsistent table so a broken
// export can never silently serve garbage scores.
func New(tables Tables, meta Metadata) (*Artifact, error) {
	if err := validate(&tables); err != nil {
		return nil, err
	}

	a := &Artifact{
		tables:    tables,
		meta:      meta,
		userIndex: make(map[int64]int, len(tables.UserIDs)),
		itemIndex: make(map[int64]int, len(tables.ItemIDs)),
		vocab:     vocab.New(tables.TraitTokens),
		scale:     math.Sqrt(float64(tables.Dim)),
	}
	for idx, id := range tables.UserIDs {
		a.userIndex[id] = idx
	}
	for idx, id := range tables.ItemIDs {
		a.itemIndex[id] = idx
	}
	return a, nil
}

func validate(t *Tables) error {
	if t.Dim <= 0 {
		return fmt.Errorf("artifact: dimension must be positive, got %d", t.Dim)
	}
	if len(t.Items) == 0 {
		return fmt.Errorf("artifact: item embedding table is missing or empty")
	}
	if len(t.Traits) == 0 {
		return fmt.Errorf("artifact: trait embedding table is missing or empty")
	}
	if len(t.TraitTokens) == 0 {
		return fmt.Errorf("artifact: trait token table is missing or empty")
	}
	if len(t.ItemIDs) != len(t.Items) {
		return fmt.Errorf("artifact: item id table has %d entries for %d item rows", len(t.ItemIDs), len(t.Items))
	}
	if len(t.UserIDs) != len(t.Users) {
		return fmt.Errorf("artifact: user id table has %d entries for %d user rows", len(t.UserIDs), len(t.Users))
	}
	if len(t.ItemBias) != len(t.Items) {
		return fmt.Errorf("artifact: item bias table has %d entries for %d items", len(t.ItemBias), len(t.Items))
	}
	if len(t.UserBias) != len(t.Users) {
		return fmt.Errorf("artifact: user bias table has %d entries for %d users", len(t.UserBias), len(t.Users))
	}
	if len(t.ItemTraitIDs) != len(t.Items) {
		return fmt.Errorf("artifact: item trait table has %d entries for %d items", len(t.ItemTraitIDs), len(t.Items))
	}

	for i, row := range t.Items {
		if len(row) != t.Dim {
			return fmt.Errorf("artifact: item row %d has dimension %d, want %d", i, len(row), t.Dim)
		}
	}
	for i, row := range t.Users {
		if len(row) != t.Dim {
			return fmt.Errorf("artifact: user row %d has dimension %d, want %d", i, len(row), t.Dim)
		}
	}
	for i, row := range t.Traits {
		if len(row) != t.Dim {
			return fmt.Errorf("artifact: trait row %d has dimension %d, want %d", i, len(row), t.Dim)
		}
	}
	for i, ids := range t.ItemTraitIDs {
		if len(ids) == 0 {
			return fmt.Errorf("artifact: item %d (id %d) lists no trait ids", i, t.ItemIDs[i])
		}
		for _, id := range ids {
			if id < 0 || id >= len(t.Traits) {
				return fmt.Errorf("artifact: item %d references trait id %d outside table of %d rows", i, id, len(t.Traits))
			}
		}
	}
	for tok, id := range t.TraitTokens {
		if id < 0 || id >= len(t.Traits) {
			return fmt.Errorf("artifact: trait token %q maps to id %d outside table of %d rows", tok, id, len(t.Traits))
		}
	}
	return nil
}

// Metadata returns the artifact's load-time metadata.
func (a *Artifact) Metadata() Metadata { return a.meta }

// Dim returns the embedding dimension.
func (a *Artifact) Dim() int { return a.tables.Dim }

// Scale returns sqrt(dim), the dot-product scaling factor used at scoring.
func (a *Artifact) Scale() float64 { return a.scale }

// GlobalBias returns the global score offset.
func (a *Artifact) GlobalBias() float64 { return a.tables.GlobalBias }

// Vocabulary returns the trait vocabulary built at load time.
func (a *Artifact) Vocabulary() *vocab.Vocabulary { return a.vocab }

// ItemCount returns the number of items in the artifact.
func (a *Artifact) ItemCount() int { return len(a.tables.Items) }

// ItemIndex maps an external item id to its internal index.
func (a *Artifact) ItemIndex(itemID int64) (int, bool) {
	idx, ok := a.itemIndex[itemID]
	return idx, ok
}

// UserIndex maps an external user id to its internal index.
func (a *Artifact) UserIndex(userID int64) (int, bool) {
	idx, ok := a.userIndex[userID]
	return idx, ok
}

// ItemID maps an internal index back to the external item id.
func (a *Artifact) ItemID(idx int) int64 { return a.tables.ItemIDs[idx] }

// ItemBias returns the bias term for an internal item index.
func (a *Artifact) ItemBias(idx int) float64 { return a.tables.ItemBias[idx] }

// ItemTraitIDs returns the trait ids attached to an internal item index.
// The returned slice is shared; callers must not mutate it.
func (a *Artifact) ItemTraitIDs(idx int) []int { return a.tables.ItemTraitIDs[idx] }

// TraitRow returns the embedding row for a trait id. The returned slice is
// shared; callers must not mutate it.
func (a *Artifact) TraitRow(traitID int) []float64 { return a.tables.Traits[traitID] }

// UserRow returns the id-embedding row for an internal user index. The
// returned slice is shared; callers must not mutate it.
func (a *Artifact) UserRow(idx int) []float64 { return a.tables.Users[idx] }

// ItemVector computes the full latent vector for one item: its id-embedding
// row plus the mean of its trait rows. Item vectors are not stored; trait
// pooling here mirrors the pooling used for preference vectors so both live
// in the same geometry.
func (a *Artifact) ItemVector(idx int) []float64 {
	d := a.tables.Dim
	out := make([]float64, d)
	copy(out, a.tables.Items[idx])

	ids := a.tables.ItemTraitIDs[idx]
	inv := 1.0 / float64(len(ids))
	for _, id := range ids {
		row := a.tables.Traits[id]
		for j := 0; j < d; j++ {
			out[j] += row[j] * inv
		}
	}
	return out
}

// ItemVectors computes full latent vectors for a batch of internal indices
// with one grouped pass over the flattened trait-id lists, rather than a
// per-item loop over trait rows.
func (a *Artifact) ItemVectors(indices []int) [][]float64 {
	d := a.tables.Dim

	// Flatten trait ids with per-item offsets.
	total := 0
	for _, idx := range indices {
		total += len(a.tables.ItemTraitIDs[idx])
	}
	flat := make([]int, 0, total)
	offsets := make([]int, len(indices)+1)
	for i, idx := range indices {
		flat = append(flat, a.tables.ItemTraitIDs[idx]...)
		offsets[i+1] = len(flat)
	}

	// One backing array for the whole batch.
	backing := make([]float64, len(indices)*d)
	out := make([][]float64, len(indices))
	for i, idx := range indices {
		row := backing[i*d : (i+1)*d]
		copy(row, a.tables.Items[idx])

		start, end := offsets[i], offsets[i+1]
		inv := 1.0 / float64(end-start)
		for _, id := range flat[start:end] {
			trow := a.tables.Traits[id]
			for j := 0; j < d; j++ {
				row[j] += trow[j] * inv
			}
		}
		out[i] = row
	}
	return out
}

// TraitVector returns the mean of the given trait embedding rows, or the
// zero vector for an empty input.
func (a *Artifact) TraitVector(traitIDs []int) []float64 {
	d := a.tables.Dim
	out := make([]float64, d)
	if len(traitIDs) == 0 {
		return out
	}
	inv := 1.0 / float64(len(traitIDs))
	for _, id := range traitIDs {
		row := a.tables.Traits[id]
		for j := 0; j < d; j++ {
			out[j] += row[j] * inv
		}
	}
	return out
}
