// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

// Package semantic implements the sentence-embedding ranker: speaker
// profiles and listener narratives are rendered to text, encoded by an
// external sentence-transformer service, and compared by cosine similarity.
// Explicit feedback nudges the similarity of directly rated speakers up or
// down within a fixed cap.
package semantic

import "context"

// Encoder generates sentence embeddings for text.
//
// Implementations wrap an external encoding service. Batch operation is the
// primary mode; for a single text, pass a one-element slice. Calls may be
// slow and must honor context cancellation.
type Encoder interface {
	// Encode returns one embedding vector per input text, in input order.
	Encode(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of produced vectors.
	Dimensions() int

	// Model returns the model identifier, used for cache keying and logs.
	Model() string

	// Close releases any resources held by the encoder.
	Close() error
}
