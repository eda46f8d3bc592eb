// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

// Package factor implements the trait-augmented latent-factor scorer. It is
// a pure function over the read-only embedding artifact and the per-request
// input: stated trait preferences become a preference vector, feedback
// history becomes a behavior vector, the two are blended into one query
// vector, and every eligible speaker is scored by a scaled dot product plus
// bias terms.
package factor

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/kerygma-labs/kerygma/internal/logging"
	"github.com/kerygma-labs/kerygma/internal/recommend"
	"github.com/kerygma-labs/kerygma/internal/recommend/artifact"
)

// Config holds the scoring blend parameters.
type Config struct {
	// Alpha weights the preference vector against the behavior vector:
	// q = (1-alpha)*u + alpha*p.
	Alpha float64

	// DislikeWeight scales the subtracted mean of disliked item vectors.
	DislikeWeight float64

	// LikeThreshold is the minimum rating bucketed as a like.
	LikeThreshold float64

	// DefaultK is used when the request carries no limit; MaxK caps any
	// requested limit.
	DefaultK int
	MaxK     int
}

// DefaultConfig returns the blend parameters the model was tuned with.
func DefaultConfig() Config {
	return Config{
		Alpha:         0.4,
		DislikeWeight: 0.5,
		LikeThreshold: 4.0,
		DefaultK:      10,
		MaxK:          50,
	}
}

// Scorer ranks speakers against a query vector derived from one listener's
// stated preferences and feedback history. Safe for unbounded concurrent
// use: the artifact is never mutated at serving time.
type Scorer struct {
	art *artifact.Artifact
	cfg Config
	log zerolog.Logger
}

// New creates a Scorer over the loaded artifact.
func New(art *artifact.Artifact, cfg Config) *Scorer {
	return &Scorer{
		art: art,
		cfg: cfg,
		log: logging.With().Str("component", "factor_scorer").Logger(),
	}
}

// PreferenceVector builds the stated-preference vector: the mean of the
// selected traits' embedding rows, or the zero vector for an empty
// selection. Returns a validation error naming every unknown token.
func (s *Scorer) PreferenceVector(traitChoices []string) ([]float64, []int, error) {
	ids, err := s.art.Vocabulary().ResolveAll(traitChoices)
	if err != nil {
		return nil, nil, err
	}
	return s.art.TraitVector(ids), ids, nil
}

// BehaviorVector builds the feedback-history vector. Each known rated item
// contributes its full latent vector to the liked or disliked bucket; the
// result is mean(liked) - dislikeWeight*mean(disliked), with an empty
// bucket contributing zero. Items absent from the artifact are skipped.
func (s *Scorer) BehaviorVector(swipes []recommend.Swipe) []float64 {
	d := s.art.Dim()
	liked := make([]float64, d)
	disliked := make([]float64, d)
	var nLiked, nDisliked int

	for _, sw := range swipes {
		idx, ok := s.art.ItemIndex(sw.ItemID)
		if !ok {
			continue
		}
		v := s.art.ItemVector(idx)
		if sw.Rating >= s.cfg.LikeThreshold {
			addScaled(liked, v, 1)
			nLiked++
		} else {
			addScaled(disliked, v, 1)
			nDisliked++
		}
	}

	u := make([]float64, d)
	if nLiked > 0 {
		addScaled(u, liked, 1/float64(nLiked))
	}
	if nDisliked > 0 {
		addScaled(u, disliked, -s.cfg.DislikeWeight/float64(nDisliked))
	}
	return u
}

// Blend combines the behavior and preference vectors into the query vector.
func (s *Scorer) Blend(behavior, preference []float64) []float64 {
	q := make([]float64, s.art.Dim())
	addScaled(q, behavior, 1-s.cfg.Alpha)
	addScaled(q, preference, s.cfg.Alpha)
	return q
}

// Score implements recommend.Scorer.
func (s *Scorer) Score(ctx context.Context, req recommend.Request) (*recommend.Response, error) {
	log := logging.Ctx(ctx)

	p, _, err := s.PreferenceVector(req.TraitChoices)
	if err != nil {
		return nil, err
	}
	u := s.BehaviorVector(req.Swipes)
	q := s.Blend(u, p)

	candidates := s.candidatePool(req)
	if len(candidates) == 0 {
		log.Debug().Int64("user_id", req.UserID).Msg("no candidates survived filtering")
		return &recommend.Response{
			UserID:          req.UserID,
			Recommendations: []recommend.Recommendation{},
			Path:            "factor",
			GeneratedAt:     time.Now(),
		}, nil
	}

	vectors := s.art.ItemVectors(candidates)
	scale := s.art.Scale()
	global := s.art.GlobalBias()

	ranked := make([]scoredItem, len(candidates))
	for i, idx := range candidates {
		ranked[i] = scoredItem{
			idx:   idx,
			score: dot(q, vectors[i])/scale + global + s.art.ItemBias(idx),
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	k := s.limit(req.Limit)
	if k > len(ranked) {
		k = len(ranked)
	}

	resp := &recommend.Response{
		UserID:          req.UserID,
		Recommendations: make([]recommend.Recommendation, 0, k),
		Path:            "factor",
		GeneratedAt:     time.Now(),
	}
	for _, r := range ranked[:k] {
		resp.Recommendations = append(resp.Recommendations, recommend.Recommendation{
			ItemID: s.art.ItemID(r.idx),
			Score:  r.score,
		})
	}

	if req.Detailed {
		resp.Detailed = s.explain(p, ranked[:k], resp.Recommendations)
	}

	log.Debug().
		Int64("user_id", req.UserID).
		Int("candidates", len(candidates)).
		Int("returned", k).
		Msg("factor scoring complete")
	return resp, nil
}

// candidatePool collects internal indices eligible for scoring: every
// artifact item minus already-rated items, explicit exclusions, and (when an
// allow set is present) anything outside it. Indices come back in ascending
// order so equal scores keep a stable, reproducible order.
func (s *Scorer) candidatePool(req recommend.Request) []int {
	excluded := make(map[int]bool, len(req.Swipes)+len(req.ExcludeItemIDs))
	for _, sw := range req.Swipes {
		if idx, ok := s.art.ItemIndex(sw.ItemID); ok {
			excluded[idx] = true
		}
	}
	for _, id := range req.ExcludeItemIDs {
		if idx, ok := s.art.ItemIndex(id); ok {
			excluded[idx] = true
		}
	}

	var allowed map[int]bool
	if len(req.AllowedItemIDs) > 0 {
		allowed = make(map[int]bool, len(req.AllowedItemIDs))
		for _, id := range req.AllowedItemIDs {
			if idx, ok := s.art.ItemIndex(id); ok {
				allowed[idx] = true
			}
		}
	}

	n := s.art.ItemCount()
	pool := make([]int, 0, n)
	for idx := 0; idx < n; idx++ {
		if excluded[idx] {
			continue
		}
		if allowed != nil && !allowed[idx] {
			continue
		}
		pool = append(pool, idx)
	}
	return pool
}

func (s *Scorer) limit(requested int) int {
	if requested <= 0 {
		return s.cfg.DefaultK
	}
	if requested > s.cfg.MaxK {
		return s.cfg.MaxK
	}
	return requested
}

type scoredItem struct {
	idx   int
	score float64
}

// explain builds the per-item explainability fields: cosine similarity of
// the preference vector to the item's trait-pooled content vector, and the
// item's top traits by individual alignment with the preference vector.
func (s *Scorer) explain(p []float64, ranked []scoredItem, recs []recommend.Recommendation) []recommend.DetailedRecommendation {
	voc := s.art.Vocabulary()
	out := make([]recommend.DetailedRecommendation, len(ranked))
	for i, r := range ranked {
		contentVec := s.art.TraitVector(s.art.ItemTraitIDs(r.idx))

		type alignment struct {
			token string
			score float64
		}
		itemTraits := s.art.ItemTraitIDs(r.idx)
		aligns := make([]alignment, 0, len(itemTraits))
		for _, tid := range itemTraits {
			t, ok := voc.ByID(tid)
			if !ok {
				continue
			}
			aligns = append(aligns, alignment{
				token: t.Token,
				score: dot(p, s.art.TraitRow(tid)),
			})
		}
		sort.SliceStable(aligns, func(a, b int) bool { return aligns[a].score > aligns[b].score })
		if len(aligns) > 3 {
			aligns = aligns[:3]
		}
		top := make([]string, len(aligns))
		for j, a := range aligns {
			top[j] = a.token
		}

		out[i] = recommend.DetailedRecommendation{
			Recommendation: recs[i],
			ContentCosine:  cosine(p, contentVec),
			TopTraits:      top,
		}
	}
	return out
}
