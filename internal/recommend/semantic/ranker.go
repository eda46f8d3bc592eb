// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

package semantic

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/kerygma-labs/kerygma/internal/logging"
	"github.com/kerygma-labs/kerygma/internal/recommend"
)

// Learning adjustment applied to directly rated speakers. The total per
// speaker is clamped to [-adjustmentCap, +adjustmentCap] so feedback can
// reorder neighbors but never drown out the similarity signal.
const (
	likeBoost      = 0.15
	dislikePenalty = 0.20
	adjustmentCap  = 0.3
)

// Config holds the ranking parameters.
type Config struct {
	// LikeThreshold is the minimum rating treated as positive feedback.
	LikeThreshold float64

	// DefaultK is used when the request carries no limit; MaxK caps any
	// requested limit.
	DefaultK int
	MaxK     int
}

// Ranker scores speakers by cosine similarity between the listener's
// narrative embedding and each speaker's profile embedding, adjusted by
// direct feedback. Implements recommend.SemanticRanker.
type Ranker struct {
	enc   Encoder
	cache *EmbedCache
	store recommend.RecordStore
	cfg   Config
	log   zerolog.Logger
}

// NewRanker creates a Ranker. cache may be nil to disable caching.
func NewRanker(enc Encoder, cache *EmbedCache, store recommend.RecordStore, cfg Config) *Ranker {
	return &Ranker{
		enc:   enc,
		cache: cache,
		store: store,
		cfg:   cfg,
		log:   logging.With().Str("component", "semantic_ranker").Logger(),
	}
}

// Rank implements recommend.SemanticRanker. Encoder failures come back as
// errors wrapping ErrEncoderUnavailable; the caller degrades to the
// factorized path.
func (r *Ranker) Rank(ctx context.Context, req recommend.Request) (*recommend.Response, error) {
	log := logging.Ctx(ctx)

	speakers, err := r.store.Speakers(ctx)
	if err != nil {
		return nil, err
	}
	candidates := filterSpeakers(speakers, req)
	if len(candidates) == 0 {
		return &recommend.Response{
			UserID:          req.UserID,
			Recommendations: []recommend.Recommendation{},
			Path:            "semantic",
			GeneratedAt:     time.Now(),
		}, nil
	}

	profileVecs, err := r.speakerEmbeddings(ctx, candidates)
	if err != nil {
		return nil, err
	}

	names := make(map[int64]string, len(speakers))
	for _, sp := range speakers {
		names[sp.ID] = sp.Name
	}
	liked, disliked := splitFeedback(req.Swipes, names, r.cfg.LikeThreshold)

	narrative := RenderUserNarrative(req.TraitChoices, liked, disliked)
	userVecs, err := r.enc.Encode(ctx, []string{narrative})
	if err != nil {
		return nil, err
	}
	userVec := userVecs[0]

	type scored struct {
		speaker recommend.Speaker
		score   float64
	}
	ranked := make([]scored, len(candidates))
	for i, sp := range candidates {
		sim := cosine32(userVec, profileVecs[i])
		ranked[i] = scored{
			speaker: sp,
			score:   sim + r.learningAdjustment(sp.ID, req.Swipes),
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	k := r.limit(req.Limit)
	if k > len(ranked) {
		k = len(ranked)
	}

	resp := &recommend.Response{
		UserID:          req.UserID,
		Recommendations: make([]recommend.Recommendation, 0, k),
		Path:            "semantic",
		GeneratedAt:     time.Now(),
	}
	for _, s := range ranked[:k] {
		resp.Recommendations = append(resp.Recommendations, recommend.Recommendation{
			ItemID: s.speaker.ID,
			Name:   s.speaker.Name,
			Score:  s.score,
		})
	}

	log.Debug().
		Int64("user_id", req.UserID).
		Int("candidates", len(candidates)).
		Int("returned", k).
		Msg("semantic ranking complete")
	return resp, nil
}

// speakerEmbeddings resolves profile embeddings, serving from the cache
// where possible and batch-encoding the rest in one call.
func (r *Ranker) speakerEmbeddings(ctx context.Context, speakers []recommend.Speaker) ([][]float32, error) {
	out := make([][]float32, len(speakers))
	var missIdx []int
	var missTexts []string

	for i, sp := range speakers {
		text := RenderSpeakerProfile(sp)
		if r.cache != nil {
			if vec, ok := r.cache.Get(text); ok {
				out[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) > 0 {
		vectors, err := r.enc.Encode(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, i := range missIdx {
			out[i] = vectors[j]
			if r.cache != nil {
				if err := r.cache.Put(missTexts[j], vectors[j]); err != nil {
					r.log.Warn().Err(err).Int64("speaker_id", speakers[i].ID).Msg("failed to cache embedding")
				}
			}
		}
	}
	return out, nil
}

// learningAdjustment sums the boosts and penalties a speaker earned from
// direct ratings, clamped to the cap. Only direct ratings count; there is
// no propagation to similar speakers.
func (r *Ranker) learningAdjustment(speakerID int64, swipes []recommend.Swipe) float64 {
	var adj float64
	for _, sw := range swipes {
		if sw.ItemID != speakerID {
			continue
		}
		if sw.Rating >= r.cfg.LikeThreshold {
			adj += likeBoost
		} else {
			adj -= dislikePenalty
		}
	}
	return math.Max(-adjustmentCap, math.Min(adjustmentCap, adj))
}

func (r *Ranker) limit(requested int) int {
	if requested <= 0 {
		return r.cfg.DefaultK
	}
	if requested > r.cfg.MaxK {
		return r.cfg.MaxK
	}
	return requested
}

func filterSpeakers(speakers []recommend.Speaker, req recommend.Request) []recommend.Speaker {
	excluded := make(map[int64]bool, len(req.ExcludeItemIDs))
	for _, id := range req.ExcludeItemIDs {
		excluded[id] = true
	}
	var allowed map[int64]bool
	if len(req.AllowedItemIDs) > 0 {
		allowed = make(map[int64]bool, len(req.AllowedItemIDs))
		for _, id := range req.AllowedItemIDs {
			allowed[id] = true
		}
	}

	out := make([]recommend.Speaker, 0, len(speakers))
	for _, sp := range speakers {
		if !sp.Servable || excluded[sp.ID] {
			continue
		}
		if allowed != nil && !allowed[sp.ID] {
			continue
		}
		out = append(out, sp)
	}
	return out
}

func splitFeedback(swipes []recommend.Swipe, names map[int64]string, likeThreshold float64) (liked, disliked []string) {
	for _, sw := range swipes {
		name, ok := names[sw.ItemID]
		if !ok {
			continue
		}
		if sw.Rating >= likeThreshold {
			liked = append(liked, name)
		} else {
			disliked = append(disliked, name)
		}
	}
	return liked, disliked
}

func cosine32(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
