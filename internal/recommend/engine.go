// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

// Package recommend defines the recommendation engine's contracts and the
// orchestrator that ties the two scoring paths together. The semantic path
// is preferred; encoder trouble degrades to the latent-factor path, and an
// empty factor result falls back to the curated list. Results are persisted
// per listener and replayed while fresh.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kerygma-labs/kerygma/internal/logging"
	"github.com/kerygma-labs/kerygma/internal/metrics"
	"github.com/kerygma-labs/kerygma/internal/recommend/vocab"
)

// Fallback scores: the first curated speaker gets fallbackTopScore, each
// subsequent one steps down by fallbackStep, never below fallbackFloor.
const (
	fallbackTopScore = 0.95
	fallbackStep     = 0.05
	fallbackFloor    = 0.5
)

// TraitResolver validates trait selections against the loaded vocabulary.
type TraitResolver interface {
	ResolveAll(tokens []string) ([]int, error)
}

// EngineConfig controls orchestration behavior.
type EngineConfig struct {
	// PrimaryPath selects the preferred scoring path: "semantic" or
	// "factor".
	PrimaryPath string

	// CacheTTL bounds the in-memory response cache. Zero disables it.
	CacheTTL time.Duration

	// RefreshWindow is how long a persisted recommendation record stays
	// fresh; requests inside the window replay it instead of recomputing.
	RefreshWindow time.Duration

	// DefaultK is used when the request carries no limit; MaxK caps any
	// requested limit.
	DefaultK int
	MaxK     int
}

// Engine orchestrates the scoring paths, the persisted record, and the
// response cache. Safe for concurrent use.
type Engine struct {
	scorer   Scorer
	ranker   SemanticRanker // nil disables the semantic path
	store    RecordStore
	resolver TraitResolver
	cfg      EngineConfig
	log      zerolog.Logger

	mu    sync.Mutex
	cache map[cacheKey]cachedResponse
}

// cacheKey covers every request field that changes the computed output.
// Trait choices and the exclusion and allow sets are request-scoped, so two
// requests differing only in those must never share a cache entry.
type cacheKey struct {
	userID   int64
	limit    int
	detailed bool
	filters  string
}

func keyForRequest(req Request) cacheKey {
	var b strings.Builder
	for _, t := range req.TraitChoices {
		b.WriteString(t)
		b.WriteByte(0x1f)
	}
	b.WriteByte(0x1e)
	writeIDSet(&b, req.ExcludeItemIDs)
	b.WriteByte(0x1e)
	writeIDSet(&b, req.AllowedItemIDs)
	return cacheKey{
		userID:   req.UserID,
		limit:    req.Limit,
		detailed: req.Detailed,
		filters:  b.String(),
	}
}

// writeIDSet appends a canonical rendering of an id set; order within the
// request does not matter, so ids are sorted first.
func writeIDSet(b *strings.Builder, ids []int64) {
	sorted := append([]int64(nil), ids...)
	slices.Sort(sorted)
	for _, id := range sorted {
		b.WriteString(strconv.FormatInt(id, 10))
		b.WriteByte(',')
	}
}

// hasRequestFilters reports whether the request narrows the candidate pool
// beyond the listener's own history. Such requests cannot be served from,
// or persisted as, the listener's global record.
func hasRequestFilters(req Request) bool {
	return len(req.ExcludeItemIDs) > 0 || len(req.AllowedItemIDs) > 0
}

type cachedResponse struct {
	resp    *Response
	expires time.Time
}

// NewEngine wires the engine. ranker may be nil to run factor-only; scorer
// and resolver may be nil when no embedding artifact is loaded, in which
// case requests are served by the remaining paths or the curated fallback.
func NewEngine(scorer Scorer, ranker SemanticRanker, store RecordStore, resolver TraitResolver, cfg EngineConfig) *Engine {
	return &Engine{
		scorer:   scorer,
		ranker:   ranker,
		store:    store,
		resolver: resolver,
		cfg:      cfg,
		log:      logging.With().Str("component", "engine").Logger(),
		cache:    make(map[cacheKey]cachedResponse),
	}
}

// Recommend produces a ranked speaker list for one listener.
//
// Order of resolution: validation, in-memory cache, fresh persisted record,
// then recomputation through the configured path chain. Recomputed results
// are persisted (overwrite, last write wins) and cached.
func (e *Engine) Recommend(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	log := logging.Ctx(ctx)

	if e.resolver != nil {
		if _, err := e.resolver.ResolveAll(req.TraitChoices); err != nil {
			metrics.ObserveRecommend("validation", start, err)
			return nil, err
		}
	}

	if !req.ForceRefresh {
		if resp := e.cachedResponse(req); resp != nil {
			metrics.ObserveRecommend("cached", start, nil)
			return resp, nil
		}
		// The persisted record was computed without request-scoped
		// filters, so it can only answer unfiltered requests.
		if !hasRequestFilters(req) {
			if resp, err := e.replayRecord(ctx, req); err != nil {
				return nil, err
			} else if resp != nil {
				metrics.ObserveRecommend("stored", start, nil)
				return resp, nil
			}
		}
	}

	if len(req.Swipes) == 0 {
		swipes, err := e.store.Swipes(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("load feedback history: %w", err)
		}
		req.Swipes = swipes
	}

	resp, err := e.compute(ctx, req)
	if err != nil {
		metrics.ObserveRecommend("error", start, err)
		return nil, err
	}
	metrics.ObserveRecommend(resp.Path, start, nil)

	if !hasRequestFilters(req) {
		e.persist(ctx, resp)
	}
	e.cacheResponse(req, resp)

	log.Info().
		Int64("user_id", req.UserID).
		Str("path", resp.Path).
		Int("count", len(resp.Recommendations)).
		Msg("recommendations computed")
	return resp, nil
}

// compute runs the path chain: primary, secondary on degradable failure or
// empty result, then the curated fallback. Validation errors always
// surface.
func (e *Engine) compute(ctx context.Context, req Request) (*Response, error) {
	log := logging.Ctx(ctx)

	// Only the factor path can explain its scores, so detailed requests
	// try it first regardless of the configured primary.
	paths := []string{"semantic", "factor"}
	if e.cfg.PrimaryPath == "factor" || req.Detailed {
		paths = []string{"factor", "semantic"}
	}

	for _, path := range paths {
		var resp *Response
		var err error
		switch path {
		case "semantic":
			if e.ranker == nil {
				continue
			}
			resp, err = e.ranker.Rank(ctx, req)
		case "factor":
			if e.scorer == nil {
				continue
			}
			resp, err = e.scorer.Score(ctx, req)
		}
		if err != nil {
			var verr *vocab.UnknownTraitError
			if errors.As(err, &verr) {
				return nil, err
			}
			log.Warn().Err(err).Str("path", path).Msg("scoring path failed, degrading")
			continue
		}
		if len(resp.Recommendations) == 0 {
			log.Debug().Str("path", path).Msg("scoring path returned no candidates")
			continue
		}
		return resp, nil
	}

	return e.fallback(ctx, req)
}

// fallback serves the curated list with synthetic descending scores. It is
// the only path guaranteed to return results for a brand-new listener.
func (e *Engine) fallback(ctx context.Context, req Request) (*Response, error) {
	curated, err := e.store.CuratedSpeakers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load curated speakers: %w", err)
	}

	k := e.limit(req.Limit)
	if k > len(curated) {
		k = len(curated)
	}

	resp := &Response{
		UserID:          req.UserID,
		Recommendations: make([]Recommendation, 0, k),
		Path:            "fallback",
		GeneratedAt:     time.Now(),
	}
	for i, sp := range curated[:k] {
		score := fallbackTopScore - fallbackStep*float64(i)
		if score < fallbackFloor {
			score = fallbackFloor
		}
		resp.Recommendations = append(resp.Recommendations, Recommendation{
			ItemID: sp.ID,
			Name:   sp.Name,
			Score:  score,
		})
	}
	return resp, nil
}

// replayRecord serves the persisted record when it is still inside the
// freshness window. Returns nil when there is nothing fresh to replay.
func (e *Engine) replayRecord(ctx context.Context, req Request) (*Response, error) {
	rec, err := e.store.Record(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load recommendation record: %w", err)
	}
	if rec == nil || len(rec.SpeakerIDs) == 0 {
		return nil, nil
	}
	if time.Since(rec.UpdatedAt) > e.cfg.RefreshWindow {
		return nil, nil
	}

	names, err := e.store.SpeakerNames(ctx, rec.SpeakerIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve speaker names: %w", err)
	}

	k := e.limit(req.Limit)
	if k > len(rec.SpeakerIDs) {
		k = len(rec.SpeakerIDs)
	}

	resp := &Response{
		UserID:          req.UserID,
		Recommendations: make([]Recommendation, 0, k),
		Path:            "stored",
		Cached:          true,
		GeneratedAt:     rec.UpdatedAt,
	}
	for i := 0; i < k; i++ {
		r := Recommendation{ItemID: rec.SpeakerIDs[i], Name: names[rec.SpeakerIDs[i]]}
		if i < len(rec.Scores) {
			r.Score = rec.Scores[i]
		}
		resp.Recommendations = append(resp.Recommendations, r)
	}
	return resp, nil
}

func (e *Engine) persist(ctx context.Context, resp *Response) {
	ids := make([]int64, len(resp.Recommendations))
	scores := make([]float64, len(resp.Recommendations))
	for i, r := range resp.Recommendations {
		ids[i] = r.ItemID
		scores[i] = r.Score
	}

	err := e.store.UpsertRecord(ctx, Record{
		UserID:     resp.UserID,
		SpeakerIDs: ids,
		Scores:     scores,
		UpdatedAt:  resp.GeneratedAt,
	})
	if err != nil {
		metrics.RecordUpsertsTotal.WithLabelValues("error").Inc()
		e.log.Error().Err(err).Int64("user_id", resp.UserID).Msg("failed to persist recommendation record")
		return
	}
	metrics.RecordUpsertsTotal.WithLabelValues("ok").Inc()
}

func (e *Engine) cachedResponse(req Request) *Response {
	if e.cfg.CacheTTL <= 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	key := keyForRequest(req)
	entry, ok := e.cache[key]
	if !ok || time.Now().After(entry.expires) {
		delete(e.cache, key)
		return nil
	}

	cp := *entry.resp
	cp.Cached = true
	return &cp
}

func (e *Engine) cacheResponse(req Request, resp *Response) {
	if e.cfg.CacheTTL <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache[keyForRequest(req)] = cachedResponse{
		resp:    resp,
		expires: time.Now().Add(e.cfg.CacheTTL),
	}
}

// InvalidateUser drops cached responses for one listener, used when new
// feedback arrives.
func (e *Engine) InvalidateUser(userID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.cache {
		if key.userID == userID {
			delete(e.cache, key)
		}
	}
}

func (e *Engine) limit(requested int) int {
	if requested <= 0 {
		return e.cfg.DefaultK
	}
	if requested > e.cfg.MaxK {
		return e.cfg.MaxK
	}
	return requested
}
