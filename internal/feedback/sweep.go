// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

package feedback

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/kerygma-labs/kerygma/internal/logging"
	"github.com/kerygma-labs/kerygma/internal/recommend"
)

// StaleRecordLister finds listeners whose stored recommendations have aged
// out of the freshness window.
type StaleRecordLister interface {
	StaleRecordUsers(ctx context.Context, olderThan time.Time) ([]int64, error)
}

// SweepConfig controls the periodic refresh.
type SweepConfig struct {
	// Interval between sweeps.
	Interval time.Duration

	// MaxAge is how old a record may get before the sweep refreshes it.
	MaxAge time.Duration
}

// SweepService periodically recomputes stale recommendation records so
// listeners who stopped swiping still get refreshed lists. Implements
// suture.Service.
type SweepService struct {
	lister      StaleRecordLister
	recommender Recommender
	cfg         SweepConfig
	log         zerolog.Logger
	name        string
}

// NewSweepService creates the periodic refresh service.
func NewSweepService(lister StaleRecordLister, recommender Recommender, cfg SweepConfig) *SweepService {
	return &SweepService{
		lister:      lister,
		recommender: recommender,
		cfg:         cfg,
		log:         logging.With().Str("service", "record-sweep").Logger(),
		name:        "record-sweep",
	}
}

// Serve implements the suture.Service interface.
func (s *SweepService) Serve(ctx context.Context) error {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", interval).Msg("record sweep running")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("record sweep shutting down")
			return ctx.Err()

		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *SweepService) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.MaxAge)
	users, err := s.lister.StaleRecordUsers(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list stale records")
		return
	}
	if len(users) == 0 {
		return
	}

	s.log.Info().Int("stale", len(users)).Msg("refreshing stale recommendation records")
	for _, userID := range users {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.recommender.Recommend(ctx, recommend.Request{UserID: userID, ForceRefresh: true}); err != nil {
			s.log.Warn().Err(err).Int64("user_id", userID).Msg("sweep recompute failed")
		}
	}
}

// String returns the service name for supervisor logging.
func (s *SweepService) String() string {
	return s.name
}
