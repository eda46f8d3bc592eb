// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

// Package feedback carries swipe events from the data layer to the
// recommendation engine. Events flow over an in-process Watermill pub/sub;
// a supervised consumer persists each swipe and recomputes the listener's
// recommendations; a periodic sweep refreshes records that went stale
// without new feedback.
package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/kerygma-labs/kerygma/internal/logging"
)

// TopicSwipesRecorded carries SwipeRecorded events.
const TopicSwipesRecorded = "swipes.recorded"

// SwipeRecorded is published after a listener rates a speaker.
type SwipeRecorded struct {
	UserID     int64     `json:"user_id"`
	SpeakerID  int64     `json:"speaker_id"`
	Rating     float64   `json:"rating"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher publishes swipe events.
type Publisher struct {
	pub message.Publisher
}

// NewPublisher wraps a Watermill publisher.
func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

// PublishSwipe publishes one event, tagging the message with the request's
// correlation id for traceability.
func (p *Publisher) PublishSwipe(ctx context.Context, ev SwipeRecorded) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal swipe event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	if cid := logging.CorrelationIDFromContext(ctx); cid != "" {
		msg.Metadata.Set("correlation_id", cid)
	}

	if err := p.pub.Publish(TopicSwipesRecorded, msg); err != nil {
		return fmt.Errorf("publish swipe event: %w", err)
	}
	return nil
}
