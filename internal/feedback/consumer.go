// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

package feedback

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/kerygma-labs/kerygma/internal/logging"
	"github.com/kerygma-labs/kerygma/internal/metrics"
	"github.com/kerygma-labs/kerygma/internal/recommend"
)

// Recommender is the slice of the engine the feedback loop needs.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) (*recommend.Response, error)
	InvalidateUser(userID int64)
}

// SwipeStore persists feedback events.
type SwipeStore interface {
	RecordSwipe(ctx context.Context, userID int64, sw recommend.Swipe) error
}

// Consumer subscribes to swipe events, persists each swipe, and recomputes
// the listener's recommendation record. Implements suture.Service.
type Consumer struct {
	sub         message.Subscriber
	store       SwipeStore
	recommender Recommender
	log         zerolog.Logger
	name        string
}

// NewConsumer creates the swipe event consumer.
func NewConsumer(sub message.Subscriber, store SwipeStore, recommender Recommender) *Consumer {
	return &Consumer{
		sub:         sub,
		store:       store,
		recommender: recommender,
		log:         logging.With().Str("service", "feedback-consumer").Logger(),
		name:        "feedback-consumer",
	}
}

// Serve implements the suture.Service interface. It blocks until the
// context is canceled.
func (c *Consumer) Serve(ctx context.Context) error {
	messages, err := c.sub.Subscribe(ctx, TopicSwipesRecorded)
	if err != nil {
		return err
	}
	c.log.Info().Str("topic", TopicSwipesRecorded).Msg("feedback consumer running")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("feedback consumer shutting down")
			return ctx.Err()

		case msg, ok := <-messages:
			if !ok {
				c.log.Info().Msg("subscription closed")
				return nil
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg *message.Message) {
	if cid := msg.Metadata.Get("correlation_id"); cid != "" {
		ctx = logging.ContextWithCorrelationID(ctx, cid)
	}
	log := logging.Ctx(ctx)

	var ev SwipeRecorded
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		// Undecodable payloads can never succeed; ack to drop.
		log.Error().Err(err).Str("message_id", msg.UUID).Msg("dropping undecodable swipe event")
		metrics.FeedbackEventsTotal.WithLabelValues("undecodable").Inc()
		msg.Ack()
		return
	}

	err := c.store.RecordSwipe(ctx, ev.UserID, recommend.Swipe{ItemID: ev.SpeakerID, Rating: ev.Rating})
	if err != nil {
		log.Error().Err(err).Int64("user_id", ev.UserID).Msg("failed to persist swipe")
		metrics.FeedbackEventsTotal.WithLabelValues("store_error").Inc()
		msg.Nack()
		return
	}

	c.recommender.InvalidateUser(ev.UserID)
	if _, err := c.recommender.Recommend(ctx, recommend.Request{UserID: ev.UserID, ForceRefresh: true}); err != nil {
		// The swipe is safely stored; recomputation will happen on the
		// next request or sweep.
		log.Warn().Err(err).Int64("user_id", ev.UserID).Msg("recompute after swipe failed")
		metrics.FeedbackEventsTotal.WithLabelValues("recompute_error").Inc()
		msg.Ack()
		return
	}

	metrics.FeedbackEventsTotal.WithLabelValues("ok").Inc()
	msg.Ack()
}

// String returns the service name for supervisor logging.
func (c *Consumer) String() string {
	return c.name
}
