// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

package semantic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/kerygma-labs/kerygma/internal/logging"
	"github.com/kerygma-labs/kerygma/internal/metrics"
)

// ErrEncoderUnavailable wraps failures that should degrade the caller to
// the factorized path rather than surface to the listener.
var ErrEncoderUnavailable = errors.New("text encoder unavailable")

// ClientConfig configures the HTTP encoder client.
type ClientConfig struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int

	// RateLimit is requests per second; Burst is the bucket size.
	RateLimit float64
	Burst     int

	// BreakerMaxFailures consecutive failures open the breaker for
	// BreakerTimeout.
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
}

// HTTPEncoder calls a sentence-transformer service over HTTP. The wire
// format follows the OpenAI embeddings API shape, which local encoder
// servers also speak. Requests are rate limited and guarded by a circuit
// breaker so a degraded encoder cannot stall recommendation serving.
type HTTPEncoder struct {
	cfg     ClientConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[][]float32]
	log     zerolog.Logger

	dims int
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// NewHTTPEncoder creates an encoder client. dims is the expected vector
// dimensionality; responses with a different width are rejected.
func NewHTTPEncoder(cfg ClientConfig, dims int) *HTTPEncoder {
	log := logging.With().Str("component", "encoder_client").Logger()

	settings := gobreaker.Settings{
		Name:    "text-encoder",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.EncoderBreakerState.Set(breakerStateValue(to))
		},
	}

	return &HTTPEncoder{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker[[][]float32](settings),
		log:     log,
		dims:    dims,
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// Encode implements Encoder. Failures after retries, a tripped breaker, and
// context expiry all come back wrapped in ErrEncoderUnavailable.
func (e *HTTPEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	if err := e.limiter.Wait(ctx); err != nil {
		metrics.ObserveEncoder("rate_limited", start)
		return nil, fmt.Errorf("%w: rate limit wait: %w", ErrEncoderUnavailable, err)
	}

	result, err := e.breaker.Execute(func() ([][]float32, error) {
		return e.encodeWithRetry(ctx, texts)
	})
	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			metrics.ObserveEncoder("breaker_open", start)
		case errors.Is(err, context.DeadlineExceeded):
			metrics.ObserveEncoder("timeout", start)
		default:
			metrics.ObserveEncoder("error", start)
		}
		return nil, fmt.Errorf("%w: %w", ErrEncoderUnavailable, err)
	}

	metrics.ObserveEncoder("ok", start)
	return result, nil
}

func (e *HTTPEncoder) encodeWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 200 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			e.log.Debug().Int("attempt", attempt).Msg("retrying encoder call")
		}

		vectors, err := e.encodeOnce(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (e *HTTPEncoder) encodeOnce(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build encode request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("encoder call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("encoder returned status %d: %s", resp.StatusCode, payload)
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode encoder response: %w", err)
	}
	if len(decoded.Data) != len(texts) {
		return nil, fmt.Errorf("encoder returned %d vectors for %d inputs", len(decoded.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range decoded.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("encoder returned out-of-range index %d", d.Index)
		}
		if len(d.Embedding) != e.dims {
			return nil, fmt.Errorf("encoder returned %d-dimensional vector, want %d", len(d.Embedding), e.dims)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("encoder response missing vector for input %d", i)
		}
	}
	return out, nil
}

// Dimensions implements Encoder.
func (e *HTTPEncoder) Dimensions() int { return e.dims }

// Model implements Encoder.
func (e *HTTPEncoder) Model() string { return e.cfg.Model }

// Close implements Encoder.
func (e *HTTPEncoder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
