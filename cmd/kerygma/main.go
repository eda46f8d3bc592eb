// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

// Command kerygma runs the speaker recommendation engine.
//
// Subcommands:
//
//	artifact-info  print metadata of a trained embedding artifact
//	recommend      compute recommendations for one listener
//	swipe          record a rating and refresh the listener's record
//	worker         run the supervised feedback worker
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/kerygma-labs/kerygma/internal/config"
	"github.com/kerygma-labs/kerygma/internal/feedback"
	"github.com/kerygma-labs/kerygma/internal/logging"
	"github.com/kerygma-labs/kerygma/internal/metrics"
	"github.com/kerygma-labs/kerygma/internal/recommend"
	"github.com/kerygma-labs/kerygma/internal/recommend/artifact"
	"github.com/kerygma-labs/kerygma/internal/recommend/factor"
	"github.com/kerygma-labs/kerygma/internal/recommend/semantic"
	"github.com/kerygma-labs/kerygma/internal/store"
)

// encoderDims matches the sentence-transformer models the trainer exports
// alongside; all-MiniLM-L6-v2 produces 384-wide vectors.
const encoderDims = 384

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	switch os.Args[1] {
	case "artifact-info":
		err = runArtifactInfo(cfg, os.Args[2:])
	case "recommend":
		err = runRecommend(cfg, os.Args[2:])
	case "swipe":
		err = runSwipe(cfg, os.Args[2:])
	case "worker":
		err = runWorker(cfg)
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		logging.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kerygma <artifact-info|recommend|swipe|worker> [flags]")
}

func runArtifactInfo(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("artifact-info", flag.ExitOnError)
	path := fs.String("path", cfg.Artifact.Path, "artifact file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	meta, err := artifact.ReadMetadata(*path)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runRecommend(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("recommend", flag.ExitOnError)
	userID := fs.Int64("user", 0, "listener id")
	limit := fs.Int("limit", 0, "result count (0 = default)")
	traits := fs.String("traits", "", "comma-separated trait selections")
	detailed := fs.Bool("detailed", false, "include explanation fields")
	force := fs.Bool("force", false, "bypass freshness window")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == 0 {
		return fmt.Errorf("-user is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = logging.ContextWithNewCorrelationID(ctx)

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	req := recommend.Request{
		UserID:       *userID,
		Limit:        *limit,
		Detailed:     *detailed,
		ForceRefresh: *force,
	}
	if *traits != "" {
		for _, tok := range strings.Split(*traits, ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				req.TraitChoices = append(req.TraitChoices, tok)
			}
		}
	}

	resp, err := app.engine.Recommend(ctx, req)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// runSwipe records one rating through the event pipeline: it publishes a
// SwipeRecorded event and runs the consumer in-process until the swipe is
// persisted and the listener's record refreshed.
func runSwipe(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("swipe", flag.ExitOnError)
	userID := fs.Int64("user", 0, "listener id")
	speakerID := fs.Int64("speaker", 0, "speaker id")
	rating := fs.Float64("rating", 0, "rating, 1 to 5")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == 0 || *speakerID == 0 {
		return fmt.Errorf("-user and -speaker are required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = logging.ContextWithNewCorrelationID(ctx)

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	defer func() { _ = pubsub.Close() }()

	consumerCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		_ = feedback.NewConsumer(pubsub, app.store, app.engine).Serve(consumerCtx)
	}()

	published := time.Now()
	err = feedback.NewPublisher(pubsub).PublishSwipe(ctx, feedback.SwipeRecorded{
		UserID:     *userID,
		SpeakerID:  *speakerID,
		Rating:     *rating,
		OccurredAt: published,
	})
	if err != nil {
		return err
	}

	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("timed out waiting for swipe to be processed")
		case <-tick.C:
			rec, err := app.store.Record(ctx, *userID)
			if err != nil {
				return err
			}
			if rec == nil || !rec.UpdatedAt.After(published) {
				continue
			}
			out, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}
	}
}

func runWorker(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	// The pub/sub is in-process; producers share it when the engine is
	// embedded as a library, and the swipe subcommand runs its own loop.
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	defer func() { _ = pubsub.Close() }()

	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
	root := suture.New("kerygma", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})

	root.Add(feedback.NewConsumer(pubsub, app.store, app.engine))
	root.Add(feedback.NewSweepService(app.store, app.engine, feedback.SweepConfig{
		Interval: cfg.Worker.SweepInterval,
		MaxAge:   cfg.Engine.RefreshWindow,
	}))

	logging.Info().Msg("feedback worker starting")
	err = root.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// app bundles the wired engine and its resources.
type app struct {
	engine *recommend.Engine
	store  *store.Store
	cache  *semantic.EmbedCache
	enc    semantic.Encoder
}

func (a *app) close() {
	if a.enc != nil {
		_ = a.enc.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// buildApp loads the artifact, opens the stores, and wires both scoring
// paths into the engine. A missing or corrupt artifact disables the factor
// path and trait validation but is not fatal: the engine still serves the
// semantic path and the curated fallback.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	var (
		scorer   recommend.Scorer
		resolver recommend.TraitResolver
	)
	art, err := artifact.Load(cfg.Artifact.Path)
	if err != nil {
		logging.Warn().Err(err).Str("path", cfg.Artifact.Path).
			Msg("artifact unavailable, factor path disabled")
	} else {
		meta := art.Metadata()
		checksum := meta.Checksum
		if len(checksum) > 12 {
			checksum = checksum[:12]
		}
		metrics.ArtifactInfo.WithLabelValues(strconv.Itoa(meta.FormatVersion), checksum).Set(1)
		logging.Info().
			Str("checksum", meta.Checksum).
			Int("dim", meta.Dim).
			Int("items", meta.ItemCount).
			Int("traits", meta.TraitCount).
			Msg("artifact loaded")

		scorer = factor.New(art, factor.Config{
			Alpha:         cfg.Engine.Alpha,
			DislikeWeight: cfg.Engine.DislikeWeight,
			LikeThreshold: cfg.Engine.LikeThreshold,
			DefaultK:      cfg.Engine.DefaultK,
			MaxK:          cfg.Engine.MaxK,
		})
		resolver = art.Vocabulary()
	}

	st, err := store.Open(ctx, store.Config{
		Path:    cfg.Store.Path,
		Threads: cfg.Store.Threads,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	enc := semantic.NewHTTPEncoder(semantic.ClientConfig{
		BaseURL:            cfg.Encoder.BaseURL,
		Model:              cfg.Encoder.Model,
		Timeout:            cfg.Encoder.Timeout,
		MaxRetries:         cfg.Encoder.MaxRetries,
		RateLimit:          cfg.Encoder.RateLimit,
		Burst:              cfg.Encoder.Burst,
		BreakerMaxFailures: cfg.Encoder.BreakerMaxFailures,
		BreakerTimeout:     cfg.Encoder.BreakerTimeout,
	}, encoderDims)

	cache, err := semantic.OpenEmbedCache(cfg.Cache.Dir, cfg.Encoder.Model, encoderDims)
	if err != nil {
		logging.Warn().Err(err).Msg("embedding cache unavailable, running uncached")
		cache = nil
	}

	ranker := semantic.NewRanker(enc, cache, st, semantic.Config{
		LikeThreshold: cfg.Engine.LikeThreshold,
		DefaultK:      cfg.Engine.DefaultK,
		MaxK:          cfg.Engine.MaxK,
	})

	engine := recommend.NewEngine(scorer, ranker, st, resolver, recommend.EngineConfig{
		PrimaryPath:   cfg.Engine.PrimaryPath,
		CacheTTL:      cfg.Engine.CacheTTL,
		RefreshWindow: cfg.Engine.RefreshWindow,
		DefaultK:      cfg.Engine.DefaultK,
		MaxK:          cfg.Engine.MaxK,
	})

	return &app{engine: engine, store: st, cache: cache, enc: enc}, nil
}
