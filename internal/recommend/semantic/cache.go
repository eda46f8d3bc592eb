// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

package semantic

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/kerygma-labs/kerygma/internal/logging"
	"github.com/kerygma-labs/kerygma/internal/metrics"
)

// EmbedCache is a content-addressed, on-disk cache for speaker embeddings.
// Keys hash the model identifier together with the rendered profile text,
// so a model change or any profile edit naturally misses. Entries that
// decode to the wrong model or width are rejected and treated as misses.
type EmbedCache struct {
	db    *badger.DB
	model string
	dims  int
	log   zerolog.Logger
}

// cacheEntry is the stored value format.
type cacheEntry struct {
	Model  string
	Dims   int
	Vector []float32
}

// OpenEmbedCache opens (or creates) the cache at dir for the given model
// and vector width.
func OpenEmbedCache(dir, model string, dims int) (*EmbedCache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	return &EmbedCache{
		db:    db,
		model: model,
		dims:  dims,
		log:   logging.With().Str("component", "embed_cache").Logger(),
	}, nil
}

// Key returns the content-addressed cache key for a rendered text.
func (c *EmbedCache) Key(text string) string {
	h := sha256.New()
	h.Write([]byte(c.model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached embedding for a text, or found=false on a miss.
// Corrupt or mismatched entries count as misses and are deleted.
func (c *EmbedCache) Get(text string) ([]float32, bool) {
	key := []byte(c.Key(text))

	var entry cacheEntry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&entry)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.log.Warn().Err(err).Msg("dropping unreadable cache entry")
			metrics.EmbedCacheRejects.Inc()
			c.delete(key)
		}
		metrics.EmbedCacheMisses.Inc()
		return nil, false
	}

	if entry.Model != c.model || entry.Dims != c.dims || len(entry.Vector) != c.dims {
		c.log.Warn().
			Str("entry_model", entry.Model).
			Int("entry_dims", entry.Dims).
			Msg("dropping stale cache entry")
		metrics.EmbedCacheRejects.Inc()
		c.delete(key)
		metrics.EmbedCacheMisses.Inc()
		return nil, false
	}

	metrics.EmbedCacheHits.Inc()
	return entry.Vector, true
}

// Put stores an embedding for a text.
func (c *EmbedCache) Put(text string, vector []float32) error {
	if len(vector) != c.dims {
		return fmt.Errorf("embedding has %d dimensions, cache expects %d", len(vector), c.dims)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cacheEntry{Model: c.model, Dims: c.dims, Vector: vector}); err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	key := []byte(c.Key(text))
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

func (c *EmbedCache) delete(key []byte) {
	_ = c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Close closes the underlying store.
func (c *EmbedCache) Close() error {
	return c.db.Close()
}
