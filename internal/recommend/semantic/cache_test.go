// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

package semantic

import (
	"testing"
)

func TestEmbedCacheRoundTrip(t *testing.T) {
	cache, err := OpenEmbedCache(t.TempDir(), "all-MiniLM-L6-v2", 3)
	if err != nil {
		t.Fatalf("OpenEmbedCache failed: %v", err)
	}
	defer func() { _ = cache.Close() }()

	vec := []float32{0.1, -0.5, 0.9}
	if err := cache.Put("some profile text", vec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok := cache.Get("some profile text")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != 3 || got[0] != vec[0] || got[1] != vec[1] || got[2] != vec[2] {
		t.Errorf("Get = %v, want %v", got, vec)
	}
}

func TestEmbedCacheMiss(t *testing.T) {
	cache, err := OpenEmbedCache(t.TempDir(), "all-MiniLM-L6-v2", 3)
	if err != nil {
		t.Fatalf("OpenEmbedCache failed: %v", err)
	}
	defer func() { _ = cache.Close() }()

	if _, ok := cache.Get("never stored"); ok {
		t.Error("expected cache miss for unknown text")
	}
}

func TestEmbedCachePutRejectsWrongWidth(t *testing.T) {
	cache, err := OpenEmbedCache(t.TempDir(), "all-MiniLM-L6-v2", 3)
	if err != nil {
		t.Fatalf("OpenEmbedCache failed: %v", err)
	}
	defer func() { _ = cache.Close() }()

	if err := cache.Put("text", []float32{1, 2}); err == nil {
		t.Error("Put should reject a vector of the wrong width")
	}
}

func TestEmbedCacheRejectsStaleModel(t *testing.T) {
	dir := t.TempDir()

	old, err := OpenEmbedCache(dir, "old-model", 3)
	if err != nil {
		t.Fatalf("OpenEmbedCache failed: %v", err)
	}
	if err := old.Put("profile text", []float32{1, 2, 3}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := old.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Re-open under a new model. The old entry keys differently, but even a
	// colliding entry would be rejected by the stored model tag; either way
	// the lookup is a miss.
	fresh, err := OpenEmbedCache(dir, "new-model", 3)
	if err != nil {
		t.Fatalf("OpenEmbedCache failed: %v", err)
	}
	defer func() { _ = fresh.Close() }()

	if _, ok := fresh.Get("profile text"); ok {
		t.Error("entry written under a different model must not hit")
	}
}

func TestEmbedCacheKeyIsContentAddressed(t *testing.T) {
	cache, err := OpenEmbedCache(t.TempDir(), "m", 3)
	if err != nil {
		t.Fatalf("OpenEmbedCache failed: %v", err)
	}
	defer func() { _ = cache.Close() }()

	if cache.Key("a") == cache.Key("b") {
		t.Error("different texts must key differently")
	}
	if cache.Key("a") != cache.Key("a") {
		t.Error("identical texts must key identically")
	}
}
