// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

package factor

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/kerygma-labs/kerygma/internal/recommend"
	"github.com/kerygma-labs/kerygma/internal/recommend/artifact"
	"github.com/kerygma-labs/kerygma/internal/recommend/vocab"
)

// testArtifact builds a fixed toy artifact: 2 dimensions, 4 speakers,
// 2 real traits plus the reserved fallback. All expectations in this file
// were computed by hand from these numbers.
func testArtifact(t *testing.T) *artifact.Artifact {
	t.Helper()
	a, err := artifact.New(artifact.Tables{
		Dim:        2,
		GlobalBias: 0.1,
		Users:      [][]float64{{0.1, 0.2}},
		UserBias:   []float64{0.0},
		UserIDs:    []int64{7},
		Items: [][]float64{
			{0.2, 0.0},  // speaker 44, trait 0 -> vector [1.2, 0]
			{0.0, 0.2},  // speaker 48, trait 1 -> vector [0, 1.2]
			{0.1, 0.1},  // speaker 51, traits 0,1 -> vector [0.6, 0.6]
			{0.3, -0.1}, // speaker 53, trait 1 -> vector [0.3, 0.9]
		},
		ItemBias: []float64{0.05, -0.05, 0.0, 0.02},
		ItemIDs:  []int64{44, 48, 51, 53},
		ItemTraitIDs: [][]int{
			{0},
			{1},
			{0, 1},
			{1},
		},
		Traits: [][]float64{
			{1, 0},
			{0, 1},
			{0, 0},
		},
		TraitTokens: map[string]int{
			"Gender::Female pastor":     0,
			"Preaching method::Topical": 1,
			vocab.UnknownTraitToken:     2,
		},
		TrainedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}, artifact.Metadata{})
	if err != nil {
		t.Fatalf("building test artifact: %v", err)
	}
	return a
}

func vecAlmostEqual(a, b []float64, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

func TestPreferenceVector(t *testing.T) {
	s := New(testArtifact(t), DefaultConfig())

	p, ids, err := s.PreferenceVector([]string{"Gender::Female pastor", "Preaching method::Topical"})
	if err != nil {
		t.Fatalf("PreferenceVector failed: %v", err)
	}
	if !vecAlmostEqual(p, []float64{0.5, 0.5}, 1e-12) {
		t.Errorf("preference vector = %v, want [0.5 0.5]", p)
	}
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 1 {
		t.Errorf("trait ids = %v, want [0 1]", ids)
	}

	empty, _, err := s.PreferenceVector(nil)
	if err != nil {
		t.Fatalf("PreferenceVector(nil) failed: %v", err)
	}
	if !vecAlmostEqual(empty, []float64{0, 0}, 0) {
		t.Errorf("empty selection should give zero vector, got %v", empty)
	}
}

func TestPreferenceVectorUnknownTrait(t *testing.T) {
	s := New(testArtifact(t), DefaultConfig())

	_, _, err := s.PreferenceVector([]string{"Gender::Female pastor", "Expository"})
	if err == nil {
		t.Fatal("expected validation error for unknown trait")
	}
	var unknownErr *vocab.UnknownTraitError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("expected *vocab.UnknownTraitError, got %T", err)
	}
	if len(unknownErr.Tokens) != 1 || unknownErr.Tokens[0] != "Expository" {
		t.Errorf("error should name the offending token, got %v", unknownErr.Tokens)
	}
}

func TestBehaviorVector(t *testing.T) {
	s := New(testArtifact(t), DefaultConfig())

	tests := []struct {
		name   string
		swipes []recommend.Swipe
		want   []float64
	}{
		{
			name: "one like one dislike",
			swipes: []recommend.Swipe{
				{ItemID: 44, Rating: 5},
				{ItemID: 48, Rating: 2},
			},
			// [1.2, 0] - 0.5*[0, 1.2]
			want: []float64{1.2, -0.6},
		},
		{
			name:   "likes only",
			swipes: []recommend.Swipe{{ItemID: 44, Rating: 4}},
			want:   []float64{1.2, 0},
		},
		{
			name:   "dislikes only",
			swipes: []recommend.Swipe{{ItemID: 48, Rating: 1}},
			want:   []float64{0, -0.6},
		},
		{
			name:   "rating at threshold counts as like",
			swipes: []recommend.Swipe{{ItemID: 48, Rating: 4.0}},
			want:   []float64{0, 1.2},
		},
		{
			name: "unknown item skipped",
			swipes: []recommend.Swipe{
				{ItemID: 9999, Rating: 5},
				{ItemID: 44, Rating: 5},
			},
			want: []float64{1.2, 0},
		},
		{
			name:   "no swipes",
			swipes: nil,
			want:   []float64{0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.BehaviorVector(tt.swipes)
			if !vecAlmostEqual(got, tt.want, 1e-12) {
				t.Errorf("BehaviorVector = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBlend(t *testing.T) {
	s := New(testArtifact(t), DefaultConfig())

	q := s.Blend([]float64{1.2, -0.6}, []float64{0.5, 0.5})
	if !vecAlmostEqual(q, []float64{0.92, -0.16}, 1e-12) {
		t.Errorf("Blend = %v, want [0.92 -0.16]", q)
	}
}

func TestScoreGolden(t *testing.T) {
	s := New(testArtifact(t), DefaultConfig())

	resp, err := s.Score(context.Background(), recommend.Request{
		UserID:       7,
		TraitChoices: []string{"Gender::Female pastor", "Preaching method::Topical"},
		Swipes: []recommend.Swipe{
			{ItemID: 44, Rating: 5},
			{ItemID: 48, Rating: 2},
		},
		Limit: 2,
	})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	// q = [0.92, -0.16]; rated speakers 44 and 48 are excluded.
	// speaker 51: dot([0.92,-0.16],[0.6,0.6])/sqrt(2) + 0.1 + 0.00
	// speaker 53: dot([0.92,-0.16],[0.3,0.9])/sqrt(2) + 0.1 + 0.02
	want := []struct {
		itemID int64
		score  float64
	}{
		{51, 0.456/math.Sqrt2 + 0.1},
		{53, 0.132/math.Sqrt2 + 0.12},
	}

	if len(resp.Recommendations) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(resp.Recommendations))
	}
	for i, w := range want {
		got := resp.Recommendations[i]
		if got.ItemID != w.itemID {
			t.Errorf("rank %d: item %d, want %d", i, got.ItemID, w.itemID)
		}
		if math.Abs(got.Score-w.score) > 1e-9 {
			t.Errorf("rank %d: score %.9f, want %.9f", i, got.Score, w.score)
		}
	}
	if resp.Path != "factor" {
		t.Errorf("path = %q, want \"factor\"", resp.Path)
	}
}

func TestScoreColdStart(t *testing.T) {
	s := New(testArtifact(t), DefaultConfig())

	resp, err := s.Score(context.Background(), recommend.Request{UserID: 7})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	// With a zero query vector, scores reduce to global + item bias, so
	// the ranking is by item bias: 44 (0.15), 53 (0.12), 51 (0.10), 48 (0.05).
	wantOrder := []int64{44, 53, 51, 48}
	if len(resp.Recommendations) != len(wantOrder) {
		t.Fatalf("expected %d recommendations, got %d", len(wantOrder), len(resp.Recommendations))
	}
	for i, id := range wantOrder {
		if resp.Recommendations[i].ItemID != id {
			t.Errorf("rank %d: item %d, want %d", i, resp.Recommendations[i].ItemID, id)
		}
	}
}

func TestScoreExclusions(t *testing.T) {
	s := New(testArtifact(t), DefaultConfig())

	resp, err := s.Score(context.Background(), recommend.Request{
		UserID:         7,
		ExcludeItemIDs: []int64{44, 51},
	})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	for _, rec := range resp.Recommendations {
		if rec.ItemID == 44 || rec.ItemID == 51 {
			t.Errorf("excluded speaker %d appeared in results", rec.ItemID)
		}
	}
	if len(resp.Recommendations) != 2 {
		t.Errorf("expected 2 recommendations after exclusion, got %d", len(resp.Recommendations))
	}
}

func TestScoreAllowedSet(t *testing.T) {
	s := New(testArtifact(t), DefaultConfig())

	resp, err := s.Score(context.Background(), recommend.Request{
		UserID:         7,
		AllowedItemIDs: []int64{48, 53},
	})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if len(resp.Recommendations) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(resp.Recommendations))
	}
	for _, rec := range resp.Recommendations {
		if rec.ItemID != 48 && rec.ItemID != 53 {
			t.Errorf("speaker %d outside the allow set appeared in results", rec.ItemID)
		}
	}
}

func TestScoreEmptyPool(t *testing.T) {
	s := New(testArtifact(t), DefaultConfig())

	// Every allowed speaker is already rated, so nothing is scoreable.
	resp, err := s.Score(context.Background(), recommend.Request{
		UserID:         7,
		Swipes:         []recommend.Swipe{{ItemID: 44, Rating: 5}},
		AllowedItemIDs: []int64{44},
	})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if len(resp.Recommendations) != 0 {
		t.Errorf("expected empty result, got %v", resp.Recommendations)
	}
}

func TestScoreLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultK = 3
	cfg.MaxK = 3
	s := New(testArtifact(t), cfg)

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero limit uses default", 0, 3},
		{"limit above max is capped", 10, 3},
		{"explicit limit honored", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.Score(context.Background(), recommend.Request{UserID: 7, Limit: tt.limit})
			if err != nil {
				t.Fatalf("Score failed: %v", err)
			}
			if len(resp.Recommendations) != tt.want {
				t.Errorf("got %d recommendations, want %d", len(resp.Recommendations), tt.want)
			}
		})
	}
}

func TestScoreDetailed(t *testing.T) {
	s := New(testArtifact(t), DefaultConfig())

	resp, err := s.Score(context.Background(), recommend.Request{
		UserID:       7,
		TraitChoices: []string{"Gender::Female pastor", "Preaching method::Topical"},
		Swipes: []recommend.Swipe{
			{ItemID: 44, Rating: 5},
			{ItemID: 48, Rating: 2},
		},
		Limit:    2,
		Detailed: true,
	})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if len(resp.Detailed) != 2 {
		t.Fatalf("expected 2 detailed entries, got %d", len(resp.Detailed))
	}

	// speaker 51's trait-pooled content vector is [0.5, 0.5], identical to
	// the preference vector, so the cosine is exactly 1.
	first := resp.Detailed[0]
	if first.ItemID != 51 {
		t.Fatalf("first detailed entry is speaker %d, want 51", first.ItemID)
	}
	if math.Abs(first.ContentCosine-1.0) > 1e-12 {
		t.Errorf("content cosine = %v, want 1.0", first.ContentCosine)
	}
	if len(first.TopTraits) != 2 {
		t.Fatalf("expected 2 top traits for speaker 51, got %v", first.TopTraits)
	}
	// Both traits align equally (0.5); stable sort keeps item trait order.
	if first.TopTraits[0] != "Gender::Female pastor" || first.TopTraits[1] != "Preaching method::Topical" {
		t.Errorf("top traits = %v", first.TopTraits)
	}

	second := resp.Detailed[1]
	if second.ItemID != 53 {
		t.Fatalf("second detailed entry is speaker %d, want 53", second.ItemID)
	}
	if len(second.TopTraits) != 1 || second.TopTraits[0] != "Preaching method::Topical" {
		t.Errorf("top traits for speaker 53 = %v", second.TopTraits)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	s := New(testArtifact(t), DefaultConfig())
	req := recommend.Request{
		UserID:       7,
		TraitChoices: []string{"Female pastor"},
		Swipes:       []recommend.Swipe{{ItemID: 48, Rating: 1}},
	}

	first, err := s.Score(context.Background(), req)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := s.Score(context.Background(), req)
		if err != nil {
			t.Fatalf("Score failed on repeat %d: %v", i, err)
		}
		if len(again.Recommendations) != len(first.Recommendations) {
			t.Fatalf("result length changed between runs")
		}
		for j := range again.Recommendations {
			if again.Recommendations[j] != first.Recommendations[j] {
				t.Fatalf("run %d differs at rank %d: %+v vs %+v",
					i, j, again.Recommendations[j], first.Recommendations[j])
			}
		}
	}
}
