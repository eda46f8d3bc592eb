// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

package semantic

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/kerygma-labs/kerygma/internal/recommend"
)

// fakeEncoder returns a fixed vector per known text substring, letting
// tests steer similarity without a real model.
type fakeEncoder struct {
	vectors map[string][]float32 // substring -> vector
	deflt   []float32
	fail    bool
	calls   int
}

func (f *fakeEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.fail {
		return nil, ErrEncoderUnavailable
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = f.deflt
		for sub, vec := range f.vectors {
			if strings.Contains(text, sub) {
				out[i] = vec
				break
			}
		}
	}
	return out, nil
}

func (f *fakeEncoder) Dimensions() int { return 3 }
func (f *fakeEncoder) Model() string   { return "fake-model" }
func (f *fakeEncoder) Close() error    { return nil }

// fakeStore serves a fixed speaker roster.
type fakeStore struct {
	speakers []recommend.Speaker
}

func (f *fakeStore) Swipes(context.Context, int64) ([]recommend.Swipe, error) { return nil, nil }
func (f *fakeStore) Record(context.Context, int64) (*recommend.Record, error) { return nil, nil }
func (f *fakeStore) UpsertRecord(context.Context, recommend.Record) error     { return nil }
func (f *fakeStore) Speakers(context.Context) ([]recommend.Speaker, error) {
	return f.speakers, nil
}
func (f *fakeStore) CuratedSpeakers(context.Context) ([]recommend.Speaker, error) {
	return f.speakers, nil
}
func (f *fakeStore) SpeakerNames(_ context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string)
	for _, sp := range f.speakers {
		out[sp.ID] = sp.Name
	}
	return out, nil
}

func testRoster() []recommend.Speaker {
	return []recommend.Speaker{
		{ID: 1, Name: "Alice Shepherd", Bio: "Expository teacher", Servable: true},
		{ID: 2, Name: "Ben Carter", Bio: "Topical storyteller", Servable: true},
		{ID: 3, Name: "Carol Diaz", Bio: "Youth ministry", Servable: true},
		{ID: 4, Name: "Hidden Speaker", Servable: false},
	}
}

func testRankerConfig() Config {
	return Config{LikeThreshold: 4.0, DefaultK: 10, MaxK: 50}
}

func newTestRanker(enc Encoder) *Ranker {
	return NewRanker(enc, nil, &fakeStore{speakers: testRoster()}, testRankerConfig())
}

func TestRankOrdersBySimilarity(t *testing.T) {
	enc := &fakeEncoder{
		vectors: map[string][]float32{
			"Alice Shepherd":              {1, 0, 0},
			"Ben Carter":                  {0.9, 0.1, 0},
			"Carol Diaz":                  {0, 0, 1},
			"Listener Preference Profile": {1, 0, 0},
		},
		deflt: []float32{0, 1, 0},
	}
	r := newTestRanker(enc)

	resp, err := r.Rank(context.Background(), recommend.Request{UserID: 7, Limit: 3})
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if len(resp.Recommendations) != 3 {
		t.Fatalf("expected 3 recommendations, got %d", len(resp.Recommendations))
	}

	wantOrder := []int64{1, 2, 3}
	for i, id := range wantOrder {
		if resp.Recommendations[i].ItemID != id {
			t.Errorf("rank %d: speaker %d, want %d", i, resp.Recommendations[i].ItemID, id)
		}
	}
	if resp.Recommendations[0].Name != "Alice Shepherd" {
		t.Errorf("names should be populated, got %q", resp.Recommendations[0].Name)
	}
	if resp.Path != "semantic" {
		t.Errorf("path = %q, want \"semantic\"", resp.Path)
	}
}

func TestRankExcludesUnservable(t *testing.T) {
	enc := &fakeEncoder{deflt: []float32{1, 0, 0}}
	r := newTestRanker(enc)

	resp, err := r.Rank(context.Background(), recommend.Request{UserID: 7})
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	for _, rec := range resp.Recommendations {
		if rec.ItemID == 4 {
			t.Error("unservable speaker appeared in results")
		}
	}
}

func TestRankAppliesFeedbackAdjustment(t *testing.T) {
	// All speakers equally similar; feedback must decide the order.
	enc := &fakeEncoder{deflt: []float32{1, 0, 0}}
	r := newTestRanker(enc)

	resp, err := r.Rank(context.Background(), recommend.Request{
		UserID: 7,
		Swipes: []recommend.Swipe{
			{ItemID: 2, Rating: 5}, // +0.15
			{ItemID: 1, Rating: 1}, // -0.20
		},
	})
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if len(resp.Recommendations) != 3 {
		t.Fatalf("expected 3 recommendations, got %d", len(resp.Recommendations))
	}
	if resp.Recommendations[0].ItemID != 2 {
		t.Errorf("thumbed-up speaker should rank first, got %d", resp.Recommendations[0].ItemID)
	}
	if resp.Recommendations[2].ItemID != 1 {
		t.Errorf("thumbed-down speaker should rank last, got %d", resp.Recommendations[2].ItemID)
	}

	boost := resp.Recommendations[0].Score - resp.Recommendations[1].Score
	if math.Abs(boost-likeBoost) > 1e-9 {
		t.Errorf("like boost = %v, want %v", boost, likeBoost)
	}
	penalty := resp.Recommendations[1].Score - resp.Recommendations[2].Score
	if math.Abs(penalty-dislikePenalty) > 1e-9 {
		t.Errorf("dislike penalty = %v, want %v", penalty, dislikePenalty)
	}
}

func TestLearningAdjustmentClamped(t *testing.T) {
	r := newTestRanker(&fakeEncoder{deflt: []float32{1, 0, 0}})

	tests := []struct {
		name   string
		swipes []recommend.Swipe
		want   float64
	}{
		{
			name:   "single like",
			swipes: []recommend.Swipe{{ItemID: 1, Rating: 5}},
			want:   likeBoost,
		},
		{
			name:   "single dislike",
			swipes: []recommend.Swipe{{ItemID: 1, Rating: 1}},
			want:   -dislikePenalty,
		},
		{
			name: "many likes clamp at cap",
			swipes: []recommend.Swipe{
				{ItemID: 1, Rating: 5}, {ItemID: 1, Rating: 5},
				{ItemID: 1, Rating: 5}, {ItemID: 1, Rating: 5},
			},
			want: adjustmentCap,
		},
		{
			name: "many dislikes clamp at negative cap",
			swipes: []recommend.Swipe{
				{ItemID: 1, Rating: 1}, {ItemID: 1, Rating: 1},
				{ItemID: 1, Rating: 2},
			},
			want: -adjustmentCap,
		},
		{
			name:   "other speakers do not contribute",
			swipes: []recommend.Swipe{{ItemID: 2, Rating: 5}, {ItemID: 3, Rating: 1}},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.learningAdjustment(1, tt.swipes)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("learningAdjustment = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRankEncoderFailure(t *testing.T) {
	r := newTestRanker(&fakeEncoder{fail: true})

	_, err := r.Rank(context.Background(), recommend.Request{UserID: 7})
	if err == nil {
		t.Fatal("expected error when encoder is down")
	}
	if !errors.Is(err, ErrEncoderUnavailable) {
		t.Errorf("error should wrap ErrEncoderUnavailable, got %v", err)
	}
}

func TestRankRespectsAllowAndExclude(t *testing.T) {
	enc := &fakeEncoder{deflt: []float32{1, 0, 0}}
	r := newTestRanker(enc)

	resp, err := r.Rank(context.Background(), recommend.Request{
		UserID:         7,
		AllowedItemIDs: []int64{1, 2},
		ExcludeItemIDs: []int64{2},
	})
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if len(resp.Recommendations) != 1 || resp.Recommendations[0].ItemID != 1 {
		t.Errorf("expected only speaker 1, got %v", resp.Recommendations)
	}
}

func TestRankUsesCache(t *testing.T) {
	enc := &fakeEncoder{deflt: []float32{1, 0, 0}}
	cache, err := OpenEmbedCache(t.TempDir(), enc.Model(), enc.Dimensions())
	if err != nil {
		t.Fatalf("OpenEmbedCache failed: %v", err)
	}
	defer func() { _ = cache.Close() }()

	r := NewRanker(enc, cache, &fakeStore{speakers: testRoster()}, testRankerConfig())

	if _, err := r.Rank(context.Background(), recommend.Request{UserID: 7}); err != nil {
		t.Fatalf("first Rank failed: %v", err)
	}
	callsAfterFirst := enc.calls

	if _, err := r.Rank(context.Background(), recommend.Request{UserID: 7}); err != nil {
		t.Fatalf("second Rank failed: %v", err)
	}

	// Second pass should only encode the user narrative, not the profiles.
	if enc.calls != callsAfterFirst+1 {
		t.Errorf("expected exactly one encode call on warm cache, got %d extra", enc.calls-callsAfterFirst)
	}
}
