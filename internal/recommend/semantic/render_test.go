// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

package semantic

import (
	"strings"
	"testing"

	"github.com/kerygma-labs/kerygma/internal/recommend"
)

func TestRenderSpeakerProfile(t *testing.T) {
	sp := recommend.Speaker{
		ID:     1,
		Name:   "Alice Shepherd",
		Bio:    "Twenty years of pastoral ministry.",
		Traits: []string{"Teaching style::Warm and conversational", "Gender::Female pastor"},
	}

	text := RenderSpeakerProfile(sp)

	for _, want := range []string{
		"Alice Shepherd",
		"Twenty years of pastoral ministry.",
		"Warm and conversational",
		"Female pastor",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("profile text should contain %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Teaching style::") {
		t.Error("group prefixes should be stripped from profile text")
	}

	// Deterministic: identical input, identical text.
	if again := RenderSpeakerProfile(sp); again != text {
		t.Error("profile rendering is not deterministic")
	}
}

func TestRenderSpeakerProfileDefaultsTopics(t *testing.T) {
	text := RenderSpeakerProfile(recommend.Speaker{ID: 2, Name: "Ben Carter"})
	if !strings.Contains(text, defaultTopics) {
		t.Error("profile without topics should carry the default topic text")
	}
}

func TestRenderUserNarrative(t *testing.T) {
	text := RenderUserNarrative(
		[]string{"Preaching method::Topical"},
		[]string{"Alice Shepherd"},
		[]string{"Ben Carter"},
	)

	if !strings.Contains(text, "Topical") {
		t.Errorf("narrative should mention stated preferences:\n%s", text)
	}
	if !strings.Contains(text, "positively rated: Alice Shepherd") {
		t.Errorf("narrative should name liked speakers:\n%s", text)
	}
	if !strings.Contains(text, "negatively rated: Ben Carter") {
		t.Errorf("narrative should name disliked speakers:\n%s", text)
	}
}

func TestRenderUserNarrativeMinimal(t *testing.T) {
	text := RenderUserNarrative(nil, nil, nil)
	if !strings.Contains(text, "Listener Preference Profile") {
		t.Errorf("even an empty narrative should carry the header:\n%s", text)
	}
	if strings.Contains(text, "positively rated") || strings.Contains(text, "negatively rated") {
		t.Error("narrative without feedback should not mention ratings")
	}
}

func TestJoinReadably(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{"a"}, "a"},
		{[]string{"a", "b"}, "a and b"},
		{[]string{"a", "b", "c"}, "a, b and c"},
	}
	for _, tt := range tests {
		if got := joinReadably(tt.in); got != tt.want {
			t.Errorf("joinReadably(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
