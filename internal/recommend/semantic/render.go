// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

package semantic

import (
	"strings"

	"github.com/kerygma-labs/kerygma/internal/recommend"
)

// defaultTopics fills in when a speaker lists no speaking topics, so every
// profile carries comparable thematic text.
const defaultTopics = "Faith, spiritual growth, Christian living, biblical wisdom, and practical discipleship"

// RenderSpeakerProfile turns a speaker record into the deterministic
// descriptive text that gets embedded. Identical records always produce
// identical text, so cached embeddings stay valid.
func RenderSpeakerProfile(sp recommend.Speaker) string {
	var b strings.Builder
	b.WriteString("Speaker Profile: ")
	b.WriteString(sp.Name)
	b.WriteString("\n\n")

	if sp.Bio != "" {
		b.WriteString("Background: ")
		b.WriteString(sp.Bio)
		b.WriteString("\n\n")
	}

	if len(sp.Traits) > 0 {
		b.WriteString("Ministry Characteristics: ")
		b.WriteString(sp.Name)
		b.WriteString(" is known for ")
		b.WriteString(joinReadably(traitValues(sp.Traits)))
		b.WriteString(".\n\n")
	}

	b.WriteString("Speaking Topics: ")
	b.WriteString(defaultTopics)
	b.WriteString("\n")
	return b.String()
}

// RenderUserNarrative turns a listener's stated preferences and feedback
// history into the descriptive text embedded as the query. Liked and
// disliked speaker names steer the embedding toward or away from similar
// profiles.
func RenderUserNarrative(traitChoices []string, likedNames, dislikedNames []string) string {
	var b strings.Builder
	b.WriteString("Listener Preference Profile\n\n")

	if len(traitChoices) > 0 {
		b.WriteString("Stated Preferences: This listener connects best with ")
		b.WriteString(joinReadably(traitValues(traitChoices)))
		b.WriteString(".\n\n")
	}

	if len(likedNames) > 0 {
		b.WriteString("Speakers the listener has positively rated: ")
		b.WriteString(strings.Join(likedNames, ", "))
		b.WriteString(". The listener enjoys content similar to these speakers and their teaching styles.\n\n")
	}
	if len(dislikedNames) > 0 {
		b.WriteString("Speakers the listener has negatively rated: ")
		b.WriteString(strings.Join(dislikedNames, ", "))
		b.WriteString(". The listener prefers content different from these speakers' approaches.\n\n")
	}
	if len(likedNames) > 0 || len(dislikedNames) > 0 {
		b.WriteString("Recommendations should prioritize speakers similar to those positively rated and avoid those similar to negatively rated speakers.\n")
	}
	return b.String()
}

// traitValues strips "Group::" prefixes so the narrative reads naturally.
func traitValues(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		if _, value, ok := strings.Cut(tok, "::"); ok {
			out[i] = value
		} else {
			out[i] = tok
		}
	}
	return out
}

func joinReadably(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
	}
}
