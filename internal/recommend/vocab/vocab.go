// Kerygma - Speaker Recommendation Engine for Sermon Directories
// Copyright 2026 Kerygma Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerygma-labs/kerygma

// Package vocab maps canonical trait tokens to the dense integer ids used by
// the embedding tables. Tokens have the form "Group::Value"; resolution works
// on the value portion only so bare values remain accepted. The vocabulary is
// built once when a trained artifact loads and is read-only afterward.
package vocab

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// UnknownTraitToken is the reserved fallback trait assigned during training
// to any item that lists no traits. It never matches a user selection.
const UnknownTraitToken = "__UNK__"

// Trait is an immutable pairing of a canonical token and its embedding row id.
type Trait struct {
	Token string
	ID    int
}

// ValuePart returns the value portion of the token, with any "Group::"
// prefix removed.
func (t Trait) ValuePart() string {
	return valuePart(t.Token)
}

// UnknownTraitError reports trait selections that could not be resolved.
type UnknownTraitError struct {
	Tokens []string
}

func (e *UnknownTraitError) Error() string {
	return fmt.Sprintf("unknown trait value(s): %s", strings.Join(e.Tokens, ", "))
}

// Vocabulary resolves trait tokens and bare values to trait ids.
type Vocabulary struct {
	traits  []Trait
	byID    map[int]Trait
	exact   map[string]int // normalized value -> trait id
	loose   map[string]int // comma-stripped normalized value -> trait id
	hasUnk  bool
	unknown int
}

// New builds a Vocabulary from token-to-id pairs. Lookup tables are keyed by
// the normalized value portion of each token. When several tokens share a
// value, the one with the lowest trait id wins, so repeated builds over the
// same artifact resolve ambiguity identically.
func New(tokens map[string]int) *Vocabulary {
	v := &Vocabulary{
		traits:  make([]Trait, 0, len(tokens)),
		byID:    make(map[int]Trait, len(tokens)),
		exact:   make(map[string]int, len(tokens)),
		loose:   make(map[string]int, len(tokens)),
		unknown: -1,
	}

	for tok, id := range tokens {
		v.traits = append(v.traits, Trait{Token: tok, ID: id})
	}
	sort.Slice(v.traits, func(i, j int) bool { return v.traits[i].ID < v.traits[j].ID })

	for _, t := range v.traits {
		v.byID[t.ID] = t
		if t.Token == UnknownTraitToken {
			v.hasUnk = true
			v.unknown = t.ID
			continue
		}
		exact := Normalize(t.ValuePart())
		if _, ok := v.exact[exact]; !ok {
			v.exact[exact] = t.ID
		}
		loose := stripCommas(exact)
		if _, ok := v.loose[loose]; !ok {
			v.loose[loose] = t.ID
		}
	}

	return v
}

// Len reports the number of traits, including the reserved fallback trait.
func (v *Vocabulary) Len() int { return len(v.traits) }

// Traits returns all traits in ascending id order. The returned slice is
// shared; callers must not mutate it.
func (v *Vocabulary) Traits() []Trait { return v.traits }

// ByID returns the trait with the given id.
func (v *Vocabulary) ByID(id int) (Trait, bool) {
	t, ok := v.byID[id]
	return t, ok
}

// HasUnknownTrait reports whether the reserved fallback trait is present.
func (v *Vocabulary) HasUnknownTrait() bool { return v.hasUnk }

// UnknownTraitID returns the id of the reserved fallback trait, or -1 when
// the vocabulary does not carry one.
func (v *Vocabulary) UnknownTraitID() int { return v.unknown }

// Resolve maps one trait token or bare value to its trait id. Resolution is
// by value portion only: "Group::Value" and "Value" are equivalent. The
// exact normalized form is tried first, then a looser form with commas
// removed.
func (v *Vocabulary) Resolve(token string) (int, error) {
	value := Normalize(valuePart(token))
	if id, ok := v.exact[value]; ok {
		return id, nil
	}
	if id, ok := v.loose[stripCommas(value)]; ok {
		return id, nil
	}
	return 0, &UnknownTraitError{Tokens: []string{token}}
}

// ResolveAll maps a selection of trait tokens to trait ids, preserving input
// order. Any unresolvable tokens are collected into a single
// UnknownTraitError naming every offender; none are silently dropped.
func (v *Vocabulary) ResolveAll(tokens []string) ([]int, error) {
	ids := make([]int, 0, len(tokens))
	var bad []string
	for _, tok := range tokens {
		id, err := v.Resolve(tok)
		if err != nil {
			bad = append(bad, tok)
			continue
		}
		ids = append(ids, id)
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return nil, &UnknownTraitError{Tokens: bad}
	}
	return ids, nil
}

// Normalize canonicalizes a trait value for comparison: Unicode NFKC,
// en/em dashes folded to hyphen, newlines to spaces, runs of whitespace
// collapsed, surrounding whitespace trimmed.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.NewReplacer("–", "-", "—", "-", "\n", " ", "\r", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func stripCommas(s string) string {
	return strings.ReplaceAll(s, ",", "")
}

func valuePart(token string) string {
	if _, value, ok := strings.Cut(token, "::"); ok {
		return value
	}
	return token
}
