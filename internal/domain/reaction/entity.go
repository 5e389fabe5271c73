// Package reaction holds the chemistry-facing domain model of the RXN plugin:
// chemical inputs and their normalized cache keys, prediction payloads,
// batch classification and provenance, and retrosynthesis trees.
package reaction

import (
	"sort"
	"strings"
)

// FragmentDelimiter separates molecules inside a ChemicalInput.
const FragmentDelimiter = "."

// ReactionArrow separates reactants from products in a reaction SMILES.
const ReactionArrow = ">>"

// Fragments splits a chemical input on the period delimiter. Empty fragments
// are kept so that malformed inputs such as "A..B" surface as invalid.
func Fragments(input string) []string {
	return strings.Split(input, FragmentDelimiter)
}

// JoinFragments is the inverse of Fragments.
func JoinFragments(fragments []string) string {
	return strings.Join(fragments, FragmentDelimiter)
}

// NormalizeFragments sorts a copy of fragments lexicographically and joins
// them. The input slice is not modified.
func NormalizeFragments(fragments []string) string {
	sorted := make([]string, len(fragments))
	copy(sorted, fragments)
	sort.Strings(sorted)
	return JoinFragments(sorted)
}

// NormalizedKey returns the order-invariant cache key of input.
// NormalizedKey(NormalizedKey(x)) == NormalizedKey(x) for every x.
func NormalizedKey(input string) string {
	return NormalizeFragments(Fragments(input))
}

// ReactantsOf returns the reactant side of a reaction SMILES ("A.B>>C" gives
// ["A", "B"]). An input without an arrow is treated as reactants only.
func ReactantsOf(reactionSmiles string) []string {
	return Fragments(strings.SplitN(reactionSmiles, ReactionArrow, 2)[0])
}

// ProductOf returns the product side of a reaction SMILES, or "" when the
// string carries no arrow.
func ProductOf(reactionSmiles string) string {
	parts := strings.SplitN(reactionSmiles, ReactionArrow, 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// IsWellFormedReaction reports whether input has more than one non-empty
// fragment. File based sources use it to reject lists that are mostly noise.
func IsWellFormedReaction(input string) bool {
	n := 0
	for _, f := range Fragments(input) {
		if f != "" {
			n++
		}
	}
	return n > 1
}

// CountWellFormed returns the number of well-formed and malformed entries.
func CountWellFormed(inputs []string) (valid, invalid int) {
	for _, in := range inputs {
		if IsWellFormedReaction(in) {
			valid++
		} else {
			invalid++
		}
	}
	return valid, invalid
}

// Dedupe keeps the first occurrence of every string and preserves order.
func Dedupe(inputs []string) []string {
	seen := make(map[string]struct{}, len(inputs))
	out := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if _, ok := seen[in]; ok {
			continue
		}
		seen[in] = struct{}{}
		out = append(out, in)
	}
	return out
}
