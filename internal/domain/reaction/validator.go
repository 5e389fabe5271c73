package reaction

import (
	"fmt"
	"strings"
)

// Validator is the molecule validity and canonicalization collaborator.
type Validator interface {
	IsValid(fragment string) bool
	Canonicalize(smiles string) (string, error)
}

// InvalidFragments returns the fragments of input rejected by v, in order.
func InvalidFragments(v Validator, input string) []string {
	var bad []string
	for _, f := range Fragments(input) {
		if !v.IsValid(f) {
			bad = append(bad, f)
		}
	}
	return bad
}

var smilesAtoms = map[string]bool{
	"B": true, "C": true, "N": true, "O": true, "P": true, "S": true,
	"F": true, "Cl": true, "Br": true, "I": true, "H": true,
	"b": true, "c": true, "n": true, "o": true, "p": true, "s": true,
	"se": true, "as": true, "te": true,
	"Si": true, "Se": true, "Te": true, "As": true, "Ge": true,
	"Li": true, "Na": true, "K": true, "Mg": true, "Ca": true, "Al": true,
	"Fe": true, "Cu": true, "Zn": true, "Ag": true, "Au": true, "Pt": true,
	"Pd": true, "Ti": true, "Sn": true, "Ni": true, "Co": true, "Mn": true,
	"Cr": true, "Hg": true, "Pb": true, "Ru": true, "Rh": true, "Ir": true,
	"Cs": true, "Rb": true, "Ba": true, "Sr": true, "Bi": true, "Sb": true,
}

// StructuralValidator is a syntax-level SMILES checker. It rejects empty
// fragments, unknown atoms, unbalanced branches or brackets and unpaired ring
// closures. It does not perceive aromaticity or valence.
type StructuralValidator struct{}

// NewStructuralValidator returns the default Validator.
func NewStructuralValidator() StructuralValidator {
	return StructuralValidator{}
}

func (StructuralValidator) IsValid(fragment string) bool {
	s := strings.TrimSpace(fragment)
	if s == "" || s != fragment {
		return false
	}
	if strings.ContainsAny(s, ". \t\n") {
		return false
	}
	return balanced(s, '(', ')') && balanced(s, '[', ']') && ringClosuresPaired(s) && atomsKnown(s)
}

// Canonicalize trims the input and checks every fragment. Atom ordering is
// left untouched; the RXN service canonicalizes on its side.
func (v StructuralValidator) Canonicalize(smiles string) (string, error) {
	s := strings.TrimSpace(smiles)
	if s == "" {
		return "", fmt.Errorf("empty SMILES")
	}
	for _, f := range Fragments(s) {
		if !v.IsValid(f) {
			return "", fmt.Errorf("invalid SMILES fragment %q", f)
		}
	}
	return s, nil
}

func balanced(s string, open, closing rune) bool {
	depth := 0
	for _, ch := range s {
		switch ch {
		case open:
			depth++
		case closing:
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func ringClosuresPaired(s string) bool {
	open := make(map[string]bool)
	inBracket := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '[':
			inBracket = true
		case ch == ']':
			inBracket = false
		case inBracket:
		case ch == '%':
			if i+2 >= len(s) || !isDigit(s[i+1]) || !isDigit(s[i+2]) {
				return false
			}
			label := s[i+1 : i+3]
			open[label] = !open[label]
			i += 2
		case isDigit(ch):
			label := string(ch)
			open[label] = !open[label]
		}
	}
	for _, pending := range open {
		if pending {
			return false
		}
	}
	return true
}

func atomsKnown(s string) bool {
	inBracket := false
	for i := 0; i < len(s); {
		ch := s[i]
		switch {
		case ch == '[':
			inBracket = true
			i++
			continue
		case ch == ']':
			inBracket = false
			i++
			continue
		case inBracket, isBondOrMarker(ch):
			i++
			continue
		}
		if i+1 < len(s) && smilesAtoms[s[i:i+2]] {
			i += 2
			continue
		}
		if smilesAtoms[s[i:i+1]] {
			i++
			continue
		}
		return false
	}
	return !inBracket
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isBondOrMarker(ch byte) bool {
	switch ch {
	case '(', ')', '=', '#', '$', ':', '/', '\\', '@', '+', '-', '%', '*', '~':
		return true
	}
	return isDigit(ch)
}
