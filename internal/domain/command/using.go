package command

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// Using holds the key=value pairs of a USING clause, for example
//
//	USING (ai_model='2020-08-10' topn=5)
//
// Keys are lower-cased. Values keep their case with surrounding quotes removed.
type Using map[string]string

// ParseUsing tokenizes a USING clause. The surrounding parentheses and the
// USING keyword are optional. Values may be single or double quoted to
// include spaces.
func ParseUsing(clause string) (Using, error) {
	s := strings.TrimSpace(clause)
	if len(s) >= 5 && strings.EqualFold(s[:5], "using") {
		s = strings.TrimSpace(s[5:])
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, "("), ")"))

	u := Using{}
	for i := 0; i < len(s); {
		for i < len(s) && (unicode.IsSpace(rune(s[i])) || s[i] == ',') {
			i++
		}
		if i >= len(s) {
			break
		}
		start := i
		for i < len(s) && s[i] != '=' && !unicode.IsSpace(rune(s[i])) {
			i++
		}
		key := strings.ToLower(s[start:i])
		if i >= len(s) || s[i] != '=' || key == "" {
			return nil, errors.Newf(errors.ErrCodeRXNInvalidParams, "malformed USING clause near %q", s[start:])
		}
		i++
		var val string
		if i < len(s) && (s[i] == '\'' || s[i] == '"') {
			q := s[i]
			end := strings.IndexByte(s[i+1:], q)
			if end < 0 {
				return nil, errors.Newf(errors.ErrCodeRXNInvalidParams, "unterminated quote in value of %s", key)
			}
			val = s[i+1 : i+1+end]
			i += end + 2
		} else {
			vs := i
			for i < len(s) && !unicode.IsSpace(rune(s[i])) && s[i] != ',' {
				i++
			}
			val = s[vs:i]
		}
		if _, dup := u[key]; dup {
			return nil, errors.Newf(errors.ErrCodeRXNInvalidParams, "parameter %s given twice", key)
		}
		u[key] = val
	}
	return u, nil
}

// Allow fails on the first key outside allowed.
func (u Using) Allow(allowed ...string) error {
	ok := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		ok[a] = true
	}
	var unknown []string
	for k := range u {
		if !ok[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return errors.Newf(errors.ErrCodeRXNInvalidParams, "unknown parameter %s", unknown[0]).
		WithDetail("allowed: " + strings.Join(allowed, ", "))
}

// String returns the value of key, or def when it is not set. The other
// accessors also return def for a missing key and reject a value that
// does not parse.
func (u Using) String(key, def string) string {
	if v, ok := u[key]; ok {
		return v
	}
	return def
}

func (u Using) Int(key string, def int) (int, error) {
	v, ok := u[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Newf(errors.ErrCodeRXNInvalidParams, "%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func (u Using) Float(key string, def float64) (float64, error) {
	v, ok := u[key]
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.Newf(errors.ErrCodeRXNInvalidParams, "%s must be a number, got %q", key, v)
	}
	return f, nil
}

func (u Using) Bool(key string, def bool) (bool, error) {
	v, ok := u[key]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Newf(errors.ErrCodeRXNInvalidParams, "%s must be true or false, got %q", key, v)
	}
	return b, nil
}

// ReactionParams reads ai_model and topn. A bare topn=true means defaultTopN.
func (u Using) ReactionParams(defaultModel string, defaultTopN int) (reaction.ReactionParams, error) {
	if err := u.Allow("ai_model", "topn"); err != nil {
		return reaction.ReactionParams{}, err
	}
	p := reaction.ReactionParams{Model: u.String("ai_model", defaultModel)}
	if v, ok := u["topn"]; ok {
		n, err := reaction.ParseTopN(v, defaultTopN)
		if err != nil {
			return p, errors.Wrap(err, errors.ErrCodeRXNInvalidParams, "invalid topn")
		}
		p.TopN = n
	}
	return p, nil
}

// RetroParams overlays the clause on reaction.DefaultRetroParams.
func (u Using) RetroParams(defaultModel string) (reaction.RetroParams, error) {
	if err := u.Allow(
		"availability_pricing_threshold", "available_smiles", "exclude_smiles",
		"exclude_substructures", "exclude_target_molecule", "fap", "max_steps",
		"nbeams", "pruning_steps", "ai_model",
	); err != nil {
		return reaction.RetroParams{}, err
	}
	p := reaction.DefaultRetroParams()
	if defaultModel != "" {
		p.Model = defaultModel
	}
	p.Model = u.String("ai_model", p.Model)
	p.AvailableSmiles = u.String("available_smiles", p.AvailableSmiles)
	p.ExcludeSmiles = u.String("exclude_smiles", p.ExcludeSmiles)
	p.ExcludeSubstructures = u.String("exclude_substructures", p.ExcludeSubstructures)

	var err error
	if p.AvailabilityPricingThreshold, err = u.Int("availability_pricing_threshold", p.AvailabilityPricingThreshold); err != nil {
		return p, err
	}
	if p.ExcludeTargetMolecule, err = u.Bool("exclude_target_molecule", p.ExcludeTargetMolecule); err != nil {
		return p, err
	}
	if p.FAP, err = u.Float("fap", p.FAP); err != nil {
		return p, err
	}
	if p.MaxSteps, err = u.Int("max_steps", p.MaxSteps); err != nil {
		return p, err
	}
	if p.NBeams, err = u.Int("nbeams", p.NBeams); err != nil {
		return p, err
	}
	if p.PruningSteps, err = u.Int("pruning_steps", p.PruningSteps); err != nil {
		return p, err
	}
	return p, nil
}
