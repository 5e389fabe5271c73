package reaction

import (
	"fmt"
	"strconv"
	"strings"
)

// Payload is a prediction as returned by the RXN service, e.g.
//
//	{"smiles": "BrBr.c1ccc2cc3ccccc3cc2c1>>Brc1c2ccccc2cc2ccccc12", "confidence": 0.98}
//
// Top-N payloads carry a "results" list of such entries instead.
//
// Values are JSON values as decoded by encoding/json: numbers are float64,
// objects map[string]interface{} and arrays []interface{}. Caches persist
// payloads as JSON, so a payload holding other Go types (an int, a typed
// slice) comes back in this decoded form.
type Payload map[string]interface{}

// Smiles returns the reaction SMILES, or "" when absent.
func (p Payload) Smiles() string {
	s, _ := p["smiles"].(string)
	return s
}

// Confidence returns the 0-1 score when present and numeric.
func (p Payload) Confidence() (float64, bool) {
	switch v := p["confidence"].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Product is the product side of the predicted reaction SMILES.
func (p Payload) Product() string {
	return ProductOf(p.Smiles())
}

// OutputKey is the normalized key of the reactant side of the predicted
// reaction. The service canonicalizes SMILES, so this key differs from the
// input key whenever the caller used a non-canonical spelling.
func (p Payload) OutputKey() string {
	s := p.Smiles()
	if s == "" {
		return ""
	}
	return NormalizeFragments(ReactantsOf(s))
}

// TopN returns the ranked candidates of a top-N payload. Candidates whose
// "smiles" is a list are joined into a single reaction string.
func (p Payload) TopN() []Payload {
	raw, ok := p["results"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]Payload, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		c := Payload{}
		for k, v := range m {
			c[k] = v
		}
		if list, ok := m["smiles"].([]interface{}); ok {
			parts := make([]string, 0, len(list))
			for _, s := range list {
				parts = append(parts, fmt.Sprint(s))
			}
			c["smiles"] = strings.Join(parts, ReactionArrow)
		}
		out = append(out, c)
	}
	return out
}

// ReactionParams is the cache-key-relevant parameter set of a reaction batch.
// TopN of zero means a single best prediction per input.
type ReactionParams struct {
	Model string `json:"ai_model"`
	TopN  int    `json:"topn,omitempty"`
}

// IsTopN reports whether several candidate products are requested.
func (p ReactionParams) IsTopN() bool {
	return p.TopN > 0
}

// LogicalName is the cache namespace for these parameters.
func (p ReactionParams) LogicalName() string {
	if p.IsTopN() {
		return fmt.Sprintf("predict-reaction-%s-topn-%d", p.Model, p.TopN)
	}
	return "predict-reaction-" + p.Model
}

// RetroLogicalName is the cache namespace for retrosynthesis under model.
func RetroLogicalName(model string) string {
	return "predict-retro-" + model
}

// ParseTopN interprets a USING clause topn value. Nil, false, 0 and "0" mean
// top-N was not requested; true means the default N.
func ParseTopN(v interface{}, defaultN int) (int, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case bool:
		if t {
			return defaultN, nil
		}
		return 0, nil
	case int:
		if t < 0 {
			return 0, fmt.Errorf("topn must not be negative, got %d", t)
		}
		return t, nil
	case float64:
		if t < 0 || t != float64(int(t)) {
			return 0, fmt.Errorf("topn must be a non-negative integer, got %v", t)
		}
		return int(t), nil
	case string:
		s := strings.Trim(strings.TrimSpace(t), `'"`)
		if s == "" || s == "0" || strings.EqualFold(s, "false") {
			return 0, nil
		}
		if strings.EqualFold(s, "true") {
			return defaultN, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("topn must be a non-negative integer, got %q", t)
		}
		return n, nil
	}
	return 0, fmt.Errorf("unsupported topn value %v", v)
}

// RetroParams are the retrosynthesis tuning knobs.
type RetroParams struct {
	AvailabilityPricingThreshold int     `json:"availability_pricing_threshold"`
	AvailableSmiles              string  `json:"available_smiles,omitempty"`
	ExcludeSmiles                string  `json:"exclude_smiles,omitempty"`
	ExcludeSubstructures         string  `json:"exclude_substructures,omitempty"`
	ExcludeTargetMolecule        bool    `json:"exclude_target_molecule"`
	FAP                          float64 `json:"fap"`
	MaxSteps                     int     `json:"max_steps"`
	NBeams                       int     `json:"nbeams"`
	PruningSteps                 int     `json:"pruning_steps"`
	Model                        string  `json:"ai_model"`
}

// DefaultRetroParams are the parameters of a retrosynthesis run without a
// USING clause.
func DefaultRetroParams() RetroParams {
	return RetroParams{
		ExcludeTargetMolecule: true,
		FAP:                   0.6,
		MaxSteps:              5,
		NBeams:                10,
		PruningSteps:          2,
		Model:                 "2020-07-01",
	}
}

// AsMap is used for analysis records.
func (p RetroParams) AsMap() map[string]interface{} {
	return map[string]interface{}{
		"availability_pricing_threshold": p.AvailabilityPricingThreshold,
		"available_smiles":               p.AvailableSmiles,
		"exclude_smiles":                 p.ExcludeSmiles,
		"exclude_substructures":          p.ExcludeSubstructures,
		"exclude_target_molecule":        p.ExcludeTargetMolecule,
		"fap":                            p.FAP,
		"max_steps":                      p.MaxSteps,
		"nbeams":                         p.NBeams,
		"pruning_steps":                  p.PruningSteps,
		"ai_model":                       p.Model,
	}
}
