package prediction

import (
	"fmt"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// alignPredictions spreads the predictions of the submitted list over the
// original input positions. Invalid and cached positions hold nil; a
// repeated input reuses the prediction of its first occurrence.
func alignPredictions(inputs []string, cls *reaction.BatchClassification, predictions []reaction.Payload) ([]reaction.Payload, error) {
	if len(predictions) != len(cls.ToSubmit) {
		return nil, errors.New(errors.ErrCodeRXNResultMalformed,
			fmt.Sprintf("expected %d predictions, got %d", len(cls.ToSubmit), len(predictions)))
	}

	bySubmitted := make(map[string]reaction.Payload, len(cls.ToSubmit))
	for i, in := range cls.ToSubmit {
		bySubmitted[in] = predictions[i]
	}

	aligned := make([]reaction.Payload, len(inputs))
	for i, in := range inputs {
		if cls.ProvenanceOf(in) != reaction.ProvenanceFresh {
			continue
		}
		p, ok := bySubmitted[in]
		if !ok {
			return nil, errors.New(errors.ErrCodeRXNResultMalformed, fmt.Sprintf("input %q was never submitted", in))
		}
		aligned[i] = p
	}
	return aligned, nil
}

// Reassemble returns one record per input, in input order, tagged with
// where its content came from.
func Reassemble(inputs []string, cls *reaction.BatchClassification, predictions []reaction.Payload) ([]reaction.Record, error) {
	aligned, err := alignPredictions(inputs, cls, predictions)
	if err != nil {
		return nil, err
	}

	records := make([]reaction.Record, len(inputs))
	for i, in := range inputs {
		rec := reaction.Record{Index: i, Input: in, Provenance: cls.ProvenanceOf(in)}
		switch rec.Provenance {
		case reaction.ProvenanceInvalid:
			rec.InvalidFragments = cls.Invalid[in]
		case reaction.ProvenanceCached:
			rec.Prediction = cls.Cached[in]
		default:
			rec.Prediction = aligned[i]
		}
		records[i] = rec
	}
	return records, nil
}

// BuildRetroResult derives every output form of a retrosynthesis.
func BuildRetroResult(target, predictionID string, params reaction.RetroParams, fromCache bool, trees []*reaction.RetroNode) *reaction.RetroResult {
	res := &reaction.RetroResult{
		Target:       target,
		PredictionID: predictionID,
		Params:       params,
		FromCache:    fromCache,
		Trees:        trees,
	}
	res.Summarize()
	return res
}
