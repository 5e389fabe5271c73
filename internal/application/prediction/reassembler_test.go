package prediction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

func TestReassemble_PreservesOrder(t *testing.T) {
	cls := reaction.NewBatchClassification()
	cls.Invalid["xx"] = []string{"xx"}
	cls.Cached["C.O"] = reaction.Payload{"smiles": "C.O>>CO"}
	cls.ToSubmit = []string{"CC.O", "N.O"}

	inputs := []string{"CC.O", "xx", "C.O", "N.O", "CC.O"}
	preds := []reaction.Payload{{"smiles": "CC.O>>CCO"}, {"smiles": "N.O>>NO"}}

	records, err := Reassemble(inputs, cls, preds)
	require.NoError(t, err)
	require.Len(t, records, len(inputs))

	for i, r := range records {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, inputs[i], r.Input)
	}
	assert.Equal(t, reaction.ProvenanceFresh, records[0].Provenance)
	assert.Equal(t, reaction.ProvenanceInvalid, records[1].Provenance)
	assert.Equal(t, []string{"xx"}, records[1].InvalidFragments)
	assert.Nil(t, records[1].Prediction)
	assert.Equal(t, reaction.ProvenanceCached, records[2].Provenance)
	assert.Equal(t, "NO", records[3].Prediction.Product())
	assert.Equal(t, records[0].Prediction, records[4].Prediction)
}

func TestReassemble_CountMismatch(t *testing.T) {
	cls := reaction.NewBatchClassification()
	cls.ToSubmit = []string{"C.O"}

	_, err := Reassemble([]string{"C.O"}, cls, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRXNResultMalformed))
}

func TestBuildRetroResult(t *testing.T) {
	tree := &reaction.RetroNode{Smiles: "CCO", Confidence: 0.8, Children: []*reaction.RetroNode{{Smiles: "C=C"}, {Smiles: "O"}}}
	res := BuildRetroResult("CCO", "p-1", reaction.DefaultRetroParams(), false, []*reaction.RetroNode{tree})

	require.Len(t, res.Paths, 1)
	assert.Equal(t, 0.8, res.Paths[0].Confidence)
	assert.Len(t, res.Rows, 2)
	assert.Len(t, res.Display, 1)
}
