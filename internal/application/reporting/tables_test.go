package reporting

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/OpenAD-Plugins/internal/application/prediction"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/command"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

func TestReactionsTable(t *testing.T) {
	res := &reaction.BatchResult{
		Params: reaction.ReactionParams{Model: "m"},
		Records: []reaction.Record{
			{Input: "C.O", Provenance: reaction.ProvenanceFresh, Prediction: reaction.Payload{"smiles": "C.O>>CO", "confidence": 0.75}},
			{Input: "xx", Provenance: reaction.ProvenanceInvalid},
		},
	}
	tbl := ReactionsTable(res)
	assert.Equal(t, []string{"input", "status", "prediction", "confidence"}, tbl.Columns)
	assert.Equal(t, [][]string{
		{"C.O", "fresh", "C.O>>CO", "0.75"},
		{"xx", "invalid", "", ""},
	}, tbl.Rows)
}

func TestReactionsTable_TopN(t *testing.T) {
	res := &reaction.BatchResult{
		Params: reaction.ReactionParams{Model: "m", TopN: 2},
		Records: []reaction.Record{{
			Input:      "C.O",
			Provenance: reaction.ProvenanceCached,
			Prediction: reaction.Payload{"results": []interface{}{
				map[string]interface{}{"smiles": "C.O>>CO", "confidence": 0.7},
				map[string]interface{}{"smiles": "C.O>>OC", "confidence": 0.2},
			}},
		}},
	}
	tbl := ReactionsTable(res)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, []string{"C.O", "from_cache", "2", "C.O>>OC", "0.2"}, tbl.Rows[1])
}

func TestRetroTable(t *testing.T) {
	tbl := RetroTable(retroFixture())

	assert.Equal(t, []string{
		"path",
		"compound [step 0]", "confidence [step 0]",
		"compound [step -1]", "confidence [step -1]",
	}, tbl.Columns)
	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, []string{"0", "CCO", "0.91", "C=C", "1"}, tbl.Rows[0])
	assert.Equal(t, []string{"0", "CCO", "0.91", "O", "1"}, tbl.Rows[1])
	assert.Equal(t, []string{"1", "CCO", "0.42", "CC=O", "1"}, tbl.Rows[2])
}

func TestRetroTable_NilNodes(t *testing.T) {
	trees := []*reaction.RetroNode{
		nil,
		{Smiles: "CCO", Confidence: 0.91, Children: []*reaction.RetroNode{nil, {Smiles: "C=C", Confidence: 1}, {Smiles: "O", Confidence: 1}}},
		{Smiles: "CCO", Confidence: 0.42, Children: []*reaction.RetroNode{{Smiles: "CC=O", Confidence: 1}}},
	}
	tbl := RetroTable(prediction.BuildRetroResult("CCO", "p-2", reaction.DefaultRetroParams(), false, trees))

	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, []string{"1", "CCO", "0.91", "C=C", "1"}, tbl.Rows[0])
	assert.Equal(t, []string{"1", "CCO", "0.91", "O", "1"}, tbl.Rows[1])
	assert.Equal(t, []string{"2", "CCO", "0.42", "CC=O", "1"}, tbl.Rows[2])
}

func TestRetroPathsTable(t *testing.T) {
	tbl := RetroPathsTable(retroFixture())
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "C=C + O --->> CCO", tbl.Rows[0][2])
}

func TestModelsAndRecipeTables(t *testing.T) {
	m := ModelsTable([]prediction.ModelVersions{{Model: "forward", Versions: []string{"a", "b"}}})
	assert.Equal(t, [][]string{{"forward", "a, b"}}, m.Rows)

	r := RecipeTable(&prediction.Recipe{Actions: []string{"ADD water"}})
	assert.Equal(t, [][]string{{"1", "ADD water"}}, r.Rows)
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	tbl := command.Table{Columns: []string{"smiles", "name"}, Rows: [][]string{{"CCO", "ethanol"}, {"O"}}}
	require.NoError(t, RenderTable(&buf, tbl))

	out := buf.String()
	assert.Contains(t, out, "CCO")
	assert.Contains(t, out, "ethanol")
	assert.True(t, strings.HasSuffix(out, "2 rows\n"))
}

func TestSaveCSV(t *testing.T) {
	dir := t.TempDir()
	tbl := command.Table{Columns: []string{"input", "prediction"}, Rows: [][]string{{"C.O", "C.O>>CO"}}}

	path, err := SaveCSV(dir, "results/out", tbl)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "results", "out.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "input,prediction\nC.O,C.O>>CO\n", string(data))

	_, err = SaveCSV(dir, "../escape.csv", tbl)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestWriteJSONAndYAML(t *testing.T) {
	res := &reaction.BatchResult{BatchID: "b-1", Params: reaction.ReactionParams{Model: "m"}}

	var js bytes.Buffer
	require.NoError(t, WriteJSON(&js, res))
	assert.Contains(t, js.String(), `"batch_id": "b-1"`)

	var y bytes.Buffer
	require.NoError(t, WriteYAML(&y, res))
	assert.Contains(t, y.String(), "batch_id: b-1")
	assert.Contains(t, y.String(), "ai_model: m")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	f, err = ParseFormat("YAML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}
