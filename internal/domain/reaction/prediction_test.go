package reaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayload_Accessors(t *testing.T) {
	p := Payload{
		"smiles":     "BrBr.c1ccc2cc3ccccc3cc2c1>>Brc1c2ccccc2cc2ccccc12",
		"confidence": 0.9797950224106948,
	}
	assert.Equal(t, "Brc1c2ccccc2cc2ccccc12", p.Product())
	c, ok := p.Confidence()
	require.True(t, ok)
	assert.InDelta(t, 0.9798, c, 1e-4)
	assert.Equal(t, "BrBr.c1ccc2cc3ccccc3cc2c1", p.OutputKey())

	empty := Payload{}
	assert.Equal(t, "", empty.Smiles())
	assert.Equal(t, "", empty.OutputKey())
	_, ok = empty.Confidence()
	assert.False(t, ok)
}

func TestPayload_OutputKeyIsNormalized(t *testing.T) {
	p := Payload{"smiles": "c1ccccc1.BrBr>>Brc1ccccc1"}
	assert.Equal(t, "BrBr.c1ccccc1", p.OutputKey())
}

func TestPayload_TopN(t *testing.T) {
	p := Payload{"results": []interface{}{
		map[string]interface{}{"smiles": []interface{}{"A.B", "C"}, "confidence": 0.8},
		map[string]interface{}{"smiles": "A.B>>D", "confidence": 0.1},
		"garbage",
	}}
	top := p.TopN()
	require.Len(t, top, 2)
	assert.Equal(t, "A.B>>C", top[0].Smiles())
	assert.Equal(t, "D", top[1].Product())
	assert.Nil(t, Payload{}.TopN())
}

func TestReactionParams_LogicalName(t *testing.T) {
	assert.Equal(t, "predict-reaction-2020-08-10", ReactionParams{Model: "2020-08-10"}.LogicalName())
	assert.Equal(t, "predict-reaction-2020-08-10-topn-5", ReactionParams{Model: "2020-08-10", TopN: 5}.LogicalName())
	assert.Equal(t, "predict-retro-2020-07-01", RetroLogicalName("2020-07-01"))
}

func TestParseTopN(t *testing.T) {
	cases := []struct {
		in      interface{}
		want    int
		wantErr bool
	}{
		{nil, 0, false},
		{false, 0, false},
		{true, 10, false},
		{0, 0, false},
		{3, 3, false},
		{-1, 0, true},
		{4.0, 4, false},
		{2.5, 0, true},
		{"0", 0, false},
		{"'0'", 0, false},
		{"", 0, false},
		{"7", 7, false},
		{"true", 10, false},
		{"abc", 0, true},
		{[]string{"x"}, 0, true},
	}
	for _, tc := range cases {
		got, err := ParseTopN(tc.in, 10)
		if tc.wantErr {
			assert.Error(t, err, "%v", tc.in)
			continue
		}
		require.NoError(t, err, "%v", tc.in)
		assert.Equal(t, tc.want, got, "%v", tc.in)
	}
}

func TestDefaultRetroParams(t *testing.T) {
	p := DefaultRetroParams()
	assert.Equal(t, 0, p.AvailabilityPricingThreshold)
	assert.True(t, p.ExcludeTargetMolecule)
	assert.Equal(t, 0.6, p.FAP)
	assert.Equal(t, 5, p.MaxSteps)
	assert.Equal(t, 10, p.NBeams)
	assert.Equal(t, 2, p.PruningSteps)
	assert.Equal(t, "2020-07-01", p.Model)
	assert.Equal(t, "2020-07-01", p.AsMap()["ai_model"])
}
