package reaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuralValidator_IsValid(t *testing.T) {
	v := NewStructuralValidator()

	valid := []string{
		"BrBr",
		"C1=CC=CC=C1",
		"OCCc1cccc2cc3ccccc3cc12",
		"CC(=O)Oc1ccccc1C(=O)O",
		"[Na+]",
		"C[C@H](N)C(=O)O",
		"C%10CCCCC%10",
		"ClCCl",
		"N#N",
	}
	for _, s := range valid {
		assert.True(t, v.IsValid(s), s)
	}

	invalid := []string{
		"",
		" CCO",
		"invalid_smiles_xyz",
		"C1CC",
		"CC(C",
		"CC)C",
		"C[NH4+",
		"Xx",
		"C.C",
		"C%1",
	}
	for _, s := range invalid {
		assert.False(t, v.IsValid(s), s)
	}
}

func TestInvalidFragments(t *testing.T) {
	v := NewStructuralValidator()
	assert.Empty(t, InvalidFragments(v, "BrBr.C1=CC=CC=C1"))
	assert.Equal(t, []string{"invalid_smiles_xyz"}, InvalidFragments(v, "invalid_smiles_xyz"))
	assert.Equal(t, []string{"Qq", ""}, InvalidFragments(v, "CCO.Qq."))
}

func TestStructuralValidator_Canonicalize(t *testing.T) {
	v := NewStructuralValidator()

	out, err := v.Canonicalize("  CCO ")
	require.NoError(t, err)
	assert.Equal(t, "CCO", out)

	out, err = v.Canonicalize("CCO.O")
	require.NoError(t, err)
	assert.Equal(t, "CCO.O", out)

	_, err = v.Canonicalize("")
	assert.Error(t, err)
	_, err = v.Canonicalize("C1CC")
	assert.Error(t, err)
}
