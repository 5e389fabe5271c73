package prediction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/testutil"
)

func newTestClassifier(cache reaction.ResultCache, m Metrics) *Classifier {
	return NewClassifier(reaction.NewStructuralValidator(), cache, m, testutil.NewRecordingLogger())
}

func TestClassifier_PartitionIsComplete(t *testing.T) {
	cache := newMemCache()
	cache.Store(context.Background(), "n", reaction.NormalizedKey("CCO.O"), reaction.Payload{"smiles": "CCO.O>>CC"})

	inputs := []string{"BrBr.C1=CC=CC=C1", "invalid_smiles_xyz", "O.CCO", "CC(=O)O.OCC"}
	cls := newTestClassifier(cache, nil).Classify(context.Background(), inputs, true, "n")

	assert.Equal(t, map[string][]string{"invalid_smiles_xyz": {"invalid_smiles_xyz"}}, cls.Invalid)
	assert.Contains(t, cls.Cached, "O.CCO")
	assert.Equal(t, []string{"BrBr.C1=CC=CC=C1", "CC(=O)O.OCC"}, cls.ToSubmit)
	assert.Equal(t, len(inputs), len(cls.Invalid)+len(cls.Cached)+len(cls.ToSubmit))
}

func TestClassifier_InvalidNeverLooksUpCache(t *testing.T) {
	cache := newMemCache()
	cls := newTestClassifier(cache, nil).Classify(context.Background(), []string{"CC..O", "X(("}, true, "n")

	assert.Len(t, cls.Invalid, 2)
	assert.Equal(t, []string{""}, cls.Invalid["CC..O"])
	assert.Zero(t, cache.retrieves)
	assert.False(t, cls.NeedsSubmission())
}

func TestClassifier_CacheDisabled(t *testing.T) {
	cache := newMemCache()
	cache.Store(context.Background(), "n", "C.O", reaction.Payload{"smiles": "C.O>>CO"})

	m := newMetricsRecorder()
	cls := newTestClassifier(cache, m).Classify(context.Background(), []string{"O.C"}, false, "n")

	assert.Empty(t, cls.Cached)
	assert.Equal(t, []string{"O.C"}, cls.ToSubmit)
	assert.Zero(t, cache.retrieves)
	assert.Zero(t, m.hits+m.misses)
}

func TestClassifier_DuplicatesSubmittedOnce(t *testing.T) {
	m := newMetricsRecorder()
	cls := newTestClassifier(newMemCache(), m).Classify(context.Background(), []string{"C.O", "CC.O", "C.O"}, true, "n")

	require.Equal(t, []string{"C.O", "CC.O"}, cls.ToSubmit)
	assert.Equal(t, 2, m.misses)
}
