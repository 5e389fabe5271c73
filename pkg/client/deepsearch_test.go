package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDSServer(t *testing.T, mux *http.ServeMux) *DeepSearchClient {
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := NewDeepSearchClient(srv.URL, "ds-token")
	require.NoError(t, err)
	return c
}

func TestNewDeepSearchClient_DefaultHost(t *testing.T) {
	c, err := NewDeepSearchClient("", "tok")
	require.NoError(t, err)
	assert.Equal(t, "https://sds.app.accelerate.science", c.Host())
}

func TestDeepSearchClient_ListCollections(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/cps/public/v2/elastic/collections", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ds-token", r.Header.Get("Authorization"))
		w.Write([]byte(`[{"name":"PubChem","documents":1200,"source":{"elastic_id":"default","index_key":"pubchem"},
			"metadata":{"domain":["Chemistry"],"type":"Record","created":"2023-01-02T00:00:00Z"}}]`))
	})
	c := newDSServer(t, mux)

	cols, err := c.ListCollections(context.Background())
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "pubchem", cols[0].Source.IndexKey)
	assert.Equal(t, []string{"Chemistry"}, cols[0].Metadata.Domain)
	assert.Equal(t, 2023, cols[0].Metadata.Created.Year())
}

func TestDeepSearchClient_RunDataQuery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/cps/public/v2/elastic/default/indices/arxiv/query", func(w http.ResponseWriter, r *http.Request) {
		var q DataQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		assert.Equal(t, "ibuprofen ~3", q.Query)
		assert.Equal(t, 10, q.Limit)
		require.NotNil(t, q.Highlight)
		w.Write([]byte(`{"data_count":2,"data_outputs":[{"_id":"h1","_source":{"description":{"title":"T"}},"highlight":{"main-text":["<b>ibuprofen</b>"]}}],
			"data_aggs":{"by_year":{"buckets":[{"key_as_string":"2020","doc_count":2}]}}}`))
	})
	c := newDSServer(t, mux)

	res, err := c.RunDataQuery(context.Background(), CollectionSource{ElasticID: "default", IndexKey: "arxiv"}, DataQuery{
		Query:     "ibuprofen ~3",
		Limit:     10,
		Highlight: &Highlight{Fields: map[string]struct{}{"*": {}}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.DataCount)
	require.Len(t, res.DataOutputs, 1)
	assert.Equal(t, "h1", res.DataOutputs[0].ID)
	assert.Equal(t, int64(2), res.DataAggs["by_year"].Buckets[0].DocCount)
}

func TestDeepSearchClient_MoleculeQueries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/cps/public/v2/knowledge/molecules/search", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "substructure", body["query_type"])
		w.Write([]byte(`{"molecules":[{"persistent_id":"m1","identifiers":[{"type":"smiles","value":"CCO"},{"type":"inchikey","value":"LFQSCWFLJHTTHZ"}]}]}`))
	})
	mux.HandleFunc("/api/cps/public/v2/knowledge/patents/with-molecules", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"patents":[{"identifiers":[{"type":"patentid","value":"US1234"}]},{"identifiers":[]}]}`))
	})
	mux.HandleFunc("/api/cps/public/v2/knowledge/molecules/in-patents", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Patents  []string `json:"patents"`
			NumItems int      `json:"num_items"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"US1234"}, body.Patents)
		assert.Equal(t, 20, body.NumItems)
		w.Write([]byte(`{"molecules":[]}`))
	})
	c := newDSServer(t, mux)
	ctx := context.Background()

	mols, err := c.MoleculeSearch(ctx, "CCO", MolQuerySubstructure)
	require.NoError(t, err)
	require.Len(t, mols, 1)
	assert.Equal(t, "CCO", mols[0].IdentifierOf("smiles"))
	assert.Empty(t, mols[0].IdentifierOf("inchi"))

	patents, err := c.PatentsWithMolecule(ctx, Identifier{Type: string(MolIDSmiles), Value: "CCO"}, 20)
	require.NoError(t, err)
	require.Len(t, patents, 2)
	assert.Equal(t, "US1234", patents[0].PatentID())
	assert.Empty(t, patents[1].PatentID())

	mols, err = c.MoleculesInPatents(ctx, []string{"US1234"}, 20)
	require.NoError(t, err)
	assert.Empty(t, mols)
}

func TestFetchDeepSearchToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/cps/user/v1/user/token", func(w http.ResponseWriter, r *http.Request) {
		user, key, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "jane@example.com", user)
		assert.Equal(t, "secret", key)
		w.Write([]byte(`{"access_token":"jwt-token"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	tok, err := FetchDeepSearchToken(context.Background(), srv.URL, "jane@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", tok)

	_, err = FetchDeepSearchToken(context.Background(), srv.URL, "", "secret")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
