package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultDeepSearchHost is used when credentials leave the host blank.
const DefaultDeepSearchHost = "https://sds.app.accelerate.science/"

const (
	dsAPIPrefix = "/api/cps/public/v2"
	dsTokenPath = "/api/cps/user/v1/user/token"
)

// DeepSearchClient queries public Deep Search collections and the
// chemistry knowledge graph.
type DeepSearchClient struct {
	client *Client
}

// NewDeepSearchClient authenticates with a bearer token obtained from
// FetchDeepSearchToken. An empty host selects DefaultDeepSearchHost.
func NewDeepSearchClient(host, token string, opts ...Option) (*DeepSearchClient, error) {
	if strings.TrimSpace(host) == "" {
		host = DefaultDeepSearchHost
	}
	c, err := NewClient(host, token, append([]Option{withAuth(AuthBearer)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &DeepSearchClient{client: c}, nil
}

// FetchDeepSearchToken exchanges a username and API key for a bearer token.
func FetchDeepSearchToken(ctx context.Context, host, username, apiKey string, opts ...Option) (string, error) {
	if strings.TrimSpace(host) == "" {
		host = DefaultDeepSearchHost
	}
	if strings.TrimSpace(username) == "" || strings.TrimSpace(apiKey) == "" {
		return "", ErrInvalidConfig
	}
	basic := base64.StdEncoding.EncodeToString([]byte(username + ":" + apiKey))
	c, err := NewClient(host, basic, append([]Option{withAuth(AuthBasic)}, opts...)...)
	if err != nil {
		return "", err
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.post(ctx, dsTokenPath, map[string]string{}, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("deep search token: empty response")
	}
	return resp.AccessToken, nil
}

func (d *DeepSearchClient) Host() string {
	return d.client.BaseURL()
}

// CollectionSource locates a collection inside an elastic instance.
type CollectionSource struct {
	ElasticID string `json:"elastic_id"`
	IndexKey  string `json:"index_key"`
}

// CollectionMetadata describes what a collection holds.
type CollectionMetadata struct {
	Domain      []string  `json:"domain"`
	Type        string    `json:"type"`
	Created     time.Time `json:"created"`
	Description string    `json:"description"`
}

// Collection is one entry of the collection listing.
type Collection struct {
	Name      string             `json:"name"`
	Documents int64              `json:"documents"`
	Source    CollectionSource   `json:"source"`
	Metadata  CollectionMetadata `json:"metadata"`
}

// Highlight configures hit snippets.
type Highlight struct {
	Fields       map[string]struct{} `json:"fields"`
	FragmentSize int                 `json:"fragment_size"`
	PreTags      []string            `json:"pre_tags,omitempty"`
	PostTags     []string            `json:"post_tags,omitempty"`
}

// DataQuery is a full-text query against one collection. Limit 0 only counts.
type DataQuery struct {
	Query        string                 `json:"query"`
	Source       []string               `json:"source"`
	Limit        int                    `json:"limit"`
	Offset       int                    `json:"offset,omitempty"`
	Highlight    *Highlight             `json:"highlight,omitempty"`
	Aggregations map[string]interface{} `json:"aggregations,omitempty"`
}

type Bucket struct {
	KeyAsString string `json:"key_as_string"`
	DocCount    int64  `json:"doc_count"`
}

type Aggregation struct {
	Buckets []Bucket `json:"buckets"`
}

// DataHit is one search hit; Source is the raw document.
type DataHit struct {
	ID        string                 `json:"_id"`
	Source    map[string]interface{} `json:"_source"`
	Highlight map[string][]string    `json:"highlight,omitempty"`
}

// DataQueryResult is one page of hits with the total count.
type DataQueryResult struct {
	DataCount   int64                  `json:"data_count"`
	DataOutputs []DataHit              `json:"data_outputs"`
	DataAggs    map[string]Aggregation `json:"data_aggs"`
}

// MolQueryType selects a knowledge graph molecule query.
type MolQueryType string

const (
	MolQuerySimilarity   MolQueryType = "similarity"
	MolQuerySubstructure MolQueryType = "substructure"
)

// MolIDType tags an identifier value.
type MolIDType string

const (
	MolIDSmiles   MolIDType = "smiles"
	MolIDInChI    MolIDType = "inchi"
	MolIDInChIKey MolIDType = "inchikey"
)

type Identifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Molecule is a knowledge graph molecule with its identifiers.
type Molecule struct {
	PersistentID string       `json:"persistent_id"`
	Identifiers  []Identifier `json:"identifiers"`
}

// IdentifierOf returns the first identifier value of type t.
func (m Molecule) IdentifierOf(t string) string {
	for _, id := range m.Identifiers {
		if id.Type == t {
			return id.Value
		}
	}
	return ""
}

// PatentDoc is a patent that mentions a molecule.
type PatentDoc struct {
	Identifiers []Identifier `json:"identifiers"`
}

// PatentID returns the "patentid" identifier, or "" when there is none.
func (p PatentDoc) PatentID() string {
	for _, id := range p.Identifiers {
		if id.Type == "patentid" {
			return id.Value
		}
	}
	return ""
}

// ListCollections returns every collection visible to the token.
func (d *DeepSearchClient) ListCollections(ctx context.Context) ([]Collection, error) {
	var out []Collection
	if err := d.client.get(ctx, dsAPIPrefix+"/elastic/collections", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RunDataQuery runs q against one collection page.
func (d *DeepSearchClient) RunDataQuery(ctx context.Context, src CollectionSource, q DataQuery) (*DataQueryResult, error) {
	path := fmt.Sprintf("%s/elastic/%s/indices/%s/query", dsAPIPrefix, url.PathEscape(src.ElasticID), url.PathEscape(src.IndexKey))
	var out DataQueryResult
	if err := d.client.post(ctx, path, q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MoleculeSearch runs a similarity or substructure query.
func (d *DeepSearchClient) MoleculeSearch(ctx context.Context, query string, t MolQueryType) ([]Molecule, error) {
	body := map[string]interface{}{"query": query, "query_type": t}
	var out struct {
		Molecules []Molecule `json:"molecules"`
	}
	if err := d.client.post(ctx, dsAPIPrefix+"/knowledge/molecules/search", body, &out); err != nil {
		return nil, err
	}
	return out.Molecules, nil
}

// PatentsWithMolecule lists patents mentioning the identified molecule.
func (d *DeepSearchClient) PatentsWithMolecule(ctx context.Context, id Identifier, numItems int) ([]PatentDoc, error) {
	body := map[string]interface{}{"molecules": []Identifier{id}, "num_items": numItems}
	var out struct {
		Patents []PatentDoc `json:"patents"`
	}
	if err := d.client.post(ctx, dsAPIPrefix+"/knowledge/patents/with-molecules", body, &out); err != nil {
		return nil, err
	}
	return out.Patents, nil
}

// MoleculesInPatents lists molecules mentioned in any of the patents.
func (d *DeepSearchClient) MoleculesInPatents(ctx context.Context, patentIDs []string, numItems int) ([]Molecule, error) {
	body := map[string]interface{}{"patents": patentIDs, "num_items": numItems}
	var out struct {
		Molecules []Molecule `json:"molecules"`
	}
	if err := d.client.post(ctx, dsAPIPrefix+"/knowledge/molecules/in-patents", body, &out); err != nil {
		return nil, err
	}
	return out.Molecules, nil
}
