package deepsearch

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/pkg/client"
)

// fakeDeepSearch serves a fixed catalog and answers data queries through
// the configured handler.
type fakeDeepSearch struct {
	mu          sync.Mutex
	collections []client.Collection
	listErr     error
	handler     func(src client.CollectionSource, q client.DataQuery) (*client.DataQueryResult, error)
	queries     []client.DataQuery
	sources     []client.CollectionSource
	inFlight    int
	maxInFlight int
	delay       time.Duration
}

func (f *fakeDeepSearch) ListCollections(ctx context.Context) ([]client.Collection, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]client.Collection, len(f.collections))
	copy(out, f.collections)
	return out, nil
}

func (f *fakeDeepSearch) RunDataQuery(ctx context.Context, src client.CollectionSource, q client.DataQuery) (*client.DataQueryResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.sources = append(f.sources, src)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	res, err := f.handler(src, q)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
	return res, err
}

func (f *fakeDeepSearch) recorded() []client.DataQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]client.DataQuery(nil), f.queries...)
}

// MockKnowledgeGraph is a testify mock of the knowledge graph queries.
type MockKnowledgeGraph struct {
	mock.Mock
}

func (m *MockKnowledgeGraph) MoleculeSearch(ctx context.Context, query string, t client.MolQueryType) ([]client.Molecule, error) {
	args := m.Called(ctx, query, t)
	mols, _ := args.Get(0).([]client.Molecule)
	return mols, args.Error(1)
}

func (m *MockKnowledgeGraph) PatentsWithMolecule(ctx context.Context, id client.Identifier, numItems int) ([]client.PatentDoc, error) {
	args := m.Called(ctx, id, numItems)
	docs, _ := args.Get(0).([]client.PatentDoc)
	return docs, args.Error(1)
}

func (m *MockKnowledgeGraph) MoleculesInPatents(ctx context.Context, patentIDs []string, numItems int) ([]client.Molecule, error) {
	args := m.Called(ctx, patentIDs, numItems)
	mols, _ := args.Get(0).([]client.Molecule)
	return mols, args.Error(1)
}

type analysisRecorder struct {
	mu      sync.Mutex
	records []*reaction.AnalysisRecord
	err     error
}

func (a *analysisRecorder) Save(ctx context.Context, rec *reaction.AnalysisRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.records = append(a.records, rec)
	return nil
}

func (a *analysisRecorder) FindBySMILES(ctx context.Context, workspace, smiles string) ([]*reaction.AnalysisRecord, error) {
	return nil, nil
}

func (a *analysisRecorder) CountByFunction(ctx context.Context, workspace string) (map[string]int64, error) {
	return nil, nil
}

type statusRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (s *statusRecorder) Status(msg string) {
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()
}

type queryObservation struct {
	op string
	ok bool
}

type metricsRecorder struct {
	mu  sync.Mutex
	obs []queryObservation
}

func (m *metricsRecorder) ObserveQuery(op string, d time.Duration, ok bool) {
	m.mu.Lock()
	m.obs = append(m.obs, queryObservation{op: op, ok: ok})
	m.mu.Unlock()
}

func (m *metricsRecorder) count(op string, ok bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.obs {
		if o.op == op && o.ok == ok {
			n++
		}
	}
	return n
}

func testCollections() []client.Collection {
	created := time.Date(2023, 3, 14, 9, 0, 0, 0, time.UTC)
	return []client.Collection{
		{
			Name:      "USPTO patents",
			Documents: 4321987,
			Source:    client.CollectionSource{ElasticID: "default", IndexKey: "patent-uspto"},
			Metadata:  client.CollectionMetadata{Domain: []string{"Patents"}, Type: DocumentCollection, Created: created},
		},
		{
			Name:      "arXiv abstracts",
			Documents: 2100000,
			Source:    client.CollectionSource{ElasticID: "default", IndexKey: "arxiv-abstract"},
			Metadata:  client.CollectionMetadata{Domain: []string{"Scientific Literature"}, Type: DocumentCollection, Created: created},
		},
		{
			Name:      "PubChem",
			Documents: 118000000,
			Source:    client.CollectionSource{ElasticID: "default", IndexKey: "pubchem"},
			Metadata:  client.CollectionMetadata{Domain: []string{"Chemistry", "Scientific Literature"}, Type: "Record", Created: created},
		},
		{
			Name:      "EPO patents",
			Documents: 999,
			Source:    client.CollectionSource{ElasticID: "default", IndexKey: "patent-ep"},
			Metadata:  client.CollectionMetadata{Domain: []string{"Patents"}, Type: DocumentCollection},
		},
	}
}
