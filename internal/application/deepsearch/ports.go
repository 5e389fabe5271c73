// Package deepsearch implements the Deep Search commands: collection
// discovery, full-text collection search and knowledge graph molecule and
// patent lookups.
package deepsearch

import (
	"context"
	"time"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/command"
	"github.com/turtacn/OpenAD-Plugins/pkg/client"
)

// Catalog lists the collections visible to the current credentials.
type Catalog interface {
	ListCollections(ctx context.Context) ([]client.Collection, error)
}

// DataQuerier runs full-text queries against one collection. Both the remote
// Deep Search client and the OpenSearch searcher implement it.
type DataQuerier interface {
	RunDataQuery(ctx context.Context, src client.CollectionSource, q client.DataQuery) (*client.DataQueryResult, error)
}

// KnowledgeGraph answers the chemistry knowledge graph queries.
type KnowledgeGraph interface {
	MoleculeSearch(ctx context.Context, query string, t client.MolQueryType) ([]client.Molecule, error)
	PatentsWithMolecule(ctx context.Context, id client.Identifier, numItems int) ([]client.PatentDoc, error)
	MoleculesInPatents(ctx context.Context, patentIDs []string, numItems int) ([]client.Molecule, error)
}

// ColumnReader reads one column of a list, CSV file or session table.
type ColumnReader interface {
	ReadColumn(src command.InputSource, names ...string) ([]string, error)
}

// StatusReporter receives transient progress messages.
type StatusReporter interface {
	Status(msg string)
}

type silentReporter struct{}

func (silentReporter) Status(string) {}

// Metrics observes the latency and outcome of every remote query.
type Metrics interface {
	ObserveQuery(op string, d time.Duration, ok bool)
}

type nopMetrics struct{}

func (nopMetrics) ObserveQuery(string, time.Duration, bool) {}

// Query operation labels.
const (
	OpListCollections     = "list_collections"
	OpCount               = "count"
	OpSearch              = "search"
	OpMoleculeSearch      = "molecule_search"
	OpPatentsWithMolecule = "patents_with_molecule"
	OpMoleculesInPatents  = "molecules_in_patents"
)
