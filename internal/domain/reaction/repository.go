package reaction

import (
	"context"
	"time"
)

// ResultCache persists prediction payloads under (logicalName, key). Store
// and Retrieve never fail the caller: problems are logged and reported as
// false.
type ResultCache interface {
	Store(ctx context.Context, logicalName, key string, payload Payload) bool
	Retrieve(ctx context.Context, logicalName, key string) (Payload, bool)
	// ClearAll removes every record of the workspace and returns how many
	// were removed.
	ClearAll(ctx context.Context) (int, error)
}

// AnalysisRecord is a saved prediction that can later enrich a molecule set.
type AnalysisRecord struct {
	ID         string                 `json:"id"`
	Workspace  string                 `json:"workspace"`
	SMILES     string                 `json:"smiles"`
	Toolkit    string                 `json:"toolkit"`
	Function   string                 `json:"function"`
	Parameters map[string]interface{} `json:"parameters"`
	Results    interface{}            `json:"results"`
	CreatedAt  time.Time              `json:"created_at"`
}

// AnalysisRepository stores analysis records.
type AnalysisRepository interface {
	Save(ctx context.Context, rec *AnalysisRecord) error
	FindBySMILES(ctx context.Context, workspace, smiles string) ([]*AnalysisRecord, error)
	CountByFunction(ctx context.Context, workspace string) (map[string]int64, error)
}

// RouteRepository exports retrosynthesis trees to a graph store.
type RouteRepository interface {
	SaveRoutes(ctx context.Context, predictionID, target string, trees []*RetroNode) error
	PrecursorsOf(ctx context.Context, smiles string) ([]string, error)
}
