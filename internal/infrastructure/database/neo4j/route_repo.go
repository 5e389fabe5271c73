package neo4j

import (
	"context"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// executor is the part of Driver the repository needs.
type executor interface {
	ExecuteRead(ctx context.Context, work TransactionWork) (any, error)
	ExecuteWrite(ctx context.Context, work TransactionWork) (any, error)
}

const (
	mergeTargetCypher = `
		MERGE (t:Compound {smiles: $target})
		SET t:Target, t.last_prediction = $prediction_id`

	mergeEdgesCypher = `
		UNWIND $edges AS e
		MERGE (product:Compound {smiles: e.product})
		MERGE (precursor:Compound {smiles: e.precursor})
		MERGE (precursor)-[r:PRECURSOR_OF {prediction_id: $prediction_id, route: e.route}]->(product)
		SET r.confidence = e.confidence, r.depth = e.depth`

	precursorsCypher = `
		MATCH (precursor:Compound)-[:PRECURSOR_OF]->(:Compound {smiles: $smiles})
		RETURN DISTINCT precursor.smiles AS smiles
		ORDER BY smiles`
)

// RouteRepository writes retrosynthesis trees as
// (:Compound)-[:PRECURSOR_OF]->(:Compound) graphs.
type RouteRepository struct {
	driver executor
	logger logging.Logger
}

var _ reaction.RouteRepository = (*RouteRepository)(nil)

// NewRouteRepository stores retrosynthesis routes through driver.
func NewRouteRepository(driver *Driver, log logging.Logger) *RouteRepository {
	return newRouteRepository(driver, log)
}

func newRouteRepository(driver executor, log logging.Logger) *RouteRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &RouteRepository{driver: driver, logger: log.Named("route_repo")}
}

// routeEdges flattens trees into precursor to product edges. The edge carries
// the confidence of the step producing the product and the product's depth.
func routeEdges(trees []*reaction.RetroNode) []map[string]any {
	type item struct {
		node  *reaction.RetroNode
		depth int
	}
	var edges []map[string]any
	for route, root := range trees {
		if root == nil {
			continue
		}
		queue := []item{{node: root}}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, child := range cur.node.Children {
				if child == nil || strings.TrimSpace(child.Smiles) == "" {
					continue
				}
				edges = append(edges, map[string]any{
					"product":    cur.node.Smiles,
					"precursor":  child.Smiles,
					"route":      int64(route),
					"depth":      int64(cur.depth),
					"confidence": cur.node.Confidence,
				})
				queue = append(queue, item{node: child, depth: cur.depth + 1})
			}
		}
	}
	return edges
}

// SaveRoutes merges the target and every edge of trees in one write
// transaction. Trees without precursors only mark the target.
func (r *RouteRepository) SaveRoutes(ctx context.Context, predictionID, target string, trees []*reaction.RetroNode) error {
	if strings.TrimSpace(target) == "" {
		return errors.New(errors.ErrCodeValidation, "route target is required")
	}
	edges := routeEdges(trees)

	_, err := r.driver.ExecuteWrite(ctx, func(tx Transaction) (any, error) {
		res, err := tx.Run(ctx, mergeTargetCypher, map[string]any{
			"target":        target,
			"prediction_id": predictionID,
		})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}
		if len(edges) == 0 {
			return nil, nil
		}
		res, err = tx.Run(ctx, mergeEdgesCypher, map[string]any{
			"edges":         edges,
			"prediction_id": predictionID,
		})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save retrosynthesis routes")
	}

	r.logger.Debug("routes exported",
		logging.String("prediction_id", predictionID),
		logging.Int("routes", len(trees)),
		logging.Int("edges", len(edges)))
	return nil
}

// PrecursorsOf lists the distinct compounds recorded as precursors of smiles.
func (r *RouteRepository) PrecursorsOf(ctx context.Context, smiles string) ([]string, error) {
	out, err := r.driver.ExecuteRead(ctx, func(tx Transaction) (any, error) {
		res, err := tx.Run(ctx, precursorsCypher, map[string]any{"smiles": smiles})
		if err != nil {
			return nil, err
		}
		return CollectRecords(ctx, res, func(rec *neo4j.Record) (string, error) {
			v, _ := rec.Get("smiles")
			s, ok := v.(string)
			if !ok {
				return "", errors.New(errors.ErrCodeSerialization, "precursor smiles is not a string")
			}
			return s, nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query precursors")
	}
	precursors, _ := out.([]string)
	return precursors, nil
}
