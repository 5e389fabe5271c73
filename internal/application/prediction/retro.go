package prediction

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// ToolkitRXN tags analysis records written by the RXN plugin.
const ToolkitRXN = "RXN"

// RetroService predicts synthesis routes for a single target molecule.
type RetroService struct {
	workspace string
	validator reaction.Validator
	submitter *Submitter
	poller    *Poller
	cache     reaction.ResultCache
	analyses  reaction.AnalysisRepository
	routes    reaction.RouteRepository
	logger    logging.Logger
	now       func() time.Time
}

// RetroServiceConfig wires a RetroService.
type RetroServiceConfig struct {
	Workspace string
	Validator reaction.Validator
	Submitter *Submitter
	Poller    *Poller
	Cache     reaction.ResultCache
	// Analyses and Routes are optional sinks.
	Analyses reaction.AnalysisRepository
	Routes   reaction.RouteRepository
	Logger   logging.Logger
}

// NewRetroService builds the retrosynthesis service of one workspace.
func NewRetroService(cfg RetroServiceConfig) *RetroService {
	log := cfg.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &RetroService{
		workspace: cfg.Workspace,
		validator: cfg.Validator,
		submitter: cfg.Submitter,
		poller:    cfg.Poller,
		cache:     cfg.Cache,
		analyses:  cfg.Analyses,
		routes:    cfg.Routes,
		logger:    log.Named("retro"),
		now:       time.Now,
	}
}

// Run validates and canonicalizes smiles, then serves the routes from
// cache or from a fresh remote prediction.
func (s *RetroService) Run(ctx context.Context, smiles string, params reaction.RetroParams, useCache bool) (*reaction.RetroResult, error) {
	smiles = strings.TrimSpace(smiles)
	if smiles == "" || len(reaction.InvalidFragments(s.validator, smiles)) > 0 {
		return nil, errors.New(errors.ErrCodeRXNInvalidInput, "provided SMILES is invalid").WithDetail("input SMILES: '" + smiles + "'")
	}
	canonical, err := s.validator.Canonicalize(smiles)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRXNInvalidInput, "provided SMILES is invalid")
	}
	if len(reaction.Fragments(canonical)) > 1 {
		return nil, errors.New(errors.ErrCodeRXNInvalidInput, "provided SMILES describes a reaction, use predict reaction instead")
	}

	name := reaction.RetroLogicalName(params.Model)
	if useCache && s.cache != nil {
		if p, ok := s.cache.Retrieve(ctx, name, canonical); ok {
			if id, trees, ok := retroFromPayload(p); ok {
				s.logger.Info("retrosynthesis served from cache", logging.String("smiles", canonical))
				return BuildRetroResult(canonical, id, params, true, trees), nil
			}
		}
	}

	id, err := s.submitter.SubmitRetro(ctx, canonical, params)
	if err != nil {
		return nil, err
	}
	trees, err := s.poller.PollRetro(ctx, id)
	if err != nil {
		return nil, err
	}

	result := BuildRetroResult(canonical, id, params, false, trees)
	if s.cache != nil {
		s.cache.Store(ctx, name, canonical, retroPayload(id, trees))
	}
	s.record(ctx, result)
	return result, nil
}

// record writes the analysis record and the route graph. Both are
// best-effort.
func (s *RetroService) record(ctx context.Context, res *reaction.RetroResult) {
	if s.analyses != nil {
		rec := &reaction.AnalysisRecord{
			ID:         uuid.NewString(),
			Workspace:  s.workspace,
			SMILES:     res.Target,
			Toolkit:    ToolkitRXN,
			Function:   "Predict_Retrosynthesis",
			Parameters: res.Params.AsMap(),
			Results:    res.Paths,
			CreatedAt:  s.now().UTC(),
		}
		if err := s.analyses.Save(ctx, rec); err != nil {
			s.logger.Warn("failed to save analysis record", logging.Err(err))
		}
	}
	if s.routes != nil {
		if err := s.routes.SaveRoutes(ctx, res.PredictionID, res.Target, res.Trees); err != nil {
			s.logger.Warn("failed to export retrosynthesis routes", logging.Err(err))
		}
	}
}

func retroPayload(id string, trees []*reaction.RetroNode) reaction.Payload {
	return reaction.Payload{"prediction_id": id, "retrosynthetic_paths": trees}
}

// retroFromPayload accepts payloads straight from Store as well as ones
// decoded from JSON.
func retroFromPayload(p reaction.Payload) (string, []*reaction.RetroNode, bool) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", nil, false
	}
	var decoded struct {
		PredictionID string                `json:"prediction_id"`
		Paths        []*reaction.RetroNode `json:"retrosynthetic_paths"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil || len(decoded.Paths) == 0 {
		return "", nil, false
	}
	return decoded.PredictionID, decoded.Paths, true
}
