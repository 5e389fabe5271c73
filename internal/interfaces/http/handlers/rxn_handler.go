package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/turtacn/OpenAD-Plugins/internal/application/prediction"
	"github.com/turtacn/OpenAD-Plugins/internal/bootstrap"
	"github.com/turtacn/OpenAD-Plugins/internal/config"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/command"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// PredictionProvider returns the prediction services of a logged-in session.
type PredictionProvider interface {
	Prediction(ctx context.Context) (*bootstrap.PredictionServices, error)
}

// BatchQueue accepts batches for asynchronous prediction.
type BatchQueue interface {
	EnqueueBatch(ctx context.Context, req reaction.BatchRequest) error
}

// RXNHandler exposes reaction prediction, retrosynthesis and the RXN tools.
type RXNHandler struct {
	provider  PredictionProvider
	queue     BatchQueue
	defaults  config.RXNConfig
	workspace string
	logger    logging.Logger
}

// NewRXNHandler builds the handler. queue may be nil, in which case queued
// batches are rejected.
func NewRXNHandler(provider PredictionProvider, queue BatchQueue, cfg *config.Config, log logging.Logger) *RXNHandler {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &RXNHandler{
		provider:  provider,
		queue:     queue,
		defaults:  cfg.RXN,
		workspace: cfg.Workspace.Name,
		logger:    log.Named("rxn_handler"),
	}
}

// PredictReactionsRequest is the body of reaction predictions and queued
// batches. UseCache defaults to rxn.use_cache_by_default.
type PredictReactionsRequest struct {
	Reactions []string `json:"reactions"`
	Using     string   `json:"using,omitempty"`
	UseCache  *bool    `json:"use_cache,omitempty"`
}

type PredictRetroRequest struct {
	SMILES   string `json:"smiles"`
	Using    string `json:"using,omitempty"`
	UseCache *bool  `json:"use_cache,omitempty"`
}

type InterpretRecipeRequest struct {
	Recipe string `json:"recipe"`
}

// ClearCacheResponse reports how many cached results were removed.
type ClearCacheResponse struct {
	Removed int `json:"removed"`
}

// EnqueueResponse acknowledges a queued batch.
type EnqueueResponse struct {
	BatchID string `json:"batch_id"`
	Queued  int    `json:"queued"`
}

func (h *RXNHandler) useCache(v *bool) bool {
	if v == nil {
		return h.defaults.UseCacheByDefault
	}
	return *v
}

// parseReactions validates the body into a prediction command and its inputs.
func (h *RXNHandler) parseReactions(r *http.Request) (command.PredictReactions, []string, error) {
	var body PredictReactionsRequest
	if err := decodeJSON(r, &body); err != nil {
		return command.PredictReactions{}, nil, err
	}
	using, err := command.ParseUsing(body.Using)
	if err != nil {
		return command.PredictReactions{}, nil, err
	}
	params, err := using.ReactionParams(h.defaults.ReactionModel, h.defaults.DefaultTopN)
	if err != nil {
		return command.PredictReactions{}, nil, err
	}
	cmd := command.PredictReactions{
		Source:   command.FromList(body.Reactions),
		Params:   params,
		UseCache: h.useCache(body.UseCache),
	}
	if err := cmd.Validate(); err != nil {
		return cmd, nil, err
	}
	inputs, err := prediction.NewSourceReader("", nil).Read(cmd.Source)
	return cmd, inputs, err
}

// PredictReactions handles POST /api/v1/rxn/predictions/reactions.
func (h *RXNHandler) PredictReactions(w http.ResponseWriter, r *http.Request) {
	cmd, inputs, err := h.parseReactions(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	svc, err := h.provider.Prediction(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	res, err := svc.Batch.Run(r.Context(), inputs, prediction.BatchOptions{Params: cmd.Params, UseCache: cmd.UseCache})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// EnqueueBatch handles POST /api/v1/rxn/batches. The batch runs on a worker
// and its outcome is published as a batch event.
func (h *RXNHandler) EnqueueBatch(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		writeAppError(w, errors.New(errors.ErrCodeFeatureDisabled, "batch queue is not configured"))
		return
	}
	cmd, inputs, err := h.parseReactions(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	req := reaction.BatchRequest{
		BatchID:   uuid.NewString(),
		Workspace: h.workspace,
		Inputs:    inputs,
		Params:    cmd.Params,
		UseCache:  cmd.UseCache,
	}
	if err := h.queue.EnqueueBatch(r.Context(), req); err != nil {
		writeAppError(w, err)
		return
	}
	h.logger.Info("batch queued", logging.String("batch_id", req.BatchID), logging.Int("inputs", len(inputs)))
	writeJSON(w, http.StatusAccepted, EnqueueResponse{BatchID: req.BatchID, Queued: len(inputs)})
}

// PredictRetro handles POST /api/v1/rxn/predictions/retro.
func (h *RXNHandler) PredictRetro(w http.ResponseWriter, r *http.Request) {
	var body PredictRetroRequest
	if err := decodeJSON(r, &body); err != nil {
		writeAppError(w, err)
		return
	}
	using, err := command.ParseUsing(body.Using)
	if err != nil {
		writeAppError(w, err)
		return
	}
	params, err := using.RetroParams(h.defaults.RetroModel)
	if err != nil {
		writeAppError(w, err)
		return
	}
	cmd := command.PredictRetro{SMILES: body.SMILES, Params: params, UseCache: h.useCache(body.UseCache)}
	if err := cmd.Validate(); err != nil {
		writeAppError(w, err)
		return
	}
	svc, err := h.provider.Prediction(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	res, err := svc.Retro.Run(r.Context(), cmd.SMILES, cmd.Params, cmd.UseCache)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListModels handles GET /api/v1/rxn/models.
func (h *RXNHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	svc, err := h.provider.Prediction(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	models, err := svc.Tools.ListModels(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models)
}

// InterpretRecipe handles POST /api/v1/rxn/recipes.
func (h *RXNHandler) InterpretRecipe(w http.ResponseWriter, r *http.Request) {
	var body InterpretRecipeRequest
	if err := decodeJSON(r, &body); err != nil {
		writeAppError(w, err)
		return
	}
	cmd := command.InterpretRecipe{Recipe: body.Recipe}
	if err := cmd.Validate(); err != nil {
		writeAppError(w, err)
		return
	}
	svc, err := h.provider.Prediction(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	recipe, err := svc.Tools.InterpretRecipe(r.Context(), cmd.Recipe)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

// ClearCache handles DELETE /api/v1/rxn/cache.
func (h *RXNHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	svc, err := h.provider.Prediction(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	n, err := svc.Tools.ClearCache(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ClearCacheResponse{Removed: n})
}
