// Package worker runs queued RXN batches taken from Kafka.
package worker

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/turtacn/OpenAD-Plugins/internal/application/prediction"
	"github.com/turtacn/OpenAD-Plugins/internal/application/reporting"
	"github.com/turtacn/OpenAD-Plugins/internal/bootstrap"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// DefaultClaimTTL bounds how long a crashed worker keeps a batch locked.
const DefaultClaimTTL = 30 * time.Minute

// PredictionProvider returns logged-in prediction services.
type PredictionProvider interface {
	Prediction(ctx context.Context) (*bootstrap.PredictionServices, error)
}

// Claimer keeps two workers from running the same batch id.
type Claimer interface {
	TryClaim(ctx context.Context, batchID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, batchID string) error
}

// Archive receives a copy of saved batch tables.
type Archive interface {
	Upload(ctx context.Context, workspace, name string, data []byte) (string, error)
}

// Config wires a BatchWorker. ClaimTTL defaults to DefaultClaimTTL.
type Config struct {
	Workspace    string
	WorkspaceDir string
	Provider     PredictionProvider
	// Claims and Archive are optional.
	Claims   Claimer
	Archive  Archive
	ClaimTTL time.Duration
	Logger   logging.Logger
}

// BatchWorker runs one queued batch per call. Batch lifecycle events are
// published by the prediction service itself.
type BatchWorker struct {
	cfg    Config
	logger logging.Logger
}

// NewBatchWorker applies the Config defaults.
func NewBatchWorker(cfg Config) *BatchWorker {
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = DefaultClaimTTL
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &BatchWorker{cfg: cfg, logger: log.Named("batch_worker")}
}

// Handle runs req. Requests for another workspace or without inputs fail
// validation and are therefore not retried.
func (w *BatchWorker) Handle(ctx context.Context, req reaction.BatchRequest) error {
	log := w.logger.With(logging.String("batch_id", req.BatchID))

	if req.Workspace != "" && !strings.EqualFold(req.Workspace, w.cfg.Workspace) {
		return errors.Newf(errors.ErrCodeValidation, "batch %s targets workspace %s, this worker serves %s",
			req.BatchID, req.Workspace, w.cfg.Workspace)
	}
	if len(req.Inputs) == 0 {
		return errors.Newf(errors.ErrCodeValidation, "batch %s has no inputs", req.BatchID)
	}

	if w.cfg.Claims != nil {
		ok, err := w.cfg.Claims.TryClaim(ctx, req.BatchID, w.cfg.ClaimTTL)
		if err != nil {
			return err
		}
		if !ok {
			log.Info("batch already claimed, skipping")
			return nil
		}
		defer func() {
			if err := w.cfg.Claims.Release(context.WithoutCancel(ctx), req.BatchID); err != nil {
				log.Warn("failed to release batch claim", logging.Err(err))
			}
		}()
	}

	svc, err := w.cfg.Provider.Prediction(ctx)
	if err != nil {
		return err
	}
	res, err := svc.Batch.Run(ctx, req.Inputs, prediction.BatchOptions{
		BatchID:  req.BatchID,
		Params:   req.Params,
		UseCache: req.UseCache,
	})
	if err != nil {
		return err
	}
	log.Info("batch completed",
		logging.Int("inputs", len(req.Inputs)),
		logging.Int("records", len(res.Records)))

	if req.SaveAs != "" {
		w.save(ctx, log, req.SaveAs, res)
	}
	return nil
}

// save writes the result table into the workspace. Failures only warn,
// the predictions are already cached.
func (w *BatchWorker) save(ctx context.Context, log logging.Logger, name string, res *reaction.BatchResult) {
	tbl := reporting.ReactionsTable(res)
	path, err := reporting.SaveCSV(w.cfg.WorkspaceDir, name, tbl)
	if err != nil {
		log.Warn("failed to save batch result", logging.String("save_as", name), logging.Err(err))
		return
	}
	if w.cfg.Archive == nil {
		return
	}
	var buf bytes.Buffer
	if err := reporting.WriteCSV(&buf, tbl); err != nil {
		log.Warn("failed to encode batch result", logging.Err(err))
		return
	}
	key, err := w.cfg.Archive.Upload(ctx, w.cfg.Workspace, filepath.Base(path), buf.Bytes())
	if err != nil {
		log.Warn("export upload failed", logging.String("file", path), logging.Err(err))
		return
	}
	log.Info("export uploaded", logging.String("key", key))
}
