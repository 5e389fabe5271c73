package prediction

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
)

type batchState string

const (
	stateClassify   batchState = "CLASSIFY"
	stateSubmit     batchState = "SUBMIT"
	statePoll       batchState = "POLL"
	stateReassemble batchState = "REASSEMBLE"
)

// BatchOptions parameterize one reaction prediction batch.
type BatchOptions struct {
	BatchID  string
	Params   reaction.ReactionParams
	UseCache bool
}

// BatchService runs the reaction prediction state machine:
// CLASSIFY -> [SUBMIT -> POLL] -> REASSEMBLE. A submit or poll failure
// aborts the whole batch.
type BatchService struct {
	workspace  string
	classifier *Classifier
	submitter  *Submitter
	poller     *Poller
	cache      reaction.ResultCache
	publisher  EventPublisher
	metrics    Metrics
	logger     logging.Logger
	now        func() time.Time
}

// BatchServiceConfig wires a BatchService. Publisher, Metrics and Logger
// are optional.
type BatchServiceConfig struct {
	Workspace  string
	Classifier *Classifier
	Submitter  *Submitter
	Poller     *Poller
	Cache      reaction.ResultCache
	Publisher  EventPublisher
	Metrics    Metrics
	Logger     logging.Logger
}

// NewBatchService builds the forward prediction service of one workspace.
func NewBatchService(cfg BatchServiceConfig) *BatchService {
	s := &BatchService{
		workspace:  cfg.Workspace,
		classifier: cfg.Classifier,
		submitter:  cfg.Submitter,
		poller:     cfg.Poller,
		cache:      cfg.Cache,
		publisher:  cfg.Publisher,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		now:        time.Now,
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.logger == nil {
		s.logger = logging.NewNopLogger()
	}
	s.logger = s.logger.Named("batch")
	return s
}

// Run predicts inputs. On failure the error is the only result.
func (s *BatchService) Run(ctx context.Context, inputs []string, opts BatchOptions) (*reaction.BatchResult, error) {
	if opts.BatchID == "" {
		opts.BatchID = uuid.NewString()
	}
	name := opts.Params.LogicalName()
	log := s.logger.With(logging.String("batch_id", opts.BatchID), logging.String("logical_name", name))

	var (
		cls         *reaction.BatchClassification
		jobID       string
		predictions []reaction.Payload
		err         error
	)

	state := stateClassify
	for {
		log.Debug("batch state", logging.String("state", string(state)))
		switch state {
		case stateClassify:
			cls = s.classifier.Classify(ctx, inputs, opts.UseCache, name)
			if cls.NeedsSubmission() {
				state = stateSubmit
			} else {
				state = stateReassemble
			}

		case stateSubmit:
			jobID, err = s.submitter.Submit(ctx, cls.ToSubmit, opts.Params)
			if err != nil {
				return nil, s.abort(ctx, log, opts, len(inputs), err)
			}
			state = statePoll

		case statePoll:
			predictions, err = s.poller.PollReactions(ctx, jobID, len(cls.ToSubmit), opts.Params.IsTopN())
			if err != nil {
				return nil, s.abort(ctx, log, opts, len(inputs), err)
			}
			s.storeFresh(ctx, name, cls.ToSubmit, predictions)
			state = stateReassemble

		case stateReassemble:
			records, err := Reassemble(inputs, cls, predictions)
			if err != nil {
				return nil, s.abort(ctx, log, opts, len(inputs), err)
			}
			result := &reaction.BatchResult{
				BatchID: opts.BatchID,
				JobID:   jobID,
				Params:  opts.Params,
				Records: records,
			}
			for _, r := range records {
				switch r.Provenance {
				case reaction.ProvenanceInvalid:
					result.Invalid++
				case reaction.ProvenanceCached:
					result.Cached++
				default:
					result.Fresh++
				}
			}
			s.metrics.ObserveBatch("completed", result.Invalid, result.Cached, result.Fresh)
			s.publish(ctx, log, reaction.CompletedEvent(s.workspace, result, s.now()))
			log.Info("batch completed",
				logging.Int("invalid", result.Invalid),
				logging.Int("cached", result.Cached),
				logging.Int("fresh", result.Fresh))
			return result, nil
		}
	}
}

// storeFresh writes two records per prediction: under the input key and
// under the key of the reactants the service echoed back.
func (s *BatchService) storeFresh(ctx context.Context, name string, submitted []string, predictions []reaction.Payload) {
	if s.cache == nil {
		return
	}
	for i, in := range submitted {
		p := predictions[i]
		if p == nil {
			continue
		}
		inKey := reaction.NormalizedKey(in)
		s.cache.Store(ctx, name, inKey, p)
		if outKey := outputKeyOf(p); outKey != "" && outKey != inKey {
			s.cache.Store(ctx, name, outKey, p)
		}
	}
}

// outputKeyOf uses the best candidate for top-N payloads.
func outputKeyOf(p reaction.Payload) string {
	if k := p.OutputKey(); k != "" {
		return k
	}
	if top := p.TopN(); len(top) > 0 {
		return top[0].OutputKey()
	}
	return ""
}

func (s *BatchService) abort(ctx context.Context, log logging.Logger, opts BatchOptions, total int, err error) error {
	log.Error("batch aborted", logging.Err(err))
	s.metrics.ObserveBatch("aborted", 0, 0, 0)
	s.publish(ctx, log, reaction.AbortedEvent(s.workspace, opts.BatchID, opts.Params, total, err, s.now()))
	return err
}

func (s *BatchService) publish(ctx context.Context, log logging.Logger, ev reaction.BatchEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishBatchEvent(ctx, ev); err != nil {
		log.Warn("failed to publish batch event", logging.String("type", string(ev.Type)), logging.Err(err))
	}
}
