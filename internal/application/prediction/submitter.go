package prediction

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/pkg/client"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

var (
	errEmptyResponse = stderrors.New("empty response from the server")
	errNoTaskID      = stderrors.New("no task_id returned")
	errNoPredictID   = stderrors.New("no prediction_id returned")
)

// Submitter launches remote prediction jobs under a bounded attempt budget.
type Submitter struct {
	api      RXNAPI
	policy   RetryPolicy
	sleeper  Sleeper
	reporter StatusReporter
	metrics  Metrics
	logger   logging.Logger
}

// SubmitterOption customizes a Submitter.
type SubmitterOption func(*Submitter)

// WithSubmitSleeper replaces the timer used between retries. Tests pass a
// fake sleeper to run retry schedules instantly.
func WithSubmitSleeper(s Sleeper) SubmitterOption {
	return func(sub *Submitter) { sub.sleeper = s }
}

// WithSubmitReporter receives "submitting" status lines.
func WithSubmitReporter(r StatusReporter) SubmitterOption {
	return func(sub *Submitter) { sub.reporter = r }
}

// WithSubmitMetrics records one observation per submit attempt.
func WithSubmitMetrics(m Metrics) SubmitterOption {
	return func(sub *Submitter) { sub.metrics = m }
}

// NewSubmitter builds a Submitter that calls api at most policy.MaxAttempts
// times per submission, sleeping policy.Interval between attempts. A policy
// with fewer than one attempt still submits once.
func NewSubmitter(api RXNAPI, policy RetryPolicy, log logging.Logger, opts ...SubmitterOption) *Submitter {
	if log == nil {
		log = logging.NewNopLogger()
	}
	s := &Submitter{
		api:      api,
		policy:   policy,
		sleeper:  RealSleeper(),
		reporter: silentReporter{},
		metrics:  nopMetrics{},
		logger:   log.Named("submitter"),
	}
	for _, o := range opts {
		o(s)
	}
	if s.policy.MaxAttempts < 1 {
		s.policy.MaxAttempts = 1
	}
	return s
}

// Submit sends toSubmit to the batch endpoint, or the top-N endpoint when
// params ask for more than one candidate, and returns the task id.
func (s *Submitter) Submit(ctx context.Context, toSubmit []string, params reaction.ReactionParams) (string, error) {
	attempt := func(ctx context.Context) (string, error) {
		var (
			resp *client.TaskResponse
			err  error
		)
		if params.IsTopN() {
			lists := make([][]string, len(toSubmit))
			for i, in := range toSubmit {
				lists[i] = reaction.Fragments(in)
			}
			resp, err = s.api.PredictReactionBatchTopN(ctx, lists, params.TopN, params.Model)
		} else {
			resp, err = s.api.PredictReactionBatch(ctx, toSubmit, params.Model)
		}
		switch {
		case err != nil:
			return "", err
		case resp == nil:
			return "", errEmptyResponse
		case resp.TaskID == "":
			return "", errNoTaskID
		}
		return resp.TaskID, nil
	}

	id, err := s.retry(ctx, StageSubmit, "Processing prediction", attempt)
	if err != nil {
		return "", err
	}
	s.logger.Info("prediction task created", logging.String("task_id", id), logging.Int("reactions", len(toSubmit)))
	return id, nil
}

// SubmitRetro launches a retrosynthesis for smiles. An error message in the
// answer fails immediately.
func (s *Submitter) SubmitRetro(ctx context.Context, smiles string, p reaction.RetroParams) (string, error) {
	req := client.RetroRequest{
		Product:                      smiles,
		AvailabilityPricingThreshold: p.AvailabilityPricingThreshold,
		AvailableSmiles:              p.AvailableSmiles,
		ExcludeSmiles:                p.ExcludeSmiles,
		ExcludeSubstructures:         p.ExcludeSubstructures,
		ExcludeTargetMolecule:        p.ExcludeTargetMolecule,
		FAP:                          p.FAP,
		MaxSteps:                     p.MaxSteps,
		NBeams:                       p.NBeams,
		PruningSteps:                 p.PruningSteps,
		AIModel:                      p.Model,
	}

	var remoteErr string
	attempt := func(ctx context.Context) (string, error) {
		resp, err := s.api.PredictRetrosynthesis(ctx, req)
		switch {
		case err != nil:
			return "", err
		case resp == nil:
			return "", errEmptyResponse
		case resp.ErrorMessage() != "":
			remoteErr = resp.ErrorMessage()
			return "", errTerminal
		case resp.PredictionID == "":
			return "", errNoPredictID
		}
		return resp.PredictionID, nil
	}

	id, err := s.retry(ctx, StageRetroSubmit, "Starting retrosynthesis", attempt)
	if remoteErr != "" {
		return "", errors.New(errors.ErrCodeRXNJobFailed, remoteErr)
	}
	if err != nil {
		return "", err
	}
	s.logger.Info("retrosynthesis started", logging.String("prediction_id", id), logging.String("smiles", smiles))
	return id, nil
}

var errTerminal = stderrors.New("terminal remote error")

func (s *Submitter) retry(ctx context.Context, stage, label string, fn func(context.Context) (string, error)) (string, error) {
	var lastErr error
	for n := 1; n <= s.policy.MaxAttempts; n++ {
		if n == 1 {
			s.reporter.Status(label)
		} else {
			s.reporter.Status(fmt.Sprintf("%s - retry #%d", label, n-1))
		}

		id, err := fn(ctx)
		s.metrics.ObserveAttempt(stage, err == nil)
		if err == nil {
			return id, nil
		}
		if stderrors.Is(err, errTerminal) {
			return "", err
		}
		lastErr = err
		s.logger.Warn("submission attempt failed", logging.Int("attempt", n), logging.Err(err))

		if n < s.policy.MaxAttempts {
			if serr := s.sleeper.Sleep(ctx, s.policy.Interval); serr != nil {
				return "", errors.Wrap(serr, errors.ErrCodeRXNSubmitFailed, "submission cancelled")
			}
		}
	}
	return "", errors.Newf(errors.ErrCodeRXNSubmitFailed, "server unresponsive after %d retries", s.policy.MaxAttempts).
		WithDetail(lastErr.Error()).
		WithCause(lastErr)
}
