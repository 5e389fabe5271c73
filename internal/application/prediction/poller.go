package prediction

import (
	"context"
	"fmt"
	"strings"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/pkg/client"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// JobState is the observed state of a remote job.
type JobState int

const (
	JobPending JobState = iota
	JobRunning
	JobSucceeded
	JobFailed
)

func (s JobState) String() string {
	switch s {
	case JobPending:
		return "PENDING"
	case JobRunning:
		return "RUNNING"
	case JobSucceeded:
		return "SUCCEEDED"
	case JobFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Observation is the outcome of one poll. Reason explains Running (the
// transient cause) and Failed (the terminal cause).
type Observation struct {
	State  JobState
	Reason string
}

func running(reason string) Observation { return Observation{State: JobRunning, Reason: reason} }
func failed(reason string) Observation  { return Observation{State: JobFailed, Reason: reason} }

var succeeded = Observation{State: JobSucceeded}

// Remote status values treated as terminal failures.
var failedStatuses = map[string]bool{"ERROR": true, "FAILED": true, "FAILURE": true}

// Poller drives a job from Pending to Succeeded or Failed.
type Poller struct {
	api      RXNAPI
	policy   RetryPolicy
	retro    RetryPolicy
	sleeper  Sleeper
	reporter StatusReporter
	metrics  Metrics
	logger   logging.Logger
}

// PollerOption customizes a Poller.
type PollerOption func(*Poller)

// WithPollSleeper replaces the timer used between status checks.
func WithPollSleeper(s Sleeper) PollerOption {
	return func(p *Poller) { p.sleeper = s }
}

// WithPollReporter receives the waiting and processing status lines.
func WithPollReporter(r StatusReporter) PollerOption {
	return func(p *Poller) { p.reporter = r }
}

// WithPollMetrics records one observation per status check.
func WithPollMetrics(m Metrics) PollerOption {
	return func(p *Poller) { p.metrics = m }
}

// NewPoller builds a Poller. Reaction tasks are polled under reactions and
// retrosynthesis predictions under retro; each policy bounds the number of
// checks and the delay between them.
func NewPoller(api RXNAPI, reactions, retro RetryPolicy, log logging.Logger, opts ...PollerOption) *Poller {
	if log == nil {
		log = logging.NewNopLogger()
	}
	p := &Poller{
		api:      api,
		policy:   reactions,
		retro:    retro,
		sleeper:  RealSleeper(),
		reporter: silentReporter{},
		metrics:  nopMetrics{},
		logger:   log.Named("poller"),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// PollReactions waits for a batch task. The result has exactly expected
// entries, aligned with the submitted list.
func (p *Poller) PollReactions(ctx context.Context, taskID string, expected int, topn bool) ([]reaction.Payload, error) {
	var predictions []reaction.Payload

	observe := func(ctx context.Context) Observation {
		res, err := p.api.GetReactionBatchResults(ctx, taskID, topn)
		if err != nil {
			return running(err.Error())
		}
		if res == nil {
			return running("empty response from the server")
		}
		if res.Error != "" {
			return failed(res.Error)
		}
		if failedStatuses[strings.ToUpper(res.TaskStatus)] {
			return failed("task " + taskID + " reported status " + res.TaskStatus)
		}
		if len(res.Predictions) == 0 {
			return running("no predictions returned")
		}
		if len(res.Predictions) != expected {
			return failed(fmt.Sprintf("expected %d predictions, got %d", expected, len(res.Predictions)))
		}
		predictions = make([]reaction.Payload, len(res.Predictions))
		for i, pr := range res.Predictions {
			predictions[i] = reaction.Payload(pr)
		}
		return succeeded
	}

	if err := p.run(ctx, StagePoll, "Processing prediction", p.policy, observe); err != nil {
		return nil, err
	}
	return predictions, nil
}

// PollRetro waits for a retrosynthesis and returns its paths.
func (p *Poller) PollRetro(ctx context.Context, predictionID string) ([]*reaction.RetroNode, error) {
	var trees []*reaction.RetroNode

	observe := func(ctx context.Context) Observation {
		res, err := p.api.GetRetrosynthesisResults(ctx, predictionID)
		if err != nil {
			return running(err.Error())
		}
		if res == nil || res.Status == "" {
			return running("empty response from the server")
		}
		status := strings.ToUpper(res.Status)
		if failedStatuses[status] {
			return failed("retrosynthesis " + predictionID + " reported status " + res.Status)
		}
		if status != "SUCCESS" {
			return running("status " + res.Status)
		}
		if len(res.RetrosyntheticPaths) == 0 {
			return failed("unable to find a retrosynthetic path")
		}
		trees = make([]*reaction.RetroNode, 0, len(res.RetrosyntheticPaths))
		for _, t := range res.RetrosyntheticPaths {
			trees = append(trees, toRetroNode(t))
		}
		return succeeded
	}

	if err := p.run(ctx, StageRetroPoll, "Processing retrosynthesis", p.retro, observe); err != nil {
		return nil, err
	}
	return trees, nil
}

// run is the bounded state machine shared by both pollers.
func (p *Poller) run(ctx context.Context, stage, label string, policy RetryPolicy, observe func(context.Context) Observation) error {
	limit := policy.MaxAttempts
	if limit < 1 {
		limit = 1
	}

	state := Observation{State: JobPending}
	for n := 1; n <= limit; n++ {
		state = observe(ctx)
		p.metrics.ObserveAttempt(stage, state.State == JobSucceeded)

		switch state.State {
		case JobSucceeded:
			p.reporter.Status("Done")
			return nil
		case JobFailed:
			p.logger.Warn("job failed", logging.String("stage", stage), logging.String("reason", state.Reason))
			return errors.New(errors.ErrCodeRXNJobFailed, state.Reason)
		}

		if n == 1 {
			p.reporter.Status(label)
		} else {
			p.reporter.Status(fmt.Sprintf("%s - retry #%d", label, n-1))
		}
		p.logger.Debug("job still running", logging.Int("attempt", n), logging.String("reason", state.Reason))

		if n < limit {
			if err := p.sleeper.Sleep(ctx, policy.Interval); err != nil {
				return errors.Wrap(err, errors.ErrCodeRXNPollFailed, "polling cancelled")
			}
		}
	}

	return errors.Newf(errors.ErrCodeRXNPollFailed, "server unresponsive after %d retries", limit).WithDetail(state.Reason)
}

func toRetroNode(t *client.RetroTree) *reaction.RetroNode {
	if t == nil {
		return nil
	}
	n := &reaction.RetroNode{Smiles: t.Smiles, Confidence: t.Confidence}
	for _, c := range t.Children {
		if child := toRetroNode(c); child != nil {
			n.Children = append(n.Children, child)
		}
	}
	return n
}
