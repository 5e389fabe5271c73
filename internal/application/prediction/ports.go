// Package prediction orchestrates RXN reaction and retrosynthesis
// predictions: input classification, job submission, polling, result
// reassembly and caching.
package prediction

import (
	"context"
	"time"

	"github.com/turtacn/OpenAD-Plugins/internal/config"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/pkg/client"
)

// RXNAPI is the part of the RXN client the predictions depend on.
type RXNAPI interface {
	PredictReactionBatch(ctx context.Context, reactions []string, model string) (*client.TaskResponse, error)
	PredictReactionBatchTopN(ctx context.Context, reactions [][]string, topn int, model string) (*client.TaskResponse, error)
	GetReactionBatchResults(ctx context.Context, taskID string, topn bool) (*client.BatchResults, error)
	PredictRetrosynthesis(ctx context.Context, req client.RetroRequest) (*client.RetroSubmission, error)
	GetRetrosynthesisResults(ctx context.Context, predictionID string) (*client.RetroResults, error)
	ListModels(ctx context.Context) (map[string][]client.ModelVersion, error)
	ParagraphToActions(ctx context.Context, paragraph string) ([]string, error)
}

var _ RXNAPI = (*client.RXNClient)(nil)

// Sleeper waits between attempts. Sleep returns early with ctx.Err() when
// the context ends.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RealSleeper sleeps on the wall clock.
func RealSleeper() Sleeper { return timerSleeper{} }

// StatusReporter receives transient progress messages such as
// "Processing prediction - retry #2". It plays no part in correctness.
type StatusReporter interface {
	Status(msg string)
}

type silentReporter struct{}

func (silentReporter) Status(string) {}

// EventPublisher emits batch lifecycle events.
type EventPublisher interface {
	PublishBatchEvent(ctx context.Context, ev reaction.BatchEvent) error
}

// Metrics receives prediction counters.
type Metrics interface {
	ObserveAttempt(stage string, ok bool)
	ObserveCacheLookup(hit bool)
	ObserveBatch(outcome string, invalid, cached, fresh int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveAttempt(string, bool)        {}
func (nopMetrics) ObserveCacheLookup(bool)            {}
func (nopMetrics) ObserveBatch(string, int, int, int) {}

// Stage labels for Metrics.ObserveAttempt.
const (
	StageSubmit      = "submit"
	StagePoll        = "poll"
	StageRetroSubmit = "retro_submit"
	StageRetroPoll   = "retro_poll"
)

// RetryPolicy is a bounded attempt budget with a fixed wait between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// Policies groups the three attempt budgets.
type Policies struct {
	Submit    RetryPolicy
	Poll      RetryPolicy
	RetroPoll RetryPolicy
}

// DefaultPolicies: submit 5 x 2s, reaction poll 10 x 2s, retro poll 30 x 10s.
func DefaultPolicies() Policies {
	return Policies{
		Submit:    RetryPolicy{MaxAttempts: 5, Interval: 2 * time.Second},
		Poll:      RetryPolicy{MaxAttempts: 10, Interval: 2 * time.Second},
		RetroPoll: RetryPolicy{MaxAttempts: 30, Interval: 10 * time.Second},
	}
}

// PoliciesFromConfig reads the budgets from cfg, keeping defaults for
// unset values.
func PoliciesFromConfig(cfg config.RXNConfig) Policies {
	p := DefaultPolicies()
	if cfg.SubmitMaxAttempts > 0 {
		p.Submit.MaxAttempts = cfg.SubmitMaxAttempts
	}
	if cfg.SubmitBackoff > 0 {
		p.Submit.Interval = cfg.SubmitBackoff
	}
	if cfg.PollMaxAttempts > 0 {
		p.Poll.MaxAttempts = cfg.PollMaxAttempts
	}
	if cfg.PollInterval > 0 {
		p.Poll.Interval = cfg.PollInterval
	}
	if cfg.RetroPollAttempts > 0 {
		p.RetroPoll.MaxAttempts = cfg.RetroPollAttempts
	}
	if cfg.RetroPollInterval > 0 {
		p.RetroPoll.Interval = cfg.RetroPollInterval
	}
	return p
}
