package bootstrap

import (
	"github.com/turtacn/OpenAD-Plugins/internal/application/deepsearch"
	"github.com/turtacn/OpenAD-Plugins/internal/application/prediction"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/search/opensearch"
	"github.com/turtacn/OpenAD-Plugins/pkg/client"
)

// PredictionDeps are the per-workspace inputs of the RXN services.
type PredictionDeps struct {
	Workspace    string
	WorkspaceDir string
	API          prediction.RXNAPI
	Sleeper      prediction.Sleeper
	Reporter     prediction.StatusReporter
}

// PredictionServices groups the RXN services of one workspace.
type PredictionServices struct {
	Batch *prediction.BatchService
	Retro *prediction.RetroService
	Tools *prediction.Tools
	Cache reaction.ResultCache
}

// NewPredictionServices wires the RXN batch, retro and tool services over
// the shared cache backend and the metrics collector, if any.
func (i *Infrastructure) NewPredictionServices(d PredictionDeps, log logging.Logger) *PredictionServices {
	if log == nil {
		log = i.logger
	}
	policies := prediction.PoliciesFromConfig(i.cfg.RXN)
	validator := reaction.NewStructuralValidator()
	cache := i.ResultCache(d.Workspace, d.WorkspaceDir)

	submitOpts := []prediction.SubmitterOption{prediction.WithSubmitMetrics(i.Metrics)}
	pollOpts := []prediction.PollerOption{prediction.WithPollMetrics(i.Metrics)}
	if d.Sleeper != nil {
		submitOpts = append(submitOpts, prediction.WithSubmitSleeper(d.Sleeper))
		pollOpts = append(pollOpts, prediction.WithPollSleeper(d.Sleeper))
	}
	if d.Reporter != nil {
		submitOpts = append(submitOpts, prediction.WithSubmitReporter(d.Reporter))
		pollOpts = append(pollOpts, prediction.WithPollReporter(d.Reporter))
	}
	submitter := prediction.NewSubmitter(d.API, policies.Submit, log, submitOpts...)
	poller := prediction.NewPoller(d.API, policies.Poll, policies.RetroPoll, log, pollOpts...)

	return &PredictionServices{
		Batch: prediction.NewBatchService(prediction.BatchServiceConfig{
			Workspace:  d.Workspace,
			Classifier: prediction.NewClassifier(validator, cache, i.Metrics, log),
			Submitter:  submitter,
			Poller:     poller,
			Cache:      cache,
			Publisher:  i.Publisher(),
			Metrics:    i.Metrics,
			Logger:     log,
		}),
		Retro: prediction.NewRetroService(prediction.RetroServiceConfig{
			Workspace: d.Workspace,
			Validator: validator,
			Submitter: submitter,
			Poller:    poller,
			Cache:     cache,
			Analyses:  i.Analyses(),
			Routes:    i.Routes(),
			Logger:    log,
		}),
		Tools: prediction.NewTools(d.API, cache, d.WorkspaceDir, log),
		Cache: cache,
	}
}

// DeepSearchDeps are the per-session inputs of the Deep Search service.
// Remote must be a logged-in client; it always serves the catalog and the
// knowledge graph.
type DeepSearchDeps struct {
	Workspace string
	Remote    *client.DeepSearchClient
	Columns   deepsearch.ColumnReader
	Confirm   func(expected int64) bool
	Reporter  deepsearch.StatusReporter
}

// NewDeepSearchService builds the Deep Search service. Data queries go to
// OpenSearch when a cluster is configured and to the remote API otherwise.
func (i *Infrastructure) NewDeepSearchService(d DeepSearchDeps, log logging.Logger) *deepsearch.Service {
	if log == nil {
		log = i.logger
	}
	var data deepsearch.DataQuerier = d.Remote
	if i.OpenSearch != nil {
		data = opensearch.NewSearcher(i.OpenSearch, opensearch.SearcherConfig{
			SearchTimeout: i.cfg.DeepSearch.RequestTimeout,
		}, log)
	}
	return deepsearch.NewService(deepsearch.ServiceConfig{
		Workspace: d.Workspace,
		Catalog:   d.Remote,
		Data:      data,
		Knowledge: d.Remote,
		Columns:   d.Columns,
		Analyses:  i.Analyses(),
		MaxFanOut: i.cfg.DeepSearch.MaxFanOut,
		Confirm:   d.Confirm,
		Reporter:  d.Reporter,
		Metrics:   i.Metrics,
		Logger:    log,
	})
}
