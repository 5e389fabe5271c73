package deepsearch

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/pkg/client"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// ToolkitDS tags analysis records written by the Deep Search plugin.
const ToolkitDS = "DS4SD"

const defaultMaxFanOut = 4

// Service runs Deep Search commands.
type Service struct {
	workspace string
	catalog   Catalog
	data      DataQuerier
	knowledge KnowledgeGraph
	validator reaction.Validator
	columns   ColumnReader
	analyses  reaction.AnalysisRepository
	maxFanOut int
	confirm   func(expected int64) bool
	reporter  StatusReporter
	metrics   Metrics
	logger    logging.Logger
	now       func() time.Time
}

// ServiceConfig wires a Service. Catalog backs every operation; Data and
// Knowledge are needed only by the search operations that use them. The
// remaining fields fall back to defaults.
type ServiceConfig struct {
	Workspace string
	Catalog   Catalog
	Data      DataQuerier
	Knowledge KnowledgeGraph
	Validator reaction.Validator
	Columns   ColumnReader
	// Analyses is optional.
	Analyses  reaction.AnalysisRepository
	MaxFanOut int
	// Confirm is asked before fetching more than LargeResultThreshold
	// results. Nil proceeds without asking.
	Confirm  func(expected int64) bool
	Reporter StatusReporter
	Metrics  Metrics
	Logger   logging.Logger
}

// NewService builds the Deep Search service. MaxFanOut defaults to 4
// concurrent collection queries.
func NewService(cfg ServiceConfig) *Service {
	log := cfg.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	s := &Service{
		workspace: cfg.Workspace,
		catalog:   cfg.Catalog,
		data:      cfg.Data,
		knowledge: cfg.Knowledge,
		validator: cfg.Validator,
		columns:   cfg.Columns,
		analyses:  cfg.Analyses,
		maxFanOut: cfg.MaxFanOut,
		confirm:   cfg.Confirm,
		reporter:  cfg.Reporter,
		metrics:   cfg.Metrics,
		logger:    log.Named("deepsearch"),
		now:       time.Now,
	}
	if s.maxFanOut <= 0 {
		s.maxFanOut = defaultMaxFanOut
	}
	if s.validator == nil {
		s.validator = reaction.NewStructuralValidator()
	}
	if s.reporter == nil {
		s.reporter = silentReporter{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	return s
}

// observe times fn under op and wraps its error as a query failure.
func (s *Service) observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.metrics.ObserveQuery(op, time.Since(start), err == nil)
	if err == nil {
		return nil
	}
	s.logger.Warn("query failed", logging.String("op", op), logging.Err(err))
	detail := err.Error()
	if strings.Contains(detail, "too_many_nested_clauses") {
		detail = "the query expands to too many clauses, try a more specific query"
	}
	return errors.Wrap(err, errors.ErrCodeDSQueryFailed, "Deep Search query failed").WithDetail(detail)
}

// collections lists every collection sorted by case-insensitive name.
func (s *Service) collections(ctx context.Context) ([]client.Collection, error) {
	var cols []client.Collection
	err := s.observe(OpListCollections, func() error {
		var err error
		cols, err = s.catalog.ListCollections(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(cols, func(i, j int) bool {
		return strings.ToLower(cols[i].Name) < strings.ToLower(cols[j].Name)
	})
	return cols, nil
}

func (s *Service) saveAnalysis(ctx context.Context, subject, function string, results interface{}) {
	if s.analyses == nil {
		return
	}
	rec := &reaction.AnalysisRecord{
		ID:         uuid.NewString(),
		Workspace:  s.workspace,
		SMILES:     subject,
		Toolkit:    ToolkitDS,
		Function:   function,
		Parameters: map[string]interface{}{},
		Results:    results,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.analyses.Save(ctx, rec); err != nil {
		s.logger.Warn("failed to save analysis record",
			logging.String("function", function), logging.Err(err))
	}
}
