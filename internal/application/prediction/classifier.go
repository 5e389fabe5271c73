package prediction

import (
	"context"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
)

// Classifier partitions a batch into invalid, cached and to-submit inputs.
type Classifier struct {
	validator reaction.Validator
	cache     reaction.ResultCache
	metrics   Metrics
	logger    logging.Logger
}

// NewClassifier builds a Classifier. A nil Metrics or Logger is replaced by
// a no-op implementation.
func NewClassifier(v reaction.Validator, cache reaction.ResultCache, m Metrics, log logging.Logger) *Classifier {
	if m == nil {
		m = nopMetrics{}
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Classifier{validator: v, cache: cache, metrics: m, logger: log}
}

// Classify checks validity before the cache, so an invalid input never
// reaches a lookup. Repeated inputs land in the same partition once.
func (c *Classifier) Classify(ctx context.Context, inputs []string, useCache bool, logicalName string) *reaction.BatchClassification {
	cls := reaction.NewBatchClassification()
	seen := make(map[string]struct{}, len(inputs))

	for _, input := range inputs {
		if _, dup := seen[input]; dup {
			continue
		}
		seen[input] = struct{}{}

		if bad := reaction.InvalidFragments(c.validator, input); len(bad) > 0 {
			cls.Invalid[input] = bad
			c.logger.Debug("invalid input", logging.String("input", input), logging.Strings("fragments", bad))
			continue
		}

		if useCache && c.cache != nil {
			payload, hit := c.cache.Retrieve(ctx, logicalName, reaction.NormalizedKey(input))
			c.metrics.ObserveCacheLookup(hit)
			if hit {
				cls.Cached[input] = payload
				continue
			}
		}

		cls.ToSubmit = append(cls.ToSubmit, input)
	}

	c.logger.Info("batch classified",
		logging.Int("inputs", len(inputs)),
		logging.Int("invalid", len(cls.Invalid)),
		logging.Int("cached", len(cls.Cached)),
		logging.Int("to_submit", len(cls.ToSubmit)))
	return cls
}
