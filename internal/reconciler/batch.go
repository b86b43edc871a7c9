package reconciler

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"

	"statement-reconciler/pkg/logger"
)

// RunBatch reconciles several statements concurrently, at most
// Concurrency at a time. A failing statement does not stop the others: the
// returned slice follows the input order with nil at failed positions, and
// the error combines every per-statement failure.
func (s *Service) RunBatch(ctx context.Context, reqs []Request) ([]*Result, error) {
	results := make([]*Result, len(reqs))
	if len(reqs) == 0 {
		return results, nil
	}

	workers := s.config.Concurrency
	if workers <= 0 {
		workers = 1
	}

	progress := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "reconcile_batch",
		Total:     int64(len(reqs)),
		Logger:    s.logger,
	})

	errs := make([]error, len(reqs))
	p := pool.New().WithMaxGoroutines(workers)
	for i, req := range reqs {
		p.Go(func() {
			res, err := s.Run(ctx, req)
			if err != nil {
				errs[i] = errors.Wrapf(err, "statement %s", req.Name())
			} else {
				results[i] = res
			}
			progress.Increment(err != nil)
		})
	}
	p.Wait()
	progress.Complete()

	err := multierr.Combine(errs...)
	if err != nil {
		s.logger.WithFields(logger.Fields{
			"statements": len(reqs),
			"failed":     len(multierr.Errors(err)),
		}).Warn("Batch finished with failed statements")
	}
	return results, err
}

// BatchSummary counts the outcomes of a batch.
type BatchSummary struct {
	Statements int `json:"statements"`
	Failed     int `json:"failed"`
	Passed     int `json:"passed"`
	NotPassed  int `json:"not_passed"`
}

// Summarize counts passed, not passed and failed runs
func Summarize(results []*Result) BatchSummary {
	sum := BatchSummary{Statements: len(results)}
	for _, r := range results {
		switch {
		case r == nil:
			sum.Failed++
		case r.Report.Passed:
			sum.Passed++
		default:
			sum.NotPassed++
		}
	}
	return sum
}
