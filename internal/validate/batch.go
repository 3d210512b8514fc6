package validate

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/chemsafe-cli/internal/config"
	"github.com/sells-group/chemsafe-cli/internal/model"
	"github.com/sells-group/chemsafe-cli/internal/reconcile"
	"github.com/sells-group/chemsafe-cli/internal/resilience"
)

// BatchValidator cross-validates a batch of observations against the
// reference dataset with a bounded worker pool. The pool shares one
// rate limiter (owned by the Client); the breaker stops hammering a
// reference that is down.
type BatchValidator struct {
	client  Client
	breaker *resilience.CircuitBreaker
	workers int
	timeout time.Duration
	penalty float64
}

// NewBatchValidator builds a validator from config.
func NewBatchValidator(client Client, cfg config.ValidateConfig) *BatchValidator {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BatchValidator{
		client:  client,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
		workers: workers,
		timeout: timeout,
		penalty: cfg.FailurePenalty,
	}
}

// ValidateAll enriches records in place: a confirming lookup sets
// CrossValidated, a contradicting or failed lookup degrades that one
// record's confidence. One chemical's lookup never blocks another's
// reconciliation; the batch always completes.
func (bv *BatchValidator) ValidateAll(ctx context.Context, records []model.ExtractionRecord) []model.ExtractionRecord {
	out := make([]model.ExtractionRecord, len(records))
	copy(out, records)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bv.workers)

	for i := range out {
		// Only identifier-like fields have reference entries worth
		// querying; everything else keeps its extraction confidence.
		if !model.IsIdentifierField(out[i].FieldName) {
			continue
		}
		g.Go(func() error {
			bv.validateOne(gctx, &out[i])
			return nil
		})
	}

	// Workers never return errors; failures degrade single records.
	_ = g.Wait()
	return out
}

func (bv *BatchValidator) validateOne(ctx context.Context, rec *model.ExtractionRecord) {
	lctx, cancel := context.WithTimeout(ctx, bv.timeout)
	defer cancel()

	lookup, err := resilience.ExecuteVal(lctx, bv.breaker, func(ctx context.Context) (*Lookup, error) {
		return bv.client.Check(ctx, rec.FieldName, rec.RawValue)
	})
	if err != nil {
		// ExternalLookupFailure: degrade this observation only.
		rec.Confidence -= bv.penalty
		if rec.Confidence < 0 {
			rec.Confidence = 0
		}
		zap.L().Warn("validate: reference lookup failed, degrading observation",
			zap.String("chemical_id", rec.ChemicalID),
			zap.String("field", rec.FieldName),
			zap.Float64("confidence", rec.Confidence),
			zap.Error(err),
		)
		return
	}
	if lookup == nil {
		// Not found in the reference: neither confirmation nor denial.
		return
	}

	if lookup.IsValid && sameValue(rec.FieldName, rec.RawValue, lookup.CanonicalValue) {
		rec.CrossValidated = true
		if lookup.ConfidenceHint > rec.Confidence {
			rec.Confidence = lookup.ConfidenceHint
		}
		return
	}

	rec.Confidence -= bv.penalty
	if rec.Confidence < 0 {
		rec.Confidence = 0
	}
	zap.L().Debug("validate: reference disagrees with observation",
		zap.String("chemical_id", rec.ChemicalID),
		zap.String("field", rec.FieldName),
		zap.String("observed", rec.RawValue),
		zap.String("canonical", lookup.CanonicalValue),
	)
}

func sameValue(fieldName, observed, canonical string) bool {
	if canonical == "" {
		return true
	}
	return reconcile.NormalizeValue(fieldName, observed) == reconcile.NormalizeValue(fieldName, canonical)
}
