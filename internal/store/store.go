// Package store persists extraction observations, reconciled fields,
// rules, and matrix decisions. Two backends: SQLite for single-machine
// runs, Postgres for shared deployments.
package store

import (
	"context"

	"github.com/sells-group/chemsafe-cli/internal/model"
)

// Store is the persistence interface for the reconciliation and matrix
// pipeline. Extraction records and matrix decisions are append-only;
// reconciled fields keep one current row per (chemical_id, field_name);
// rules are replaced wholesale per origin on reload.
type Store interface {
	// Extraction observations
	AppendRecords(ctx context.Context, records []model.ExtractionRecord) error
	RecordsFor(ctx context.Context, chemicalID string) ([]model.ExtractionRecord, error)

	// Reconciled fields
	UpsertReconciledFields(ctx context.Context, fields []model.ReconciledField) error
	FieldsFor(ctx context.Context, chemicalID string) ([]model.ReconciledField, error)
	AllReconciledFields(ctx context.Context) ([]model.ReconciledField, error)

	// Rules
	ReplaceRules(ctx context.Context, origin model.RuleOrigin, rules []model.IncompatibilityRule) error
	LoadRules(ctx context.Context) ([]model.IncompatibilityRule, error)

	// Matrix decisions. DecisionsFor returns the full historical log
	// for a pair, oldest first; the last row is the current decision.
	AppendDecisions(ctx context.Context, decisions []model.MatrixDecision) error
	DecisionsFor(ctx context.Context, chemicalA, chemicalB string) ([]model.MatrixDecision, error)
	LatestDecisions(ctx context.Context) ([]model.MatrixDecision, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
