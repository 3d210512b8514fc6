package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/chemsafe-cli/internal/db"
	"github.com/sells-group/chemsafe-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"records_for":        `SELECT id, chemical_id, field_name, raw_value, source, confidence, scored_tier, context_snippet, pattern_strength, cross_validated, extracted_at FROM extraction_records WHERE chemical_id = $1 ORDER BY field_name, extracted_at, id`,
	"fields_for":         `SELECT chemical_id, field_name, value, confidence, quality_tier, contributing_ids, validated, not_found, tier_disagreement, reconciled_at FROM reconciled_fields WHERE chemical_id = $1 ORDER BY field_name`,
	"decisions_for_pair": `SELECT id, chemical_a, chemical_b, decision, confidence, justification, contributing_rule_ids, elevated, elevation_reason, decided_at FROM matrix_decisions WHERE pair_key = $1 ORDER BY decided_at, id`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS extraction_records (
	id               TEXT PRIMARY KEY,
	chemical_id      TEXT NOT NULL,
	field_name       TEXT NOT NULL,
	raw_value        TEXT NOT NULL,
	source           TEXT NOT NULL,
	confidence       DOUBLE PRECISION NOT NULL,
	scored_tier      TEXT NOT NULL DEFAULT '',
	context_snippet  TEXT NOT NULL DEFAULT '',
	pattern_strength DOUBLE PRECISION NOT NULL DEFAULT 0,
	cross_validated  BOOLEAN NOT NULL DEFAULT FALSE,
	extracted_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS reconciled_fields (
	chemical_id       TEXT NOT NULL,
	field_name        TEXT NOT NULL,
	value             TEXT NOT NULL,
	confidence        DOUBLE PRECISION NOT NULL,
	quality_tier      TEXT NOT NULL,
	contributing_ids  JSONB NOT NULL DEFAULT '[]',
	validated         BOOLEAN NOT NULL DEFAULT FALSE,
	not_found         BOOLEAN NOT NULL DEFAULT FALSE,
	tier_disagreement BOOLEAN NOT NULL DEFAULT FALSE,
	reconciled_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chemical_id, field_name)
);

CREATE TABLE IF NOT EXISTS rules (
	id            TEXT PRIMARY KEY,
	pair_key      TEXT NOT NULL,
	chemical_low  TEXT NOT NULL,
	chemical_high TEXT NOT NULL,
	rule_type     TEXT NOT NULL,
	origin        TEXT NOT NULL,
	justification TEXT NOT NULL,
	priority      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS matrix_decisions (
	id                    TEXT PRIMARY KEY,
	pair_key              TEXT NOT NULL,
	chemical_a            TEXT NOT NULL,
	chemical_b            TEXT NOT NULL,
	decision              TEXT NOT NULL,
	confidence            DOUBLE PRECISION NOT NULL,
	justification         TEXT NOT NULL,
	contributing_rule_ids JSONB NOT NULL DEFAULT '[]',
	elevated              BOOLEAN NOT NULL DEFAULT FALSE,
	elevation_reason      TEXT NOT NULL DEFAULT '',
	decided_at            TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_chemical_field ON extraction_records(chemical_id, field_name);
CREATE INDEX IF NOT EXISTS idx_rules_pair ON rules(pair_key);
CREATE INDEX IF NOT EXISTS idx_rules_origin ON rules(origin);
CREATE INDEX IF NOT EXISTS idx_decisions_pair ON matrix_decisions(pair_key, decided_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var extractionRecordColumns = []string{
	"id", "chemical_id", "field_name", "raw_value", "source", "confidence",
	"scored_tier", "context_snippet", "pattern_strength", "cross_validated", "extracted_at",
}

func (s *PostgresStore) AppendRecords(ctx context.Context, records []model.ExtractionRecord) error {
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = []any{
			r.ID, r.ChemicalID, r.FieldName, r.RawValue, string(r.Source), r.Confidence,
			string(r.ScoredTier), r.ContextSnippet, r.PatternStrength, r.CrossValidated, r.ExtractedAt.UTC(),
		}
	}
	_, err := db.CopyFrom(ctx, s.pool, "extraction_records", extractionRecordColumns, rows)
	return err
}

func (s *PostgresStore) RecordsFor(ctx context.Context, chemicalID string) ([]model.ExtractionRecord, error) {
	rows, err := s.pool.Query(ctx, preparedStatements["records_for"], chemicalID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: records for chemical")
	}
	defer rows.Close()

	var out []model.ExtractionRecord
	for rows.Next() {
		var r model.ExtractionRecord
		var src, tier string
		if err := rows.Scan(&r.ID, &r.ChemicalID, &r.FieldName, &r.RawValue, &src, &r.Confidence,
			&tier, &r.ContextSnippet, &r.PatternStrength, &r.CrossValidated, &r.ExtractedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		r.Source = model.Source(src)
		r.ScoredTier = model.QualityTier(tier)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: records iterate")
}

var reconciledFieldColumns = []string{
	"chemical_id", "field_name", "value", "confidence", "quality_tier",
	"contributing_ids", "validated", "not_found", "tier_disagreement", "reconciled_at",
}

func (s *PostgresStore) UpsertReconciledFields(ctx context.Context, fields []model.ReconciledField) error {
	rows := make([][]any, len(fields))
	for i, f := range fields {
		ids, err := json.Marshal(f.ContributingIDs)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal contributing ids")
		}
		rows[i] = []any{
			f.ChemicalID, f.FieldName, f.Value, f.Confidence, string(f.Tier),
			ids, f.Validated, f.NotFound, f.TierDisagreement, f.ReconciledAt.UTC(),
		}
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "reconciled_fields",
		Columns:      reconciledFieldColumns,
		ConflictKeys: []string{"chemical_id", "field_name"},
	}, rows)
	return err
}

func (s *PostgresStore) FieldsFor(ctx context.Context, chemicalID string) ([]model.ReconciledField, error) {
	return s.queryFields(ctx, preparedStatements["fields_for"], chemicalID)
}

func (s *PostgresStore) AllReconciledFields(ctx context.Context) ([]model.ReconciledField, error) {
	return s.queryFields(ctx,
		`SELECT chemical_id, field_name, value, confidence, quality_tier, contributing_ids, validated, not_found, tier_disagreement, reconciled_at
		 FROM reconciled_fields ORDER BY chemical_id, field_name`)
}

func (s *PostgresStore) queryFields(ctx context.Context, query string, args ...any) ([]model.ReconciledField, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query reconciled fields")
	}
	defer rows.Close()

	var out []model.ReconciledField
	for rows.Next() {
		var f model.ReconciledField
		var tier string
		var ids []byte
		if err := rows.Scan(&f.ChemicalID, &f.FieldName, &f.Value, &f.Confidence, &tier, &ids,
			&f.Validated, &f.NotFound, &f.TierDisagreement, &f.ReconciledAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan reconciled field")
		}
		f.Tier = model.QualityTier(tier)
		if err := json.Unmarshal(ids, &f.ContributingIDs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal contributing ids")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: reconciled fields iterate")
}

var ruleColumns = []string{
	"id", "pair_key", "chemical_low", "chemical_high", "rule_type", "origin", "justification", "priority",
}

func (s *PostgresStore) ReplaceRules(ctx context.Context, origin model.RuleOrigin, rules []model.IncompatibilityRule) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace rules")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM rules WHERE origin = $1`, string(origin)); err != nil {
		return eris.Wrapf(err, "postgres: delete rules for origin %s", origin)
	}

	rows := make([][]any, len(rules))
	for i, r := range rules {
		if r.Origin != origin {
			return eris.Errorf("postgres: rule %s has origin %s, replacing %s", r.ID, r.Origin, origin)
		}
		rows[i] = []any{
			r.ID, r.Pair.String(), r.Pair.Low, r.Pair.High, string(r.Type), string(r.Origin), r.Justification, r.Priority,
		}
	}
	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"rules"}, ruleColumns, pgx.CopyFromRows(rows)); err != nil {
			return eris.Wrapf(err, "postgres: copy rules for origin %s", origin)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace rules")
}

func (s *PostgresStore) LoadRules(ctx context.Context) ([]model.IncompatibilityRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, chemical_low, chemical_high, rule_type, origin, justification, priority
		 FROM rules ORDER BY pair_key, origin, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load rules")
	}
	defer rows.Close()

	var out []model.IncompatibilityRule
	for rows.Next() {
		var r model.IncompatibilityRule
		var low, high, rt, origin string
		if err := rows.Scan(&r.ID, &low, &high, &rt, &origin, &r.Justification, &r.Priority); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rule")
		}
		r.Pair = model.NewPairKey(low, high)
		r.Type = model.RuleType(rt)
		r.Origin = model.RuleOrigin(origin)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: rules iterate")
}

var decisionColumns = []string{
	"id", "pair_key", "chemical_a", "chemical_b", "decision", "confidence",
	"justification", "contributing_rule_ids", "elevated", "elevation_reason", "decided_at",
}

func (s *PostgresStore) AppendDecisions(ctx context.Context, decisions []model.MatrixDecision) error {
	rows := make([][]any, len(decisions))
	for i, d := range decisions {
		ids, err := json.Marshal(d.ContributingRuleIDs)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal rule ids")
		}
		rows[i] = []any{
			d.ID, d.Pair.String(), d.ChemicalA, d.ChemicalB, string(d.Decision), d.Confidence,
			d.Justification, ids, d.Elevated, d.ElevationReason, d.DecidedAt.UTC(),
		}
	}
	_, err := db.CopyFrom(ctx, s.pool, "matrix_decisions", decisionColumns, rows)
	return err
}

func (s *PostgresStore) DecisionsFor(ctx context.Context, chemicalA, chemicalB string) ([]model.MatrixDecision, error) {
	pair := model.NewPairKey(chemicalA, chemicalB)
	return s.queryDecisions(ctx, preparedStatements["decisions_for_pair"], pair.String())
}

func (s *PostgresStore) LatestDecisions(ctx context.Context) ([]model.MatrixDecision, error) {
	return s.queryDecisions(ctx,
		`SELECT DISTINCT ON (pair_key)
		   id, chemical_a, chemical_b, decision, confidence, justification, contributing_rule_ids, elevated, elevation_reason, decided_at
		 FROM matrix_decisions ORDER BY pair_key, decided_at DESC, id DESC`)
}

func (s *PostgresStore) queryDecisions(ctx context.Context, query string, args ...any) ([]model.MatrixDecision, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query decisions")
	}
	defer rows.Close()

	var out []model.MatrixDecision
	for rows.Next() {
		var d model.MatrixDecision
		var decision string
		var ids []byte
		if err := rows.Scan(&d.ID, &d.ChemicalA, &d.ChemicalB, &decision, &d.Confidence,
			&d.Justification, &ids, &d.Elevated, &d.ElevationReason, &d.DecidedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan decision")
		}
		d.Decision = model.Decision(decision)
		d.Pair = model.NewPairKey(d.ChemicalA, d.ChemicalB)
		if err := json.Unmarshal(ids, &d.ContributingRuleIDs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal rule ids")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: decisions iterate")
}
