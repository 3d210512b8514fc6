package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/chemsafe-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS extraction_records (
	id               TEXT PRIMARY KEY,
	chemical_id      TEXT NOT NULL,
	field_name       TEXT NOT NULL,
	raw_value        TEXT NOT NULL,
	source           TEXT NOT NULL,
	confidence       REAL NOT NULL,
	scored_tier      TEXT NOT NULL DEFAULT '',
	context_snippet  TEXT NOT NULL DEFAULT '',
	pattern_strength REAL NOT NULL DEFAULT 0,
	cross_validated  INTEGER NOT NULL DEFAULT 0,
	extracted_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS reconciled_fields (
	chemical_id       TEXT NOT NULL,
	field_name        TEXT NOT NULL,
	value             TEXT NOT NULL,
	confidence        REAL NOT NULL,
	quality_tier      TEXT NOT NULL,
	contributing_ids  TEXT NOT NULL DEFAULT '[]',
	validated         INTEGER NOT NULL DEFAULT 0,
	not_found         INTEGER NOT NULL DEFAULT 0,
	tier_disagreement INTEGER NOT NULL DEFAULT 0,
	reconciled_at     DATETIME NOT NULL,
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
	confidence            REAL NOT NULL,
	justification         TEXT NOT NULL,
	contributing_rule_ids TEXT NOT NULL DEFAULT '[]',
	elevated              INTEGER NOT NULL DEFAULT 0,
	elevation_reason      TEXT NOT NULL DEFAULT '',
	decided_at            DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_chemical_field ON extraction_records(chemical_id, field_name);
CREATE INDEX IF NOT EXISTS idx_rules_pair ON rules(pair_key);
CREATE INDEX IF NOT EXISTS idx_rules_origin ON rules(origin);
CREATE INDEX IF NOT EXISTS idx_decisions_pair ON matrix_decisions(pair_key, decided_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) AppendRecords(ctx context.Context, records []model.ExtractionRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append records")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO extraction_records
		 (id, chemical_id, field_name, raw_value, source, confidence, scored_tier, context_snippet, pattern_strength, cross_validated, extracted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare append records")
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.ChemicalID, r.FieldName, r.RawValue, string(r.Source), r.Confidence,
			string(r.ScoredTier), r.ContextSnippet, r.PatternStrength, r.CrossValidated, r.ExtractedAt.UTC(),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert record %s", r.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit append records")
}

func (s *SQLiteStore) RecordsFor(ctx context.Context, chemicalID string) ([]model.ExtractionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chemical_id, field_name, raw_value, source, confidence, scored_tier, context_snippet, pattern_strength, cross_validated, extracted_at
		 FROM extraction_records WHERE chemical_id = ? ORDER BY field_name, extracted_at, id`,
		chemicalID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: records for chemical")
	}
	defer rows.Close()

	var out []model.ExtractionRecord
	for rows.Next() {
		var r model.ExtractionRecord
		var src, tier string
		if err := rows.Scan(&r.ID, &r.ChemicalID, &r.FieldName, &r.RawValue, &src, &r.Confidence,
			&tier, &r.ContextSnippet, &r.PatternStrength, &r.CrossValidated, &r.ExtractedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		r.Source = model.Source(src)
		r.ScoredTier = model.QualityTier(tier)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: records iterate")
}

func (s *SQLiteStore) UpsertReconciledFields(ctx context.Context, fields []model.ReconciledField) error {
	if len(fields) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert fields")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO reconciled_fields
		 (chemical_id, field_name, value, confidence, quality_tier, contributing_ids, validated, not_found, tier_disagreement, reconciled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (chemical_id, field_name) DO UPDATE SET
		   value = excluded.value,
		   confidence = excluded.confidence,
		   quality_tier = excluded.quality_tier,
		   contributing_ids = excluded.contributing_ids,
		   validated = excluded.validated,
		   not_found = excluded.not_found,
		   tier_disagreement = excluded.tier_disagreement,
		   reconciled_at = excluded.reconciled_at`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare upsert fields")
	}
	defer stmt.Close()

	for _, f := range fields {
		ids, err := json.Marshal(f.ContributingIDs)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal contributing ids")
		}
		if _, err := stmt.ExecContext(ctx,
			f.ChemicalID, f.FieldName, f.Value, f.Confidence, string(f.Tier), string(ids),
			f.Validated, f.NotFound, f.TierDisagreement, f.ReconciledAt.UTC(),
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert field %s/%s", f.ChemicalID, f.FieldName)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit upsert fields")
}

func (s *SQLiteStore) FieldsFor(ctx context.Context, chemicalID string) ([]model.ReconciledField, error) {
	return s.queryFields(ctx,
		`SELECT chemical_id, field_name, value, confidence, quality_tier, contributing_ids, validated, not_found, tier_disagreement, reconciled_at
		 FROM reconciled_fields WHERE chemical_id = ? ORDER BY field_name`,
		chemicalID)
}

func (s *SQLiteStore) AllReconciledFields(ctx context.Context) ([]model.ReconciledField, error) {
	return s.queryFields(ctx,
		`SELECT chemical_id, field_name, value, confidence, quality_tier, contributing_ids, validated, not_found, tier_disagreement, reconciled_at
		 FROM reconciled_fields ORDER BY chemical_id, field_name`)
}

func (s *SQLiteStore) queryFields(ctx context.Context, query string, args ...any) ([]model.ReconciledField, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query reconciled fields")
	}
	defer rows.Close()

	var out []model.ReconciledField
	for rows.Next() {
		var f model.ReconciledField
		var tier, ids string
		if err := rows.Scan(&f.ChemicalID, &f.FieldName, &f.Value, &f.Confidence, &tier, &ids,
			&f.Validated, &f.NotFound, &f.TierDisagreement, &f.ReconciledAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan reconciled field")
		}
		f.Tier = model.QualityTier(tier)
		if err := json.Unmarshal([]byte(ids), &f.ContributingIDs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal contributing ids")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: reconciled fields iterate")
}

func (s *SQLiteStore) ReplaceRules(ctx context.Context, origin model.RuleOrigin, rules []model.IncompatibilityRule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace rules")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE origin = ?`, string(origin)); err != nil {
		return eris.Wrapf(err, "sqlite: delete rules for origin %s", origin)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rules (id, pair_key, chemical_low, chemical_high, rule_type, origin, justification, priority)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert rules")
	}
	defer stmt.Close()

	for _, r := range rules {
		if r.Origin != origin {
			return eris.Errorf("sqlite: rule %s has origin %s, replacing %s", r.ID, r.Origin, origin)
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Pair.String(), r.Pair.Low, r.Pair.High, string(r.Type), string(r.Origin), r.Justification, r.Priority,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert rule %s", r.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace rules")
}

func (s *SQLiteStore) LoadRules(ctx context.Context) ([]model.IncompatibilityRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chemical_low, chemical_high, rule_type, origin, justification, priority
		 FROM rules ORDER BY pair_key, origin, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load rules")
	}
	defer rows.Close()

	var out []model.IncompatibilityRule
	for rows.Next() {
		var r model.IncompatibilityRule
		var low, high, rt, origin string
		if err := rows.Scan(&r.ID, &low, &high, &rt, &origin, &r.Justification, &r.Priority); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rule")
		}
		r.Pair = model.NewPairKey(low, high)
		r.Type = model.RuleType(rt)
		r.Origin = model.RuleOrigin(origin)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: rules iterate")
}

func (s *SQLiteStore) AppendDecisions(ctx context.Context, decisions []model.MatrixDecision) error {
	if len(decisions) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append decisions")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO matrix_decisions
		 (id, pair_key, chemical_a, chemical_b, decision, confidence, justification, contributing_rule_ids, elevated, elevation_reason, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare append decisions")
	}
	defer stmt.Close()

	for _, d := range decisions {
		ids, err := json.Marshal(d.ContributingRuleIDs)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal rule ids")
		}
		if _, err := stmt.ExecContext(ctx,
			d.ID, d.Pair.String(), d.ChemicalA, d.ChemicalB, string(d.Decision), d.Confidence,
			d.Justification, string(ids), d.Elevated, d.ElevationReason, d.DecidedAt.UTC(),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert decision %s", d.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit append decisions")
}

func (s *SQLiteStore) DecisionsFor(ctx context.Context, chemicalA, chemicalB string) ([]model.MatrixDecision, error) {
	pair := model.NewPairKey(chemicalA, chemicalB)
	return s.queryDecisions(ctx,
		`SELECT id, chemical_a, chemical_b, decision, confidence, justification, contributing_rule_ids, elevated, elevation_reason, decided_at
		 FROM matrix_decisions WHERE pair_key = ? ORDER BY decided_at, rowid`,
		pair.String())
}

func (s *SQLiteStore) LatestDecisions(ctx context.Context) ([]model.MatrixDecision, error) {
	return s.queryDecisions(ctx,
		`SELECT id, chemical_a, chemical_b, decision, confidence, justification, contributing_rule_ids, elevated, elevation_reason, decided_at
		 FROM matrix_decisions m
		 WHERE m.rowid = (
		   SELECT m2.rowid FROM matrix_decisions m2
		   WHERE m2.pair_key = m.pair_key
		   ORDER BY m2.decided_at DESC, m2.rowid DESC LIMIT 1
		 )
		 ORDER BY m.pair_key`)
}

func (s *SQLiteStore) queryDecisions(ctx context.Context, query string, args ...any) ([]model.MatrixDecision, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query decisions")
	}
	defer rows.Close()

	var out []model.MatrixDecision
	for rows.Next() {
		var d model.MatrixDecision
		var decision, ids string
		if err := rows.Scan(&d.ID, &d.ChemicalA, &d.ChemicalB, &decision, &d.Confidence,
			&d.Justification, &ids, &d.Elevated, &d.ElevationReason, &d.DecidedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan decision")
		}
		d.Decision = model.Decision(decision)
		d.Pair = model.NewPairKey(d.ChemicalA, d.ChemicalB)
		if err := json.Unmarshal([]byte(ids), &d.ContributingRuleIDs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal rule ids")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: decisions iterate")
}
