// Package rules loads pairwise incompatibility rules from independent
// sources and derives inferred rules from hazard profiles. All sources'
// opinions on a pair are retained; precedence is resolved later, by the
// matrix builder, so a priority change never requires re-parsing source
// data.
package rules

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/chemsafe-cli/internal/config"
	"github.com/sells-group/chemsafe-cli/internal/fetcher"
	"github.com/sells-group/chemsafe-cli/internal/model"
)

// SourceKind tags the format/origin of one rule source. Each kind has
// its own normalizer; nothing downstream branches on raw strings.
type SourceKind string

const (
	KindManualYAML   SourceKind = "manual_yaml"
	KindDatasetAJSON SourceKind = "dataset_a_json"
	KindDatasetBCSV  SourceKind = "dataset_b_csv"
	KindDatasetBXLSX SourceKind = "dataset_b_xlsx"
)

// Source is one declared rule source: where it lives, how to parse it,
// and where it sits in the precedence order.
type Source struct {
	Kind     SourceKind
	Location string
	Priority int
}

// SourcesFromConfig converts validated config entries. Config
// validation has already rejected unknown kinds and duplicate
// priorities; this conversion is mechanical.
func SourcesFromConfig(cfgs []config.RuleSourceConfig) []Source {
	out := make([]Source, len(cfgs))
	for i, c := range cfgs {
		out[i] = Source{Kind: SourceKind(c.Kind), Location: c.Location, Priority: c.Priority}
	}
	return out
}

// origin maps a source kind to the rule origin recorded on its rules.
func (s Source) origin() model.RuleOrigin {
	switch s.Kind {
	case KindManualYAML:
		return model.OriginManual
	case KindDatasetAJSON:
		return model.OriginDatasetA
	default:
		return model.OriginDatasetB
	}
}

// load fetches and normalizes one source. Parse failures are
// configuration-level errors: the caller fails fast rather than running
// with a silently incomplete rule set.
func (s Source) load(ctx context.Context, opts fetcher.Options) ([]model.IncompatibilityRule, error) {
	rc, err := fetcher.Open(ctx, s.Location, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: open source %s", s.Location)
	}
	defer rc.Close()

	switch s.Kind {
	case KindManualYAML:
		return s.normalizeYAML(rc)
	case KindDatasetAJSON:
		return s.normalizeJSON(rc)
	case KindDatasetBCSV:
		rows, err := fetcher.ReadCSV(rc, true)
		if err != nil {
			return nil, err
		}
		return s.normalizeRows(rows)
	case KindDatasetBXLSX:
		rows, err := fetcher.ReadXLSX(rc, "", true)
		if err != nil {
			return nil, err
		}
		return s.normalizeRows(rows)
	default:
		return nil, eris.Errorf("rules: unknown source kind %q", s.Kind)
	}
}

// manualEntry is the YAML shape of one hand-written override.
type manualEntry struct {
	ChemicalA     string `yaml:"chemical_a"`
	ChemicalB     string `yaml:"chemical_b"`
	Type          string `yaml:"type"`
	Justification string `yaml:"justification"`
}

func (s Source) normalizeYAML(rc io.Reader) ([]model.IncompatibilityRule, error) {
	var entries []manualEntry
	if err := yaml.NewDecoder(rc).Decode(&entries); err != nil {
		return nil, eris.Wrapf(err, "rules: parse yaml source %s", s.Location)
	}

	rules := make([]model.IncompatibilityRule, 0, len(entries))
	for i, e := range entries {
		rt, err := parseRuleType(e.Type)
		if err != nil {
			return nil, eris.Wrapf(err, "rules: %s entry %d", s.Location, i)
		}
		just := e.Justification
		if just == "" {
			just = "manual override"
		}
		rules = append(rules, s.newRule(i, e.ChemicalA, e.ChemicalB, rt, just))
	}
	return rules, nil
}

// datasetAEntry is the JSON shape of one dataset-A reactivity record.
type datasetAEntry struct {
	ChemA          string `json:"chem_a"`
	ChemB          string `json:"chem_b"`
	Classification string `json:"classification"`
	Notes          string `json:"notes"`
}

func (s Source) normalizeJSON(rc io.Reader) ([]model.IncompatibilityRule, error) {
	var entries []datasetAEntry
	if err := fetcher.DecodeJSON(rc, &entries); err != nil {
		return nil, eris.Wrapf(err, "rules: parse json source %s", s.Location)
	}

	rules := make([]model.IncompatibilityRule, 0, len(entries))
	for i, e := range entries {
		rt, err := parseRuleType(e.Classification)
		if err != nil {
			return nil, eris.Wrapf(err, "rules: %s entry %d", s.Location, i)
		}
		just := e.Notes
		if just == "" {
			just = fmt.Sprintf("dataset_a classifies pair as %s", rt)
		}
		rules = append(rules, s.newRule(i, e.ChemA, e.ChemB, rt, just))
	}
	return rules, nil
}

// normalizeRows handles dataset B's tabular shape:
// chem_a, chem_b, type[, justification].
func (s Source) normalizeRows(rows [][]string) ([]model.IncompatibilityRule, error) {
	rules := make([]model.IncompatibilityRule, 0, len(rows))
	for i, row := range rows {
		if len(row) < 3 {
			return nil, eris.Errorf("rules: %s row %d has %d columns, need at least 3", s.Location, i, len(row))
		}
		rt, err := parseRuleType(row[2])
		if err != nil {
			return nil, eris.Wrapf(err, "rules: %s row %d", s.Location, i)
		}
		just := ""
		if len(row) > 3 {
			just = row[3]
		}
		if just == "" {
			just = fmt.Sprintf("dataset_b classifies pair as %s", rt)
		}
		rules = append(rules, s.newRule(i, row[0], row[1], rt, just))
	}
	return rules, nil
}

func (s Source) newRule(idx int, a, b string, rt model.RuleType, justification string) model.IncompatibilityRule {
	pair := model.NewPairKey(strings.TrimSpace(a), strings.TrimSpace(b))
	return model.IncompatibilityRule{
		ID:            fmt.Sprintf("%s:%d:%s", s.origin(), idx, pair.String()),
		Pair:          pair,
		Type:          rt,
		Origin:        s.origin(),
		Justification: justification,
		Priority:      s.Priority,
	}
}

// parseRuleType maps the source vocabularies onto the three rule types.
// Dataset A says "caution" where dataset B says "conditional".
func parseRuleType(raw string) (model.RuleType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "incompatible", "incompatibility", "severe":
		return model.RuleIncompatible, nil
	case "reactive", "reactivity":
		return model.RuleReactive, nil
	case "conditional", "caution":
		return model.RuleConditional, nil
	default:
		return "", eris.Errorf("unknown rule type %q", raw)
	}
}
