package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/chemsafe-cli/internal/model"
	"github.com/sells-group/chemsafe-cli/internal/reconcile"
	"github.com/sells-group/chemsafe-cli/internal/scorer"
	"github.com/sells-group/chemsafe-cli/internal/validate"
)

var (
	reconcileInput        string
	reconcileSkipValidate bool
)

// observation is one line of the extraction feed: an extraction record
// plus the optional label the value was found near, used for scoring.
type observation struct {
	model.ExtractionRecord
	FieldLabel string `json:"field_label,omitempty"`
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Ingest an extraction feed, score it, and reconcile per field",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		records, labels, err := readObservations(reconcileInput)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return eris.Errorf("no observations in %s", reconcileInput)
		}

		if cfg.Validate.BaseURL != "" && !reconcileSkipValidate {
			bv := validate.NewBatchValidator(validate.NewHTTPClient(cfg.Validate), cfg.Validate)
			records = bv.ValidateAll(ctx, records)
		}

		disagreed := scoreRecords(scorer.New(cfg.Scorer), records, labels)

		if err := st.AppendRecords(ctx, records); err != nil {
			return err
		}

		eng := reconcile.New(cfg.Reconcile)
		var fields []model.ReconciledField
		for _, g := range groupObservations(records) {
			f := eng.Reconcile(g.chemicalID, g.fieldName, g.records)
			f.TierDisagreement = f.TierDisagreement || disagreed[g.chemicalID+"|"+g.fieldName]
			fields = append(fields, f)
		}

		if err := st.UpsertReconciledFields(ctx, fields); err != nil {
			return err
		}

		byTier := make(map[model.QualityTier]int)
		validated := 0
		for _, f := range fields {
			byTier[f.Tier]++
			if f.Validated {
				validated++
			}
		}
		zap.L().Info("reconciliation complete",
			zap.Int("observations", len(records)),
			zap.Int("fields", len(fields)),
			zap.Int("validated", validated),
		)
		fmt.Printf("reconciled %d fields from %d observations\n", len(fields), len(records))
		for _, tier := range []model.QualityTier{
			model.TierExcellent, model.TierGood, model.TierAcceptable, model.TierPoor, model.TierUnreliable,
		} {
			if n := byTier[tier]; n > 0 {
				fmt.Printf("  %-11s %d\n", tier, n)
			}
		}
		return nil
	},
}

// scoreRecords rescores observations in place, keeping the scorer's
// tier on each record so a classifier tier that deviates from the
// confidence bands stays visible in the stored log. It returns the
// chemical|field keys whose regressor and classifier disagreed.
func scoreRecords(sc *scorer.ConfidenceScorer, records []model.ExtractionRecord, labels map[string]string) map[string]bool {
	disagreed := make(map[string]bool)
	for i := range records {
		res := sc.Score(records[i], scorer.ScoringContext{FieldLabel: labels[records[i].ID]})
		records[i].Confidence = res.Confidence
		records[i].ScoredTier = res.Tier
		if res.TierDisagreement {
			disagreed[records[i].ChemicalID+"|"+records[i].FieldName] = true
		}
	}
	return disagreed
}

func readObservations(path string) ([]model.ExtractionRecord, map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "open observations %s", path)
	}
	defer f.Close()

	var records []model.ExtractionRecord
	labels := make(map[string]string)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var obs observation
		if err := json.Unmarshal(raw, &obs); err != nil {
			return nil, nil, eris.Wrapf(err, "parse observation line %d", line)
		}
		if obs.ChemicalID == "" || obs.FieldName == "" {
			return nil, nil, eris.Errorf("observation line %d: chemical_id and field_name are required", line)
		}
		if obs.ID == "" {
			obs.ID = uuid.NewString()
		}
		if obs.ExtractedAt.IsZero() {
			obs.ExtractedAt = time.Now().UTC()
		}
		if obs.FieldLabel != "" {
			labels[obs.ID] = obs.FieldLabel
		}
		records = append(records, obs.ExtractionRecord)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, eris.Wrapf(err, "read observations %s", path)
	}
	return records, labels, nil
}

type obsGroup struct {
	chemicalID string
	fieldName  string
	records    []model.ExtractionRecord
}

func groupObservations(records []model.ExtractionRecord) []obsGroup {
	byKey := make(map[string]*obsGroup)
	for _, r := range records {
		key := r.ChemicalID + "|" + r.FieldName
		g, ok := byKey[key]
		if !ok {
			g = &obsGroup{chemicalID: r.ChemicalID, fieldName: r.FieldName}
			byKey[key] = g
		}
		g.records = append(g.records, r)
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]obsGroup, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byKey[k])
	}
	return out
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileInput, "input", "", "path to JSONL observation feed (required)")
	reconcileCmd.Flags().BoolVar(&reconcileSkipValidate, "skip-validate", false, "skip external cross-validation")
	reconcileCmd.MarkFlagRequired("input") //nolint:errcheck
	rootCmd.AddCommand(reconcileCmd)
}
