package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/chemsafe-cli/internal/config"
	"github.com/sells-group/chemsafe-cli/internal/model"
	"github.com/sells-group/chemsafe-cli/internal/scorer"
)

func TestReadObservations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.jsonl")
	feed := `{"chemical_id":"sulfuric-acid","field_name":"cas_number","raw_value":"7664-93-9","source":"heuristic","pattern_strength":0.9,"field_label":"CAS No."}
{"id":"obs-2","chemical_id":"sulfuric-acid","field_name":"cas_number","raw_value":"7664-93-9","source":"llm","extracted_at":"2026-03-01T12:00:00Z"}

{"chemical_id":"acetone","field_name":"is_flammable","raw_value":"true","source":"llm"}
`
	require.NoError(t, os.WriteFile(path, []byte(feed), 0o644))

	records, labels, err := readObservations(path)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Missing ids and timestamps are filled in.
	assert.NotEmpty(t, records[0].ID)
	assert.False(t, records[0].ExtractedAt.IsZero())
	assert.Equal(t, "obs-2", records[1].ID)

	assert.Equal(t, "CAS No.", labels[records[0].ID])
	_, hasLabel := labels["obs-2"]
	assert.False(t, hasLabel)
}

func TestReadObservations_MissingRequiredField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"field_name":"cas_number","raw_value":"x","source":"llm"}`), 0o644))

	_, _, err := readObservations(path)
	assert.Error(t, err)
}

func TestReadObservations_MalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{not json}\n"), 0o644))

	_, _, err := readObservations(path)
	assert.Error(t, err)
}

func TestScoreRecords_KeepsScoredTier(t *testing.T) {
	records := []model.ExtractionRecord{
		{ID: "r1", ChemicalID: "sulfuric-acid", FieldName: "cas_number", RawValue: "7664-93-9",
			Source: model.SourceHeuristic, PatternStrength: 0.95, CrossValidated: true,
			ContextSnippet: "CAS No. 7664-93-9"},
		{ID: "r2", ChemicalID: "acetone", FieldName: "notes", RawValue: "keep away from heat",
			Source: model.SourceLLM},
	}
	labels := map[string]string{"r1": "CAS No."}

	sc := scorer.New(config.ScorerConfig{
		PatternWeight:        0.35,
		SourceWeight:         0.25,
		ProximityWeight:      0.15,
		FieldTypeWeight:      0.10,
		CrossValidationBonus: 0.15,
	})
	scoreRecords(sc, records, labels)

	for _, r := range records {
		assert.NotEmpty(t, r.ScoredTier, "record %s must keep the scorer's tier", r.ID)
		assert.Equal(t, model.TierFromConfidence(r.Confidence), r.ScoredTier,
			"rule-based scoring keeps tier and confidence in band")
	}
	assert.Greater(t, records[0].Confidence, records[1].Confidence)
}

func TestGroupObservations(t *testing.T) {
	records := []model.ExtractionRecord{
		{ID: "1", ChemicalID: "b", FieldName: "cas_number"},
		{ID: "2", ChemicalID: "a", FieldName: "un_number"},
		{ID: "3", ChemicalID: "a", FieldName: "cas_number"},
		{ID: "4", ChemicalID: "a", FieldName: "cas_number"},
	}

	groups := groupObservations(records)
	require.Len(t, groups, 3)
	assert.Equal(t, "a", groups[0].chemicalID)
	assert.Equal(t, "cas_number", groups[0].fieldName)
	assert.Len(t, groups[0].records, 2)
	assert.Equal(t, "un_number", groups[1].fieldName)
	assert.Equal(t, "b", groups[2].chemicalID)
}

func TestHazardProfiles(t *testing.T) {
	idlh := "10"
	fields := []model.ReconciledField{
		{ChemicalID: "chlorine", FieldName: model.FieldIDLH, Value: idlh},
		{ChemicalID: "chlorine", FieldName: model.FieldIsOxidizer, Value: "true"},
		{ChemicalID: "acetone", FieldName: model.FieldIsFlammable, Value: "true"},
	}

	ids, profiles := hazardProfiles(fields)
	require.Equal(t, []string{"acetone", "chlorine"}, ids)
	require.Len(t, profiles, 2)
	assert.True(t, profiles[0].IsFlammable)
	assert.True(t, profiles[1].IsOxidizer)
	require.NotNil(t, profiles[1].IDLHppm)
	assert.Equal(t, 10.0, *profiles[1].IDLHppm)
}
