package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/chemsafe-cli/internal/config"
	"github.com/sells-group/chemsafe-cli/internal/model"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_AllSourceKinds(t *testing.T) {
	dir := t.TempDir()

	manual := writeFile(t, dir, "overrides.yaml", `
- chemical_a: sulfuric-acid
  chemical_b: acetone
  type: Conditional
  justification: approved with secondary containment
`)
	datasetA := writeFile(t, dir, "reactivity.json",
		`[{"chem_a":"sulfuric-acid","chem_b":"acetone","classification":"incompatible","notes":"violent reaction"}]`)
	datasetB := writeFile(t, dir, "pairs.csv",
		"chem_a,chem_b,type\nacetone,hydrogen-peroxide,reactive\n")

	cfg := config.RulesConfig{
		Sources: []config.RuleSourceConfig{
			{Kind: "manual_yaml", Location: manual, Priority: 3},
			{Kind: "dataset_a_json", Location: datasetA, Priority: 2},
			{Kind: "dataset_b_csv", Location: datasetB, Priority: 1},
		},
		FetchTimeoutSecs: 5,
	}

	repo, err := Load(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.Len(t, repo.AllRules(), 3)

	// Both opinions on the disputed pair are retained; priority orders them.
	pair := model.NewPairKey("sulfuric-acid", "acetone")
	opinions := repo.RulesForPair(pair)
	require.Len(t, opinions, 2)
	assert.Equal(t, model.OriginManual, opinions[0].Origin, "manual override sorts first")
	assert.Equal(t, model.RuleConditional, opinions[0].Type)
	assert.Equal(t, model.OriginDatasetA, opinions[1].Origin)

	assert.Len(t, repo.RulesFor("acetone"), 3)
	assert.Len(t, repo.RulesFor("hydrogen-peroxide"), 1)
}

func TestLoad_MalformedSourceIsFatal(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.csv", "chem_a,chem_b,type\nacetone,peroxide,not-a-type\n")

	_, err := Load(context.Background(), config.RulesConfig{
		Sources: []config.RuleSourceConfig{{Kind: "dataset_b_csv", Location: bad, Priority: 1}},
	}, nil)
	assert.Error(t, err)
}

func TestLoad_MissingFileIsFatal(t *testing.T) {
	_, err := Load(context.Background(), config.RulesConfig{
		Sources: []config.RuleSourceConfig{{Kind: "manual_yaml", Location: "/nonexistent.yaml", Priority: 1}},
	}, nil)
	assert.Error(t, err)
}

func TestPairKeyCanonicalization(t *testing.T) {
	dir := t.TempDir()
	// The same pair in both orders collides to one slot per source.
	csv := writeFile(t, dir, "pairs.csv",
		"chem_a,chem_b,type\nzinc,acid,incompatible\nacid,zinc,incompatible\n")

	repo, err := Load(context.Background(), config.RulesConfig{
		Sources: []config.RuleSourceConfig{{Kind: "dataset_b_csv", Location: csv, Priority: 1}},
	}, nil)
	require.NoError(t, err)

	opinions := repo.RulesForPair(model.NewPairKey("acid", "zinc"))
	require.Len(t, opinions, 2)
	assert.Equal(t, opinions[0].Pair, opinions[1].Pair)
}

func TestInferFromHazards(t *testing.T) {
	profiles := []model.HazardProfile{
		{ChemicalID: "hydrogen-peroxide", IsOxidizer: true},
		{ChemicalID: "acetone", IsFlammable: true},
		{ChemicalID: "sodium", IsWaterReactive: true},
	}

	inferred := InferFromHazards(profiles, 0)

	var oxidizerFlammable, waterReactive int
	for _, r := range inferred {
		assert.Equal(t, model.OriginInferred, r.Origin)
		assert.Equal(t, 0, r.Priority)
		switch r.Type {
		case model.RuleIncompatible:
			oxidizerFlammable++
			assert.Equal(t, model.NewPairKey("hydrogen-peroxide", "acetone"), r.Pair)
		case model.RuleConditional:
			waterReactive++
		}
	}
	assert.Equal(t, 1, oxidizerFlammable)
	assert.Equal(t, 2, waterReactive, "sodium pairs conditionally with both others")
}

func TestInferFromHazards_AcidBase(t *testing.T) {
	inferred := InferFromHazards([]model.HazardProfile{
		{ChemicalID: "sulfuric-acid", IsAcid: true},
		{ChemicalID: "sodium-hydroxide", IsBase: true},
	}, 0)

	require.Len(t, inferred, 1)
	assert.Equal(t, model.RuleIncompatible, inferred[0].Type)
}

func TestInferFromHazards_Deterministic(t *testing.T) {
	profiles := []model.HazardProfile{
		{ChemicalID: "b", IsFlammable: true},
		{ChemicalID: "a", IsOxidizer: true},
	}
	first := InferFromHazards(profiles, 0)
	second := InferFromHazards([]model.HazardProfile{profiles[1], profiles[0]}, 0)
	assert.Equal(t, first, second)
}
