package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/chemsafe-cli/internal/matrix"
	"github.com/sells-group/chemsafe-cli/internal/model"
	"github.com/sells-group/chemsafe-cli/internal/rules"
	"github.com/sells-group/chemsafe-cli/internal/store"
)

var matrixCmd = &cobra.Command{
	Use:   "matrix",
	Short: "Build the pairwise compatibility matrix and append decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		fields, err := st.AllReconciledFields(ctx)
		if err != nil {
			return err
		}
		chemicalIDs, profiles := hazardProfiles(fields)
		if len(chemicalIDs) < 2 {
			return fmt.Errorf("need at least two reconciled chemicals, have %d", len(chemicalIDs))
		}

		repo, err := rules.Load(ctx, cfg.Rules, profiles)
		if err != nil {
			return err
		}
		if err := persistRules(ctx, st, repo); err != nil {
			return err
		}

		snap := matrix.NewSnapshot(repo, profiles)
		builder := matrix.NewBuilder(snap, cfg.Matrix, cfg.Graph)

		decisions, err := builder.Build(ctx, chemicalIDs)
		if err != nil {
			return err
		}
		if err := st.AppendDecisions(ctx, decisions); err != nil {
			return err
		}

		byDecision := make(map[model.Decision]int)
		elevated := 0
		for _, d := range decisions {
			byDecision[d.Decision]++
			if d.Elevated {
				elevated++
			}
		}
		zap.L().Info("matrix build complete",
			zap.Int("chemicals", len(chemicalIDs)),
			zap.Int("pairs", len(decisions)),
			zap.Int("elevated", elevated),
		)
		fmt.Printf("decided %d pairs over %d chemicals\n", len(decisions), len(chemicalIDs))
		for _, d := range []model.Decision{
			model.DecisionIncompatible, model.DecisionConditional, model.DecisionCompatible, model.DecisionUnknown,
		} {
			if n := byDecision[d]; n > 0 {
				fmt.Printf("  %-13s %d\n", d, n)
			}
		}
		return nil
	},
}

// hazardProfiles derives one profile per chemical from the reconciled
// field set, in sorted chemical order.
func hazardProfiles(fields []model.ReconciledField) ([]string, []model.HazardProfile) {
	byChemical := make(map[string][]model.ReconciledField)
	for _, f := range fields {
		byChemical[f.ChemicalID] = append(byChemical[f.ChemicalID], f)
	}

	ids := make([]string, 0, len(byChemical))
	for id := range byChemical {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	profiles := make([]model.HazardProfile, 0, len(ids))
	for _, id := range ids {
		profiles = append(profiles, model.DeriveHazardProfile(id, byChemical[id]))
	}
	return ids, profiles
}

// persistRules replaces the stored rule set per origin so a reload of
// one dataset never clobbers another's rules.
func persistRules(ctx context.Context, st store.Store, repo *rules.Repository) error {
	byOrigin := make(map[model.RuleOrigin][]model.IncompatibilityRule)
	for _, r := range repo.AllRules() {
		byOrigin[r.Origin] = append(byOrigin[r.Origin], r)
	}
	for _, origin := range []model.RuleOrigin{
		model.OriginManual, model.OriginDatasetA, model.OriginDatasetB, model.OriginInferred,
	} {
		if err := st.ReplaceRules(ctx, origin, byOrigin[origin]); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(matrixCmd)
}
