package rules

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/chemsafe-cli/internal/config"
	"github.com/sells-group/chemsafe-cli/internal/fetcher"
	"github.com/sells-group/chemsafe-cli/internal/model"
)

// Repository holds every source's rules, indexed by pair and chemical.
// It is a read-only snapshot once built: a fresh Repository is loaded
// for each matrix run rather than mutated in place.
type Repository struct {
	all        []model.IncompatibilityRule
	byPair     map[model.PairKey][]model.IncompatibilityRule
	byChemical map[string][]model.IncompatibilityRule
}

// Load fetches and normalizes all configured sources, then derives
// inferred rules from the given hazard profiles. Any source failure is
// fatal: a silently partial rule set is worse than no run.
func Load(ctx context.Context, cfg config.RulesConfig, profiles []model.HazardProfile) (*Repository, error) {
	opts := fetcher.Options{Timeout: time.Duration(cfg.FetchTimeoutSecs) * time.Second}

	repo := &Repository{
		byPair:     make(map[model.PairKey][]model.IncompatibilityRule),
		byChemical: make(map[string][]model.IncompatibilityRule),
	}

	for _, src := range SourcesFromConfig(cfg.Sources) {
		loaded, err := src.load(ctx, opts)
		if err != nil {
			return nil, err
		}
		repo.add(loaded)
		zap.L().Info("rules: source loaded",
			zap.String("kind", string(src.Kind)),
			zap.String("location", src.Location),
			zap.Int("rules", len(loaded)),
		)
	}

	inferred := InferFromHazards(profiles, cfg.InferredPriority)
	repo.add(inferred)
	if len(inferred) > 0 {
		zap.L().Info("rules: hazard inference complete", zap.Int("rules", len(inferred)))
	}

	return repo, nil
}

// NewRepository builds a repository from pre-normalized rules, used by
// tests and by callers that source rules from the store.
func NewRepository(rules []model.IncompatibilityRule) *Repository {
	repo := &Repository{
		byPair:     make(map[model.PairKey][]model.IncompatibilityRule),
		byChemical: make(map[string][]model.IncompatibilityRule),
	}
	repo.add(rules)
	return repo
}

func (r *Repository) add(rules []model.IncompatibilityRule) {
	for _, rule := range rules {
		r.all = append(r.all, rule)
		r.byPair[rule.Pair] = append(r.byPair[rule.Pair], rule)
		r.byChemical[rule.Pair.Low] = append(r.byChemical[rule.Pair.Low], rule)
		if rule.Pair.High != rule.Pair.Low {
			r.byChemical[rule.Pair.High] = append(r.byChemical[rule.Pair.High], rule)
		}
	}
}

// AllRules returns every rule from every source, inferred included.
func (r *Repository) AllRules() []model.IncompatibilityRule {
	out := make([]model.IncompatibilityRule, len(r.all))
	copy(out, r.all)
	return out
}

// RulesFor returns all rules mentioning the chemical.
func (r *Repository) RulesFor(chemicalID string) []model.IncompatibilityRule {
	rules := r.byChemical[chemicalID]
	out := make([]model.IncompatibilityRule, len(rules))
	copy(out, rules)
	return out
}

// RulesForPair returns every source's opinion on the pair, ordered by
// descending priority then by restrictiveness, so the head of the slice
// is the decision-controlling rule.
func (r *Repository) RulesForPair(pair model.PairKey) []model.IncompatibilityRule {
	rules := r.byPair[pair]
	out := make([]model.IncompatibilityRule, len(rules))
	copy(out, rules)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Type.MoreRestrictiveThan(out[j].Type)
	})
	return out
}
