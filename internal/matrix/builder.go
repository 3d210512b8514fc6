// Package matrix resolves per-pair compatibility decisions from rule
// sources, graph traversal, and hazard elevation. Every decision
// carries a justification; absence of data is Unknown, never a silent
// Compatible.
package matrix

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/chemsafe-cli/internal/config"
	"github.com/sells-group/chemsafe-cli/internal/graph"
	"github.com/sells-group/chemsafe-cli/internal/model"
	"github.com/sells-group/chemsafe-cli/internal/rules"
)

// Decision confidence by how the decision was reached. Transitive
// confidence comes from config since it is the weakest signal.
const (
	confidenceManual   = 1.0
	confidenceDataset  = 0.9
	confidenceInferred = 0.7
)

// Snapshot is the read-only input to one matrix run. It is built once
// per run; the builder never mutates it, so pair computations share no
// mutable state.
type Snapshot struct {
	Rules    *rules.Repository
	Graph    *graph.Graph
	profiles map[string]model.HazardProfile
}

// NewSnapshot assembles the rule repository, hazard profiles, and the
// relationship graph derived from both.
func NewSnapshot(repo *rules.Repository, profiles []model.HazardProfile) *Snapshot {
	byID := make(map[string]model.HazardProfile, len(profiles))
	for _, p := range profiles {
		byID[p.ChemicalID] = p
	}
	return &Snapshot{
		Rules:    repo,
		Graph:    graph.New(repo.AllRules(), profiles),
		profiles: byID,
	}
}

// Builder produces the pairwise decision matrix from one snapshot.
type Builder struct {
	snap     *Snapshot
	cfg      config.MatrixConfig
	maxDepth int
	now      func() time.Time
}

// NewBuilder wires a builder to a snapshot. maxDepth bounds transitive
// traversal and comes from graph config (default 2).
func NewBuilder(snap *Snapshot, cfg config.MatrixConfig, graphCfg config.GraphConfig) *Builder {
	depth := graphCfg.MaxDepth
	if depth < 1 {
		depth = 2
	}
	return &Builder{snap: snap, cfg: cfg, maxDepth: depth, now: time.Now}
}

// Build returns one decision per unordered pair of the input set, in
// canonical pair order. Cancellation is checked at each pair boundary
// so an aborted run never emits a half-decided row.
func (b *Builder) Build(ctx context.Context, chemicalIDs []string) ([]model.MatrixDecision, error) {
	ids := dedupeSorted(chemicalIDs)

	out := make([]model.MatrixDecision, 0, len(ids)*(len(ids)-1)/2)
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if err := ctx.Err(); err != nil {
				return nil, eris.Wrap(err, "matrix: build cancelled")
			}
			out = append(out, b.decidePair(ids[i], ids[j]))
		}
	}
	return out, nil
}

// decidePair runs the precedence ladder for one pair: direct rules,
// then graph inference, then hazard elevation, else Unknown.
func (b *Builder) decidePair(a, c string) model.MatrixDecision {
	pair := model.NewPairKey(a, c)
	dec := model.MatrixDecision{
		ID:        uuid.NewString(),
		Pair:      pair,
		ChemicalA: pair.Low,
		ChemicalB: pair.High,
		DecidedAt: b.now().UTC(),
	}

	if direct := directOpinions(b.snap.Rules.RulesForPair(pair)); len(direct) > 0 {
		winner := direct[0]
		dec.Decision = decisionFromRuleType(winner.Type)
		dec.Confidence = originConfidence(winner.Origin)
		dec.Justification = fmt.Sprintf("%s (source %s, priority %d)", winner.Justification, winner.Origin, winner.Priority)
		for _, r := range direct {
			dec.ContributingRuleIDs = append(dec.ContributingRuleIDs, r.ID)
		}
		if disagree(direct) {
			zap.L().Warn("matrix: rule sources disagree on pair",
				zap.String("pair", pair.String()),
				zap.String("winning_source", string(winner.Origin)),
				zap.String("winning_type", string(winner.Type)),
			)
		}
	} else if inf, ok := inferredOpinion(b.snap.Rules.RulesForPair(pair)); ok {
		dec.Decision = decisionFromRuleType(inf.Type)
		dec.Confidence = confidenceInferred
		dec.Justification = fmt.Sprintf("%s (source %s)", inf.Justification, inf.Origin)
		dec.ContributingRuleIDs = []string{inf.ID}
	} else if path, ok := b.transitivePath(pair); ok {
		// Transitive findings are always Conditional. A chain of hard
		// rules is a weaker signal than a direct rule.
		dec.Decision = model.DecisionConditional
		dec.Confidence = b.cfg.TransitiveConfidence
		dec.Justification = fmt.Sprintf("transitive incompatibility via %s", intermediates(path))
		for _, r := range path.Rules {
			dec.ContributingRuleIDs = append(dec.ContributingRuleIDs, r.ID)
		}
	} else {
		dec.Decision = model.DecisionUnknown
		dec.Justification = "no direct rule, inference, or transitive relationship found"
	}

	if reason, elevate := b.hazardElevation(pair); elevate {
		before := dec.Decision
		dec.Decision = dec.Decision.Elevate()
		if dec.Decision != before {
			dec.Elevated = true
			dec.ElevationReason = reason
		}
	}

	return dec
}

// transitivePath finds the shortest hard-rule chain between the pair's
// chemicals, at least two hops long. Depth-1 relationships were already
// handled as direct or inferred rules.
func (b *Builder) transitivePath(pair model.PairKey) (graph.Path, bool) {
	for _, p := range b.snap.Graph.PathsBetween(pair.Low, pair.High, b.maxDepth, graph.HardRules) {
		if p.Depth() >= 2 {
			return p, true
		}
	}
	return graph.Path{}, false
}

// hazardElevation reports whether either chemical's IDLH sits below
// the configured danger threshold.
func (b *Builder) hazardElevation(pair model.PairKey) (string, bool) {
	for _, id := range []string{pair.Low, pair.High} {
		p, ok := b.snap.profiles[id]
		if !ok || p.IDLHppm == nil {
			continue
		}
		if *p.IDLHppm < b.cfg.IDLHDangerPPM {
			return fmt.Sprintf("elevated: %s idlh_ppm %.1f below danger threshold %.1f",
				id, *p.IDLHppm, b.cfg.IDLHDangerPPM), true
		}
	}
	return "", false
}

// directOpinions keeps only explicit source rules, preserving the
// repository's priority ordering. Inferred rules are graph territory.
func directOpinions(opinions []model.IncompatibilityRule) []model.IncompatibilityRule {
	out := make([]model.IncompatibilityRule, 0, len(opinions))
	for _, r := range opinions {
		if r.Origin != model.OriginInferred {
			out = append(out, r)
		}
	}
	return out
}

// inferredOpinion returns the most restrictive inferred rule for the
// pair, if any.
func inferredOpinion(opinions []model.IncompatibilityRule) (model.IncompatibilityRule, bool) {
	var best model.IncompatibilityRule
	found := false
	for _, r := range opinions {
		if r.Origin != model.OriginInferred {
			continue
		}
		if !found || r.Type.MoreRestrictiveThan(best.Type) {
			best, found = r, true
		}
	}
	return best, found
}

func disagree(opinions []model.IncompatibilityRule) bool {
	for _, r := range opinions[1:] {
		if r.Type != opinions[0].Type {
			return true
		}
	}
	return false
}

// decisionFromRuleType maps rule severity onto a decision. Reactive
// pairs must not share storage, so they decide Incompatible.
func decisionFromRuleType(t model.RuleType) model.Decision {
	switch t {
	case model.RuleIncompatible, model.RuleReactive:
		return model.DecisionIncompatible
	default:
		return model.DecisionConditional
	}
}

func originConfidence(o model.RuleOrigin) float64 {
	switch o {
	case model.OriginManual:
		return confidenceManual
	case model.OriginInferred:
		return confidenceInferred
	default:
		return confidenceDataset
	}
}

func intermediates(p graph.Path) string {
	mids := p.Nodes[1 : len(p.Nodes)-1]
	out := ""
	for i, m := range mids {
		if i > 0 {
			out += ", "
		}
		out += m
	}
	return out
}

func dedupeSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
