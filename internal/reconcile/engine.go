// Package reconcile merges multiple extraction observations of the same
// field into one canonical, confidence-scored value.
package reconcile

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/chemsafe-cli/internal/config"
	"github.com/sells-group/chemsafe-cli/internal/model"
)

// Engine resolves conflicting observations by consensus boosting,
// disagreement penalties, and source precedence. Output is
// deterministic for a given observation set regardless of arrival
// order.
type Engine struct {
	cfg config.ReconcileConfig
	now func() time.Time
}

// New creates an Engine. The clock is injectable for tests.
func New(cfg config.ReconcileConfig) *Engine {
	return &Engine{cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// Reconcile produces the canonical field value for one
// (chemical, field) pair. All observations must share ChemicalID and
// FieldName. An empty set is recorded as NOT_FOUND with confidence 0,
// never as an error.
func (e *Engine) Reconcile(chemicalID, fieldName string, obs []model.ExtractionRecord) model.ReconciledField {
	out := model.ReconciledField{
		ChemicalID:   chemicalID,
		FieldName:    fieldName,
		ReconciledAt: e.now(),
	}

	if len(obs) == 0 {
		out.NotFound = true
		out.Tier = model.TierUnreliable
		return out
	}

	// Canonical ordering makes every later step independent of arrival
	// order: extracted_at ascending, then id.
	sorted := make([]model.ExtractionRecord, len(obs))
	copy(sorted, obs)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].ExtractedAt.Equal(sorted[j].ExtractedAt) {
			return sorted[i].ExtractedAt.Before(sorted[j].ExtractedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	for _, o := range sorted {
		out.ContributingIDs = append(out.ContributingIDs, o.ID)
	}

	// User correction is terminal: latest correction wins outright.
	if corr := latestCorrection(sorted); corr != nil {
		out.Value = corr.RawValue
		out.Confidence = 1.0
		out.Tier = model.TierExcellent
		out.Validated = true
		return out
	}

	groups := groupByValue(fieldName, sorted)

	winner, consensus := e.pickWinner(groups)

	out.Value = winner.rep.RawValue
	out.Confidence = winner.confidence
	out.Validated = consensus || winner.rep.CrossValidated

	// Rollback safety net: a low-confidence winner contradicted by a
	// fully deterministic extractor yields to the deterministic value,
	// flagged unvalidated and logged with both candidates.
	if !consensus && out.Confidence < e.cfg.RollbackThreshold {
		if det := deterministicDissenter(groups, winner); det != nil {
			zap.L().Warn("reconcile: rolling back to deterministic fallback",
				zap.String("chemical_id", chemicalID),
				zap.String("field", fieldName),
				zap.String("rejected_value", winner.rep.RawValue),
				zap.Float64("rejected_confidence", out.Confidence),
				zap.String("fallback_value", det.RawValue),
				zap.Float64("fallback_confidence", det.Confidence),
			)
			out.Value = det.RawValue
			out.Confidence = det.Confidence
			out.Validated = false
		}
	}

	out.Tier = model.TierFromConfidence(out.Confidence)
	return out
}

// candidate is one normalized-value group with its elected
// representative and post-adjustment confidence.
type candidate struct {
	key        string
	rep        model.ExtractionRecord
	sources    map[model.Source]bool
	confidence float64
}

// pickWinner applies the consensus boost or the disagreement penalty
// and elects one candidate.
func (e *Engine) pickWinner(groups []candidate) (candidate, bool) {
	// Consensus: any group backed by two or more independent sources.
	var consensusGroups []candidate
	for _, g := range groups {
		if len(g.sources) >= 2 {
			boosted := g.confidence + e.cfg.ConsensusBoost
			if boosted > e.cfg.ConsensusCap {
				boosted = e.cfg.ConsensusCap
			}
			g.confidence = boosted
			consensusGroups = append(consensusGroups, g)
		}
	}
	if len(consensusGroups) > 0 {
		return bestCandidate(consensusGroups), true
	}

	if len(groups) == 1 {
		return groups[0], false
	}

	// Disagreement: every candidate is penalized before election.
	penalized := make([]candidate, len(groups))
	for i, g := range groups {
		g.confidence -= e.cfg.DisagreementPenalty
		if g.confidence < 0 {
			g.confidence = 0
		}
		penalized[i] = g
	}
	return bestCandidate(penalized), false
}

// bestCandidate orders by confidence, then source priority, then
// latest extraction, then group key. The final key comparison keeps
// the result total and deterministic.
func bestCandidate(cands []candidate) candidate {
	best := cands[0]
	for _, c := range cands[1:] {
		switch {
		case c.confidence != best.confidence:
			if c.confidence > best.confidence {
				best = c
			}
		case c.rep.Source.Priority() != best.rep.Source.Priority():
			if c.rep.Source.Priority() > best.rep.Source.Priority() {
				best = c
			}
		case !c.rep.ExtractedAt.Equal(best.rep.ExtractedAt):
			if c.rep.ExtractedAt.After(best.rep.ExtractedAt) {
				best = c
			}
		default:
			if c.key < best.key {
				best = c
			}
		}
	}
	return best
}

// groupByValue buckets observations by normalized value. Each group's
// representative is its most confident observation (ties: source
// priority, then latest extraction, then id).
func groupByValue(fieldName string, sorted []model.ExtractionRecord) []candidate {
	byKey := make(map[string]*candidate)
	var order []string

	for _, o := range sorted {
		key := NormalizeValue(fieldName, o.RawValue)
		g, ok := byKey[key]
		if !ok {
			g = &candidate{key: key, rep: o, confidence: o.Confidence, sources: map[model.Source]bool{o.Source: true}}
			byKey[key] = g
			order = append(order, key)
			continue
		}
		g.sources[o.Source] = true
		if betterRep(o, g.rep) {
			g.rep = o
			g.confidence = o.Confidence
		}
	}

	groups := make([]candidate, 0, len(order))
	for _, key := range order {
		groups = append(groups, *byKey[key])
	}
	return groups
}

func betterRep(a, b model.ExtractionRecord) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.Source.Priority() != b.Source.Priority() {
		return a.Source.Priority() > b.Source.Priority()
	}
	if !a.ExtractedAt.Equal(b.ExtractedAt) {
		return a.ExtractedAt.After(b.ExtractedAt)
	}
	return a.ID < b.ID
}

// latestCorrection returns the newest user correction, or nil.
func latestCorrection(sorted []model.ExtractionRecord) *model.ExtractionRecord {
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].Source == model.SourceUserCorrection {
			return &sorted[i]
		}
	}
	return nil
}

// deterministicDissenter returns the representative of a deterministic
// source group whose value disagrees with the winner, or nil.
func deterministicDissenter(groups []candidate, winner candidate) *model.ExtractionRecord {
	for _, g := range groups {
		if g.key == winner.key {
			continue
		}
		if g.rep.Source.Deterministic() {
			rep := g.rep
			return &rep
		}
	}
	return nil
}

var foldCaser = cases.Fold()

// NormalizeValue canonicalizes a raw value for equality grouping.
// Identifier fields compare case/whitespace-insensitively after NFKC
// normalization; everything else compares exact (trimmed).
func NormalizeValue(fieldName, raw string) string {
	if !model.IsIdentifierField(fieldName) {
		return strings.TrimSpace(raw)
	}
	s := norm.NFKC.String(raw)
	s = foldCaser.String(s)
	return strings.Join(strings.Fields(s), "")
}
