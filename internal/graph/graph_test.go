package graph

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/chemsafe-cli/internal/model"
)

func rule(a, b string, t model.RuleType) model.IncompatibilityRule {
	pair := model.NewPairKey(a, b)
	return model.IncompatibilityRule{
		ID:     string(t) + ":" + pair.String(),
		Pair:   pair,
		Type:   t,
		Origin: model.OriginDatasetB,
	}
}

func TestTransitive_DepthBound(t *testing.T) {
	// Chain a-b-c-d: depth 2 reaches c but never d.
	g := New([]model.IncompatibilityRule{
		rule("a", "b", model.RuleIncompatible),
		rule("b", "c", model.RuleIncompatible),
		rule("c", "d", model.RuleIncompatible),
	}, nil)

	paths := g.TransitiveIncompatibilities("a", 2, AnyRule)
	targets := make(map[string]int)
	for _, p := range paths {
		targets[p.Target()] = p.Depth()
	}
	assert.Equal(t, map[string]int{"b": 1, "c": 2}, targets)
}

func TestTransitive_FilterPrunesExpansion(t *testing.T) {
	// The only route from a to c runs through a Conditional edge, so a
	// hard-rule traversal must not find c and must not expand through b.
	g := New([]model.IncompatibilityRule{
		rule("a", "b", model.RuleConditional),
		rule("b", "c", model.RuleIncompatible),
	}, nil)

	assert.Empty(t, g.TransitiveIncompatibilities("a", 2, HardRules))

	paths := g.TransitiveIncompatibilities("a", 2, AnyRule)
	require.Len(t, paths, 2)
	assert.Equal(t, []string{"a", "b", "c"}, paths[1].Nodes)
}

func TestTransitive_NoMatchingEdges(t *testing.T) {
	g := New([]model.IncompatibilityRule{rule("x", "y", model.RuleConditional)}, nil)
	assert.Nil(t, g.TransitiveIncompatibilities("x", 3, IncompatibleOnly))
	assert.Nil(t, g.TransitiveIncompatibilities("absent", 3, AnyRule))
}

func TestTransitive_NeverReturnsToStart(t *testing.T) {
	// Triangle a-b-c: no path may cycle back to a.
	g := New([]model.IncompatibilityRule{
		rule("a", "b", model.RuleIncompatible),
		rule("b", "c", model.RuleIncompatible),
		rule("c", "a", model.RuleIncompatible),
	}, nil)

	for _, p := range g.TransitiveIncompatibilities("a", 4, AnyRule) {
		assert.NotEqual(t, "a", p.Target())
		seen := make(map[string]bool)
		for _, n := range p.Nodes {
			assert.False(t, seen[n], "path revisits %s", n)
			seen[n] = true
		}
	}
}

func TestTransitive_Deterministic(t *testing.T) {
	rules := []model.IncompatibilityRule{
		rule("a", "c", model.RuleIncompatible),
		rule("a", "b", model.RuleIncompatible),
		rule("b", "c", model.RuleReactive),
	}
	first := New(rules, nil).TransitiveIncompatibilities("a", 2, AnyRule)
	second := New([]model.IncompatibilityRule{rules[2], rules[0], rules[1]}, nil).
		TransitiveIncompatibilities("a", 2, AnyRule)
	assert.Equal(t, first, second)
}

func TestTransitive_DenseGraphBounded(t *testing.T) {
	// Complete graph on 20 nodes. All-simple-paths enumeration is
	// intractable here; the bounded traversal must finish promptly and
	// return exactly 19 depth-1 plus 19*18 depth-2 paths.
	var rules []model.IncompatibilityRule
	for i := 0; i < 20; i++ {
		for j := i + 1; j < 20; j++ {
			rules = append(rules, rule(fmt.Sprintf("chem-%02d", i), fmt.Sprintf("chem-%02d", j), model.RuleIncompatible))
		}
	}
	g := New(rules, nil)

	start := time.Now()
	paths := g.TransitiveIncompatibilities("chem-00", 2, IncompatibleOnly)
	elapsed := time.Since(start)

	assert.Len(t, paths, 19+19*18)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestPathsBetween(t *testing.T) {
	g := New([]model.IncompatibilityRule{
		rule("a", "b", model.RuleIncompatible),
		rule("b", "c", model.RuleIncompatible),
		rule("a", "c", model.RuleIncompatible),
	}, nil)

	paths := g.PathsBetween("a", "c", 2, IncompatibleOnly)
	require.Len(t, paths, 2)
	assert.Equal(t, 1, paths[0].Depth(), "direct edge first")
	assert.Equal(t, []string{"a", "b", "c"}, paths[1].Nodes)

	assert.Nil(t, g.PathsBetween("a", "a", 2, AnyRule))
}

func TestProfileAttachment(t *testing.T) {
	idlh := 10.0
	g := New(nil, []model.HazardProfile{{ChemicalID: "chlorine", IDLHppm: &idlh}})

	p, ok := g.Profile("chlorine")
	require.True(t, ok)
	assert.Equal(t, 10.0, *p.IDLHppm)
	assert.True(t, g.HasNode("chlorine"))

	_, ok = g.Profile("absent")
	assert.False(t, ok)
}
