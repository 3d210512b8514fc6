// Package graph builds the in-memory chemical relationship graph used
// for transitive incompatibility queries. The graph is a read-only
// snapshot: it is rebuilt from the current rules and hazard profiles
// for each matrix run, never mutated in place.
package graph

import (
	"sort"

	"github.com/sells-group/chemsafe-cli/internal/model"
)

// RuleTypeFilter selects which edge types a traversal may expand.
type RuleTypeFilter func(model.RuleType) bool

// AnyRule passes every edge.
func AnyRule(model.RuleType) bool { return true }

// HardRules passes only Incompatible and Reactive edges. Conditional
// edges are too weak a signal to chain through.
func HardRules(t model.RuleType) bool {
	return t == model.RuleIncompatible || t == model.RuleReactive
}

// IncompatibleOnly passes only Incompatible edges.
func IncompatibleOnly(t model.RuleType) bool { return t == model.RuleIncompatible }

// Path is one chain of relationships found by a traversal. Nodes
// starts at the queried chemical; Rules holds the edge walked between
// each consecutive node pair, so len(Rules) == len(Nodes)-1.
type Path struct {
	Nodes []string
	Rules []model.IncompatibilityRule
}

// Target returns the chemical at the end of the path.
func (p Path) Target() string { return p.Nodes[len(p.Nodes)-1] }

// Depth returns the number of edges in the path.
func (p Path) Depth() int { return len(p.Rules) }

type edge struct {
	to   string
	rule model.IncompatibilityRule
}

// Graph is an undirected multigraph: nodes are chemical ids, edges are
// individual rules, so two sources asserting the same pair contribute
// two edges.
type Graph struct {
	adj      map[string][]edge
	profiles map[string]model.HazardProfile
}

// New builds a graph from a rule snapshot and hazard profiles. Profiles
// without rules still become nodes so hazard elevation can see them.
func New(rules []model.IncompatibilityRule, profiles []model.HazardProfile) *Graph {
	g := &Graph{
		adj:      make(map[string][]edge),
		profiles: make(map[string]model.HazardProfile, len(profiles)),
	}
	for _, r := range rules {
		g.adj[r.Pair.Low] = append(g.adj[r.Pair.Low], edge{to: r.Pair.High, rule: r})
		if r.Pair.High != r.Pair.Low {
			g.adj[r.Pair.High] = append(g.adj[r.Pair.High], edge{to: r.Pair.Low, rule: r})
		}
	}
	for _, p := range profiles {
		g.profiles[p.ChemicalID] = p
		if _, ok := g.adj[p.ChemicalID]; !ok {
			g.adj[p.ChemicalID] = nil
		}
	}
	// Stable adjacency order makes traversal output deterministic.
	for _, edges := range g.adj {
		sort.Slice(edges, func(i, j int) bool {
			if edges[i].to != edges[j].to {
				return edges[i].to < edges[j].to
			}
			return edges[i].rule.ID < edges[j].rule.ID
		})
	}
	return g
}

// Profile returns the hazard profile attached to a node, if any.
func (g *Graph) Profile(chemicalID string) (model.HazardProfile, bool) {
	p, ok := g.profiles[chemicalID]
	return p, ok
}

// HasNode reports whether the chemical appears in the graph at all.
func (g *Graph) HasNode(chemicalID string) bool {
	_, ok := g.adj[chemicalID]
	return ok
}

// TransitiveIncompatibilities returns every relationship chain starting
// at chemicalID, up to maxDepth edges long, expanding only edges whose
// type passes the filter. The traversal is a bounded breadth-first
// search with a per-path visited set: it never enumerates paths the
// filter would reject, which keeps a dense graph tractable. A node
// with zero matching edges returns nil without traversal, and a path
// never revisits its own nodes, so no result ends back at chemicalID.
func (g *Graph) TransitiveIncompatibilities(chemicalID string, maxDepth int, filter RuleTypeFilter) []Path {
	if maxDepth < 1 {
		return nil
	}
	start := g.matching(chemicalID, filter)
	if len(start) == 0 {
		return nil
	}

	type frame struct {
		path    Path
		visited map[string]bool
	}

	var out []Path
	queue := make([]frame, 0, len(start))
	for _, e := range start {
		f := frame{
			path: Path{
				Nodes: []string{chemicalID, e.to},
				Rules: []model.IncompatibilityRule{e.rule},
			},
			visited: map[string]bool{chemicalID: true, e.to: true},
		}
		out = append(out, f.path)
		queue = append(queue, f)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.path.Depth() >= maxDepth {
			continue
		}
		for _, e := range g.matching(cur.path.Target(), filter) {
			if cur.visited[e.to] {
				continue
			}
			next := frame{
				path: Path{
					Nodes: append(append([]string(nil), cur.path.Nodes...), e.to),
					Rules: append(append([]model.IncompatibilityRule(nil), cur.path.Rules...), e.rule),
				},
				visited: make(map[string]bool, len(cur.visited)+1),
			}
			for k := range cur.visited {
				next.visited[k] = true
			}
			next.visited[e.to] = true
			out = append(out, next.path)
			queue = append(queue, next)
		}
	}
	return out
}

// PathsBetween returns the chains from a to b, shortest first. It is
// the same bounded traversal restricted to one endpoint.
func (g *Graph) PathsBetween(a, b string, maxDepth int, filter RuleTypeFilter) []Path {
	if a == b {
		return nil
	}
	var out []Path
	for _, p := range g.TransitiveIncompatibilities(a, maxDepth, filter) {
		if p.Target() == b {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Depth() < out[j].Depth() })
	return out
}

func (g *Graph) matching(chemicalID string, filter RuleTypeFilter) []edge {
	all := g.adj[chemicalID]
	if len(all) == 0 {
		return nil
	}
	out := make([]edge, 0, len(all))
	for _, e := range all {
		if filter(e.rule.Type) {
			out = append(out, e)
		}
	}
	return out
}
