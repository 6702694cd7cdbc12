package core

import "testing"

func TestDistanceRuleReachability(t *testing.T) {
	g := NewWotGraph()
	a := g.AllocateNode()
	b := g.AllocateNode()
	c := g.AllocateNode()
	d := g.AllocateNode()

	g.AddEdge(a, b)
	g.AddEdge(b, c)
	g.AddEdge(d, c)

	if !g.DistanceRuleOK(c, []NodeID{a, d}, 0.5, 3) {
		t.Fatalf("expected candidate reachable from both referrers within 3 hops")
	}
	if g.DistanceRuleOK(c, []NodeID{a}, 1.0, 1) {
		t.Fatalf("expected failure: a reaches c only in 2 hops, step_max=1")
	}
}

func TestDistanceRuleExcludedNodeUnreachable(t *testing.T) {
	g := NewWotGraph()
	a := g.AllocateNode()
	b := g.AllocateNode()
	g.AddEdge(a, b)
	g.RemoveNode(b)
	if g.DistanceRuleOK(b, []NodeID{a}, 1.0, 5) {
		t.Fatalf("expected excluded node to be unreachable")
	}
}
