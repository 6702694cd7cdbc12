package core

import "sync"

// NodeID is a dense integer identifier allocated to an identity the first
// time it is created, and never reused while that identity exists (§4.D).
type NodeID uint32

// WotGraph is a directed certification graph over dense integer node ids.
// Edges carry no payload — expiry of a certification is tracked separately
// in the certification store; the graph only answers reachability queries.
type WotGraph struct {
	mu       sync.RWMutex
	nextID   NodeID
	edgesOut map[NodeID]map[NodeID]bool // issuer -> {targets}
	edgesIn  map[NodeID]map[NodeID]bool // target -> {issuers}
	live     map[NodeID]bool
}

// NewWotGraph returns an empty WoT graph.
func NewWotGraph() *WotGraph {
	return &WotGraph{
		edgesOut: make(map[NodeID]map[NodeID]bool),
		edgesIn:  make(map[NodeID]map[NodeID]bool),
		live:     make(map[NodeID]bool),
	}
}

// AllocateNode reserves and returns the next never-reused node id for a
// newly created identity.
func (g *WotGraph) AllocateNode() NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	id := g.nextID
	g.live[id] = true
	g.edgesOut[id] = make(map[NodeID]bool)
	g.edgesIn[id] = make(map[NodeID]bool)
	return id
}

// RemoveNode marks a node no longer live (identity excluded/revoked),
// without reclaiming its id.
func (g *WotGraph) RemoveNode(id NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.live[id] = false
}

// AddEdge records a live certification issuer -> target.
func (g *WotGraph) AddEdge(issuer, target NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.edgesOut[issuer] == nil {
		g.edgesOut[issuer] = make(map[NodeID]bool)
	}
	g.edgesOut[issuer][target] = true
	if g.edgesIn[target] == nil {
		g.edgesIn[target] = make(map[NodeID]bool)
	}
	g.edgesIn[target][issuer] = true
}

// RemoveEdge drops an expired/replaced certification edge.
func (g *WotGraph) RemoveEdge(issuer, target NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.edgesOut[issuer], target)
	delete(g.edgesIn[target], issuer)
}

// reachableWithin returns the set of nodes reachable from start via a
// directed path of length <= steps, not counting start itself.
func (g *WotGraph) reachableWithin(start NodeID, steps uint64) map[NodeID]bool {
	visited := map[NodeID]bool{start: true}
	frontier := []NodeID{start}
	reached := make(map[NodeID]bool)
	for depth := uint64(0); depth < steps && len(frontier) > 0; depth++ {
		var next []NodeID
		for _, n := range frontier {
			for target := range g.edgesOut[n] {
				if !g.live[target] || visited[target] {
					continue
				}
				visited[target] = true
				reached[target] = true
				next = append(next, target)
			}
		}
		frontier = next
	}
	return reached
}

// DistanceRuleOK implements the §4.D distance rule: candidate passes when
// at least xPercent of the referring members set can reach it within
// stepMax directed hops.
func (g *WotGraph) DistanceRuleOK(candidate NodeID, referring []NodeID, xPercent float64, stepMax uint64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(referring) == 0 {
		return false
	}
	reachers := 0
	for _, r := range referring {
		if g.reachableWithin(r, stepMax)[candidate] {
			reachers++
		}
	}
	return float64(reachers) >= xPercent*float64(len(referring))
}
