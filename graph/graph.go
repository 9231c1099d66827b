package graph

// Graph is an immutable configuration graph. It is safe for concurrent
// readers once Build has returned.
type Graph struct {
	ctx      Context
	snapshot string

	nodes  []*Node
	byID   map[string]*Node
	byType map[NodeType][]*Node
	edges  []*Edge
}

func newGraph(ctx Context, snapshot string) *Graph {
	return &Graph{
		ctx:      ctx,
		snapshot: snapshot,
		byID:     make(map[string]*Node),
		byType:   make(map[NodeType][]*Node),
	}
}

// Context returns the context the graph was built for.
func (g *Graph) Context() Context { return g.ctx }

// Snapshot returns the snapshot id of the source the graph was built from.
func (g *Graph) Snapshot() string { return g.snapshot }

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.byID[id]
	return n, ok
}

// NodesOfType returns the nodes of t in build order. The slice is shared and
// must not be modified.
func (g *Graph) NodesOfType(t NodeType) []*Node {
	return g.byType[t]
}

// Nodes returns every node in build order. The slice is shared and must not be
// modified.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Edges returns every edge in build order. The slice is shared and must not be
// modified.
func (g *Graph) Edges() []*Edge { return g.edges }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Counts returns the number of nodes per type.
func (g *Graph) Counts() map[NodeType]int {
	out := make(map[NodeType]int, len(g.byType))
	for t, nodes := range g.byType {
		out[t] = len(nodes)
	}
	return out
}

func (g *Graph) addNode(n *Node) {
	g.nodes = append(g.nodes, n)
	g.byID[n.ID] = n
	g.byType[n.Type] = append(g.byType[n.Type], n)
}

// addEdge links two existing nodes. Duplicate edges are ignored.
func (g *Graph) addEdge(rel Relation, from, to *Node) {
	if from.HasEdgeTo(to.ID, rel) {
		return
	}
	e := &Edge{Relation: rel, SourceID: from.ID, TargetID: to.ID}
	g.edges = append(g.edges, e)
	from.out = append(from.out, e)
	to.in = append(to.in, e)
}
