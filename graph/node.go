package graph

import (
	"fmt"
	"sort"
)

// NodeType tags the kind of configuration object a node represents.
type NodeType string

const (
	NodeAddress          NodeType = "address"
	NodeAddressGroup     NodeType = "address-group"
	NodeService          NodeType = "service"
	NodeServiceGroup     NodeType = "service-group"
	NodeApplication      NodeType = "application"
	NodeApplicationGroup NodeType = "application-group"
	NodeTag              NodeType = "tag"

	NodeSecurityRule            NodeType = "security-rule"
	NodeNATRule                 NodeType = "nat-rule"
	NodeDecryptionRule          NodeType = "decryption-rule"
	NodeAuthenticationRule      NodeType = "authentication-rule"
	NodePBFRule                 NodeType = "pbf-rule"
	NodeQoSRule                 NodeType = "qos-rule"
	NodeApplicationOverrideRule NodeType = "application-override-rule"
)

// AllNodeTypes returns every node type in declaration order.
func AllNodeTypes() []NodeType {
	return []NodeType{
		NodeAddress, NodeAddressGroup,
		NodeService, NodeServiceGroup,
		NodeApplication, NodeApplicationGroup,
		NodeTag,
		NodeSecurityRule, NodeNATRule, NodeDecryptionRule, NodeAuthenticationRule,
		NodePBFRule, NodeQoSRule, NodeApplicationOverrideRule,
	}
}

// ParseNodeType parses a node type name.
func ParseNodeType(s string) (NodeType, error) {
	t := NodeType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown node type: %q", s)
	}
	return t, nil
}

// IsValid reports whether t is a known node type.
func (t NodeType) IsValid() bool {
	_, ok := schemas[t]
	return ok
}

// IsRule reports whether t is a policy rule type.
func (t NodeType) IsRule() bool {
	switch t {
	case NodeSecurityRule, NodeNATRule, NodeDecryptionRule, NodeAuthenticationRule,
		NodePBFRule, NodeQoSRule, NodeApplicationOverrideRule:
		return true
	default:
		return false
	}
}

// Relation names the meaning of an edge.
type Relation string

const (
	RelContains        Relation = "contains"         // group -> member
	RelUsesSource      Relation = "uses-source"      // rule -> address / address-group
	RelUsesDestination Relation = "uses-destination" // rule -> address / address-group
	RelUsesService     Relation = "uses-service"     // rule -> service / service-group
	RelUsesApplication Relation = "uses-application" // rule -> application / application-group
)

// Edge is a directed relationship between two nodes of the same graph.
type Edge struct {
	Relation Relation `json:"relation"`
	SourceID string   `json:"source_id"`
	TargetID string   `json:"target_id"`
}

// Node is one configuration object in the graph.
//
// Nodes are owned by a Graph. After Build returns, neither the node nor its
// properties may be modified.
type Node struct {
	ID         string      `json:"id"`
	Type       NodeType    `json:"node_type"`
	Properties *Properties `json:"properties"`

	out []*Edge
	in  []*Edge
}

func newNode(id string, t NodeType) *Node {
	return &Node{ID: id, Type: t, Properties: NewProperties()}
}

// Name returns the node's name property.
func (n *Node) Name() string {
	v, _ := n.Properties.Get("name")
	s, _ := v.AsString()
	return s
}

// Placeholder reports whether the node stands in for an undefined object.
func (n *Node) Placeholder() bool {
	v, _ := n.Properties.Get("placeholder")
	b, _ := v.AsBool()
	return b
}

// Get returns a property by dotted path; missing properties are null.
func (n *Node) Get(path ...string) Value {
	return n.Properties.Lookup(path)
}

// EdgesOut returns the edges whose source is n. The slice is shared with the
// graph and must not be modified.
func (n *Node) EdgesOut() []*Edge { return n.out }

// EdgesIn returns the edges whose target is n. The slice is shared with the
// graph and must not be modified.
func (n *Node) EdgesIn() []*Edge { return n.in }

// HasEdgeTo reports whether n has an outgoing edge of rel to the node id.
// An empty rel matches any relation.
func (n *Node) HasEdgeTo(id string, rel Relation) bool {
	for _, e := range n.out {
		if e.TargetID == id && (rel == "" || e.Relation == rel) {
			return true
		}
	}
	return false
}

// HasEdgeFrom reports whether n has an incoming edge of rel from the node id.
// An empty rel matches any relation.
func (n *Node) HasEdgeFrom(id string, rel Relation) bool {
	for _, e := range n.in {
		if e.SourceID == id && (rel == "" || e.Relation == rel) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
