package graph

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/zero-day-ai/pql/cfgtree"
)

// Option configures Build.
type Option func(*builder)

// WithLogger sets the logger used for build diagnostics.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(b *builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// objectContainers lists the object containers in build order. Tags come
// first so that later objects can be read in a stable order.
var objectContainers = []struct {
	container string
	nodeType  NodeType
	parse     func(*Node, cfgtree.Entry) (string, string)
}{
	{"tag", NodeTag, parseTag},
	{"address", NodeAddress, parseAddress},
	{"address-group", NodeAddressGroup, parseAddressGroup},
	{"service", NodeService, parseService},
	{"service-group", NodeServiceGroup, parseMemberGroup},
	{"application", NodeApplication, parseApplication},
	{"application-group", NodeApplicationGroup, parseMemberGroup},
}

// ruleContainers maps a rulebase kind to its node type.
var ruleContainers = []struct {
	kind     string
	nodeType NodeType
}{
	{"security", NodeSecurityRule},
	{"nat", NodeNATRule},
	{"decryption", NodeDecryptionRule},
	{"authentication", NodeAuthenticationRule},
	{"pbf", NodePBFRule},
	{"qos", NodeQoSRule},
	{"application-override", NodeApplicationOverrideRule},
}

// groupMemberTypes lists, per group type, the node types a member name may
// resolve to in lookup order. The first type is used for placeholders.
var groupMemberTypes = map[NodeType][]NodeType{
	NodeAddressGroup:     {NodeAddress, NodeAddressGroup},
	NodeServiceGroup:     {NodeService, NodeServiceGroup},
	NodeApplicationGroup: {NodeApplication, NodeApplicationGroup},
}

// ruleReferences describes the member lists of a rule.
var ruleReferences = []struct {
	field    string
	relation Relation
	anyProp  string
	targets  []NodeType
}{
	{"source", RelUsesSource, "has_any_source", []NodeType{NodeAddress, NodeAddressGroup}},
	{"destination", RelUsesDestination, "has_any_destination", []NodeType{NodeAddress, NodeAddressGroup}},
	{"service", RelUsesService, "has_any_service", []NodeType{NodeService, NodeServiceGroup}},
	{"application", RelUsesApplication, "has_any_application", []NodeType{NodeApplication, NodeApplicationGroup}},
}

const (
	memberAny                = "any"
	memberApplicationDefault = "application-default"
)

type objectKey struct {
	loc  cfgtree.Location
	t    NodeType
	name string
}

type pendingGroup struct {
	node    *Node
	chain   []cfgtree.Location
	loc     cfgtree.Location
	members []string
}

type builder struct {
	src     cfgtree.Source
	ctx     Context
	primary cfgtree.Location
	chain   []cfgtree.Location
	logger  *slog.Logger

	g        *Graph
	objects  map[objectKey]*Node
	groups   []pendingGroup
	warnings []BuildWarning
}

// Build converts a configuration source into a graph for the given context.
//
// Objects are collected from every location in the scope chain, nearest
// first; rules only from the context's own location. References that cannot
// be resolved anywhere in the chain become placeholder nodes. Problems with
// individual entries are returned as warnings. The returned error is non-nil
// only when ctx is invalid.
func Build(src cfgtree.Source, ctx Context, opts ...Option) (*Graph, []BuildWarning, error) {
	if err := ctx.Validate(); err != nil {
		return nil, nil, err
	}

	b := &builder{
		src:     src,
		ctx:     ctx,
		primary: ctx.Location(),
		logger:  slog.Default(),
		g:       newGraph(ctx, src.Snapshot()),
		objects: make(map[objectKey]*Node),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.chain = b.resolveChain()
	for i, loc := range b.chain {
		b.buildObjects(loc, b.chain[i:])
	}
	for _, pg := range b.groups {
		b.linkGroup(pg)
	}
	b.buildRules()

	b.logger.Debug("graph built",
		"context", ctx.Key(),
		"snapshot", b.g.snapshot,
		"nodes", len(b.g.nodes),
		"edges", len(b.g.edges),
		"warnings", len(b.warnings),
	)

	return b.g, b.warnings, nil
}

// resolveChain returns the lookup order of locations for the context.
func (b *builder) resolveChain() []cfgtree.Location {
	switch b.ctx.Scope {
	case cfgtree.ScopeShared:
		return []cfgtree.Location{cfgtree.Shared()}
	case cfgtree.ScopeTemplate:
		return []cfgtree.Location{b.primary}
	case cfgtree.ScopeVsys:
		return []cfgtree.Location{b.primary, cfgtree.Shared()}
	}

	chain := []cfgtree.Location{b.primary}
	seen := map[string]bool{b.ctx.ScopeName: true}
	current := b.ctx.ScopeName
	for {
		parent, ok := b.src.Parent(current)
		if !ok {
			break
		}
		if seen[parent] {
			b.warn(cfgtree.DeviceGroup(current), "", "", WarnHierarchyCycle,
				fmt.Sprintf("parent %q already visited; stopping ancestor walk", parent))
			break
		}
		seen[parent] = true
		chain = append(chain, cfgtree.DeviceGroup(parent))
		current = parent
	}
	return append(chain, cfgtree.Shared())
}

func (b *builder) buildObjects(loc cfgtree.Location, chain []cfgtree.Location) {
	for _, oc := range objectContainers {
		for _, entry := range b.src.Entries(loc, oc.container) {
			if entry.Name == "" {
				b.warn(loc, oc.container, "", WarnMissingName, "entry has no name")
				continue
			}
			key := objectKey{loc: loc, t: oc.nodeType, name: entry.Name}
			if _, dup := b.objects[key]; dup {
				b.warn(loc, oc.container, entry.Name, WarnDuplicate, "duplicate entry ignored")
				continue
			}

			id := b.id(oc.nodeType, loc, entry.Name)
			if existing, clash := b.g.Node(id); clash {
				b.warn(loc, oc.container, entry.Name, WarnIDCollision,
					fmt.Sprintf("id %s already taken by entry %q; entry ignored", id, existing.Name()))
				continue
			}

			node := newNode(id, oc.nodeType)
			node.Properties.Set("name", String(entry.Name))
			code, msg := oc.parse(node, entry)
			if code == WarnUntyped {
				b.warn(loc, oc.container, entry.Name, code, msg)
				continue
			}
			if code != "" {
				b.warn(loc, oc.container, entry.Name, code, msg)
			}
			b.setCommon(node, entry, loc)

			b.objects[key] = node
			b.g.addNode(node)

			if _, isGroup := groupMemberTypes[oc.nodeType]; isGroup {
				b.groups = append(b.groups, pendingGroup{
					node:    node,
					chain:   chain,
					loc:     loc,
					members: groupMembers(entry),
				})
			}
		}
	}
}

func (b *builder) linkGroup(pg pendingGroup) {
	targets := groupMemberTypes[pg.node.Type]
	for _, member := range pg.members {
		if member == memberAny {
			continue
		}
		target := b.resolve(member, targets, pg.chain, pg.loc)
		b.g.addEdge(RelContains, pg.node, target)
	}
}

func (b *builder) buildRules() {
	for _, rc := range ruleContainers {
		for _, base := range b.rulebases() {
			container := base.prefix + "/" + rc.kind
			for i, entry := range b.src.Entries(b.primary, container) {
				b.buildRule(rc.nodeType, container, base.name, i+1, entry)
			}
		}
	}
}

type rulebase struct {
	prefix string
	name   string
}

func (b *builder) rulebases() []rulebase {
	if b.ctx.DeviceKind == DevicePanorama {
		return []rulebase{{"pre-rulebase", "pre"}, {"post-rulebase", "post"}}
	}
	return []rulebase{{"rulebase", "local"}}
}

func (b *builder) buildRule(t NodeType, container, base string, position int, entry cfgtree.Entry) {
	if entry.Name == "" {
		b.warn(b.primary, container, "", WarnMissingName, "rule has no name")
		return
	}
	key := objectKey{loc: b.primary, t: t, name: entry.Name}
	if _, dup := b.objects[key]; dup {
		b.warn(b.primary, container, entry.Name, WarnDuplicate, "duplicate rule ignored")
		return
	}

	node := newNode(b.id(t, b.primary, entry.Name), t)
	node.Properties.Set("name", String(entry.Name))
	parseRule(node, entry)
	node.Properties.Set("rulebase", String(base))
	node.Properties.Set("position", Int(int64(position)))

	b.objects[key] = node
	b.g.addNode(node)

	appDefault := false
	for _, ref := range ruleReferences {
		members := ruleMembers(entry, ref.field)
		hasAny := false
		for _, member := range members {
			switch {
			case member == memberAny:
				hasAny = true
			case ref.field == "service" && member == memberApplicationDefault:
				appDefault = true
			default:
				target := b.resolve(member, ref.targets, b.chain, b.primary)
				b.g.addEdge(ref.relation, node, target)
			}
		}
		node.Properties.Set(ref.anyProp, Bool(hasAny))
	}
	node.Properties.Set("application_default", Bool(appDefault))

	b.setCommon(node, entry, b.primary)
}

// resolve finds the node a reference names. Each location of chain is tried in
// order, and within a location each candidate type in order. Unresolved names
// become placeholders of the first candidate type, qualified by from.
func (b *builder) resolve(name string, types []NodeType, chain []cfgtree.Location, from cfgtree.Location) *Node {
	for _, loc := range chain {
		for _, t := range types {
			if n, ok := b.objects[objectKey{loc: loc, t: t, name: name}]; ok {
				return n
			}
		}
	}

	base := types[0]
	id := b.id(base, from, name)
	if n, ok := b.g.Node(id); ok {
		return n
	}

	n := newNode(id, base)
	n.Properties.Set("name", String(name))
	if base == NodeService && setPredefinedService(n, name) {
		b.g.addNode(n)
		return n
	}
	n.Properties.Set("placeholder", Bool(true))
	b.g.addNode(n)
	b.logger.Debug("placeholder created", "id", id, "location", from.String())
	return n
}

// id builds the node id for an object named name living at loc. Names in the
// primary location are used as is; inherited ones are prefixed with their
// location qualifier.
func (b *builder) id(t NodeType, loc cfgtree.Location, name string) string {
	if loc == b.primary {
		return string(t) + ":" + name
	}
	return string(t) + ":" + loc.Qualifier() + "/" + name
}

func (b *builder) setCommon(n *Node, entry cfgtree.Entry, loc cfgtree.Location) {
	if desc, ok := entry.Text("description"); ok {
		n.Properties.Set("description", String(desc))
	} else if n.Type.IsRule() {
		n.Properties.Set("description", String(""))
	}
	if tags := entry.List("tag"); len(tags) > 0 {
		n.Properties.Set("tag", String(strings.Join(tags, ",")))
	}
	n.Properties.Set("scope", String(string(loc.Scope)))
	n.Properties.Set("location", String(loc.Qualifier()))
}

func (b *builder) warn(loc cfgtree.Location, container, entry, code, msg string) {
	w := BuildWarning{Location: loc, Container: container, Entry: entry, Code: code, Message: msg}
	b.warnings = append(b.warnings, w)
	b.logger.Debug("graph build warning",
		"location", loc.String(),
		"container", container,
		"entry", entry,
		"code", code,
		"message", msg,
	)
}
