package graph

import "sort"

// Fields shared by every node.
var commonFields = []string{"name", "placeholder", "scope", "location", "description", "tag"}

// Fields shared by every rule node.
var ruleFields = []string{
	"action", "from", "to", "disabled", "rulebase", "position",
	"source", "destination", "service", "application",
	"negate_source", "negate_destination",
	"has_any_source", "has_any_destination", "has_any_service", "has_any_application",
	"application_default",
}

// schemas lists the top-level fields a node of each type may carry. Nested
// paths below a declared field are not checked.
var schemas = map[NodeType][]string{
	NodeAddress:          {"value", "addr_type"},
	NodeAddressGroup:     {"group_type", "members", "member_count", "filter"},
	NodeService:          {"protocol", "predefined"},
	NodeServiceGroup:     {"members", "member_count"},
	NodeApplication:      {"category", "subcategory", "technology", "risk", "predefined"},
	NodeApplicationGroup: {"members", "member_count"},
	NodeTag:              {"color", "comments"},

	NodeSecurityRule:            {"log_start", "log_end", "log_setting", "profile_group"},
	NodeNATRule:                 {"nat_type", "source_translation", "destination_translation", "to_interface"},
	NodeDecryptionRule:          {"decryption_type", "profile"},
	NodeAuthenticationRule:      {"authentication_enforcement"},
	NodePBFRule:                 {"forward_egress_interface", "forward_nexthop"},
	NodeQoSRule:                 {"qos_class"},
	NodeApplicationOverrideRule: {"port", "protocol"},
}

// Schema is the set of top-level fields a node type may carry.
type Schema struct {
	Type   NodeType
	fields map[string]struct{}
}

// SchemaFor returns the schema of a node type.
func SchemaFor(t NodeType) (*Schema, bool) {
	specific, ok := schemas[t]
	if !ok {
		return nil, false
	}
	s := &Schema{Type: t, fields: make(map[string]struct{})}
	for _, f := range commonFields {
		s.fields[f] = struct{}{}
	}
	if t.IsRule() {
		for _, f := range ruleFields {
			s.fields[f] = struct{}{}
		}
	}
	for _, f := range specific {
		s.fields[f] = struct{}{}
	}
	return s, true
}

// Has reports whether field is declared for the type.
func (s *Schema) Has(field string) bool {
	_, ok := s.fields[field]
	return ok
}

// Fields returns the declared fields, sorted.
func (s *Schema) Fields() []string {
	out := make([]string, 0, len(s.fields))
	for f := range s.fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
