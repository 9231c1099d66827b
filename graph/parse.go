package graph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zero-day-ai/pql/cfgtree"
)

// addressFields lists the address value fields in precedence order.
var addressFields = []string{"ip-netmask", "ip-range", "ip-wildcard", "fqdn"}

var serviceProtocols = map[string]bool{"tcp": true, "udp": true, "sctp": true}

// predefinedServices are the services every device ships with.
var predefinedServices = map[string]struct{ proto, port string }{
	"service-http":  {"tcp", "80,8080"},
	"service-https": {"tcp", "443"},
}

func parseTag(n *Node, e cfgtree.Entry) (string, string) {
	if color, ok := e.Text("color"); ok {
		n.Properties.Set("color", String(color))
	}
	if comments, ok := e.Text("comments"); ok {
		n.Properties.Set("comments", String(comments))
	}
	return "", ""
}

func parseAddress(n *Node, e cfgtree.Entry) (string, string) {
	for _, field := range addressFields {
		if v, ok := e.Text(field); ok && v != "" {
			n.Properties.Set("value", String(v))
			n.Properties.Set("addr_type", String(field))
			return "", ""
		}
	}
	return WarnUntyped, "address has none of " + strings.Join(addressFields, ", ")
}

func parseAddressGroup(n *Node, e cfgtree.Entry) (string, string) {
	if e.Has("static") {
		members := e.List("static")
		n.Properties.Set("group_type", String("static"))
		n.Properties.Set("members", String(strings.Join(members, ",")))
		n.Properties.Set("member_count", Int(int64(len(members))))
		return "", ""
	}
	if dyn, ok := e.Sub("dynamic"); ok {
		n.Properties.Set("group_type", String("dynamic"))
		if filter, ok := cfgtree.NewEntry("", dyn).Text("filter"); ok {
			n.Properties.Set("filter", String(filter))
		}
		return "", ""
	}
	return WarnUntyped, "address group is neither static nor dynamic"
}

func parseMemberGroup(n *Node, e cfgtree.Entry) (string, string) {
	members := groupMembers(e)
	n.Properties.Set("members", String(strings.Join(members, ",")))
	n.Properties.Set("member_count", Int(int64(len(members))))
	return "", ""
}

// groupMembers returns the static member names of a group entry.
func groupMembers(e cfgtree.Entry) []string {
	if e.Has("static") {
		return e.List("static")
	}
	return e.List("members")
}

func parseApplication(n *Node, e cfgtree.Entry) (string, string) {
	for _, field := range []string{"category", "subcategory", "technology"} {
		if v, ok := e.Text(field); ok {
			n.Properties.Set(field, String(v))
		}
	}
	if raw, ok := e.Text("risk"); ok {
		risk, err := strconv.Atoi(raw)
		if err != nil {
			return WarnInvalidField, fmt.Sprintf("risk %q is not a number", raw)
		}
		n.Properties.Set("risk", Int(int64(risk)))
	}
	return "", ""
}

// parseService fills the nested protocol structure. Three entry shapes are
// accepted:
//
//	protocol: {tcp: {port: "80", source-port: "1024-65535"}}
//	protocol: "tcp/80,443"
//	protocol: tcp
//	port: "80"
func parseService(n *Node, e cfgtree.Entry) (string, string) {
	var proto, port, sourcePort string

	if m, ok := e.Sub("protocol"); ok {
		names := make([]string, 0, len(m))
		for k := range m {
			names = append(names, k)
		}
		sort.Strings(names)
		if len(names) != 1 {
			return WarnUntyped, fmt.Sprintf("service must declare exactly one protocol, found %d", len(names))
		}
		proto = names[0]
		body, _ := m[proto].(map[string]any)
		sub := cfgtree.NewEntry("", body)
		port, _ = sub.Text("port")
		sourcePort, _ = sub.Text("source-port")
	} else if text, ok := e.Text("protocol"); ok {
		proto, port, _ = strings.Cut(text, "/")
		if port == "" {
			port, _ = e.Text("port")
		}
		sourcePort, _ = e.Text("source-port")
	} else {
		return WarnUntyped, "service has no protocol"
	}

	proto = strings.ToLower(strings.TrimSpace(proto))
	if !serviceProtocols[proto] {
		return WarnUntyped, fmt.Sprintf("unsupported protocol %q", proto)
	}
	if port == "" {
		return WarnUntyped, fmt.Sprintf("%s service has no port", proto)
	}

	n.Properties.Set("protocol", Map(protocolMap(proto, port, sourcePort)))
	return "", ""
}

func protocolMap(proto, port, sourcePort string) *Properties {
	inner := NewProperties().Set("port", String(port))
	if sourcePort != "" {
		inner.Set("source_port", String(sourcePort))
	}
	return NewProperties().Set(proto, Map(inner))
}

// setPredefinedService fills n when name is a built-in service.
func setPredefinedService(n *Node, name string) bool {
	svc, ok := predefinedServices[name]
	if !ok {
		return false
	}
	n.Properties.Set("protocol", Map(protocolMap(svc.proto, svc.port, "")))
	n.Properties.Set("predefined", Bool(true))
	return true
}

// parseRule sets the fields common to all rule kinds plus the kind-specific
// ones.
func parseRule(n *Node, e cfgtree.Entry) {
	n.Properties.Set("action", String(ruleAction(n.Type, e)))
	n.Properties.Set("from", String(strings.Join(zones(e, "from"), ",")))
	n.Properties.Set("to", String(strings.Join(zones(e, "to"), ",")))

	disabled, _ := e.Flag("disabled")
	n.Properties.Set("disabled", Bool(disabled))

	for _, field := range []string{"source", "destination", "service", "application"} {
		if e.Has(field) {
			n.Properties.Set(field, String(strings.Join(ruleMembers(e, field), ",")))
		}
	}
	negSrc, _ := e.Flag("negate-source")
	negDst, _ := e.Flag("negate-destination")
	n.Properties.Set("negate_source", Bool(negSrc))
	n.Properties.Set("negate_destination", Bool(negDst))

	switch n.Type {
	case NodeSecurityRule:
		if v, ok := e.Flag("log-start"); ok {
			n.Properties.Set("log_start", Bool(v))
		}
		if v, ok := e.Flag("log-end"); ok {
			n.Properties.Set("log_end", Bool(v))
		}
		if v, ok := e.Text("log-setting"); ok {
			n.Properties.Set("log_setting", String(v))
		}
		if ps, ok := e.Sub("profile-setting"); ok {
			groups := cfgtree.NewEntry("", ps).List("group")
			if len(groups) > 0 {
				n.Properties.Set("profile_group", String(strings.Join(groups, ",")))
			}
		}
	case NodeNATRule:
		natType, ok := e.Text("nat-type")
		if !ok {
			natType = "ipv4"
		}
		n.Properties.Set("nat_type", String(natType))
		if st, ok := e.Sub("source-translation"); ok {
			n.Properties.Set("source_translation", String(firstKey(st)))
		}
		if dt, ok := e.Sub("destination-translation"); ok {
			if addr, ok := cfgtree.NewEntry("", dt).Text("translated-address"); ok {
				n.Properties.Set("destination_translation", String(addr))
			}
		}
		if v, ok := e.Text("to-interface"); ok {
			n.Properties.Set("to_interface", String(v))
		}
	case NodeDecryptionRule:
		if t, ok := e.Sub("type"); ok {
			n.Properties.Set("decryption_type", String(firstKey(t)))
		}
		if v, ok := e.Text("profile"); ok {
			n.Properties.Set("profile", String(v))
		}
	case NodeAuthenticationRule:
		if v, ok := e.Text("authentication-enforcement"); ok {
			n.Properties.Set("authentication_enforcement", String(v))
		}
	case NodePBFRule:
		if action, ok := e.Sub("action"); ok {
			if fwd, ok := action["forward"].(map[string]any); ok {
				sub := cfgtree.NewEntry("", fwd)
				if v, ok := sub.Text("egress-interface"); ok {
					n.Properties.Set("forward_egress_interface", String(v))
				}
				if hop, ok := sub.Sub("nexthop"); ok {
					if ip, ok := cfgtree.NewEntry("", hop).Text("ip-address"); ok {
						n.Properties.Set("forward_nexthop", String(ip))
					}
				}
			}
		}
	case NodeQoSRule:
		if action, ok := e.Sub("action"); ok {
			if class, ok := cfgtree.NewEntry("", action).Text("class"); ok {
				n.Properties.Set("qos_class", String(class))
			}
		}
	case NodeApplicationOverrideRule:
		if v, ok := e.Text("port"); ok {
			n.Properties.Set("port", String(v))
		}
		if v, ok := e.Text("protocol"); ok {
			n.Properties.Set("protocol", String(v))
		}
	}
}

// ruleAction derives the action of a rule. Map-valued actions (pbf, qos)
// use their single key; nat rules report whether they translate.
func ruleAction(t NodeType, e cfgtree.Entry) string {
	if t == NodeNATRule {
		if e.Has("source-translation") || e.Has("destination-translation") {
			return "translate"
		}
		return "no-nat"
	}
	if t == NodeQoSRule {
		return "classify"
	}
	if v, ok := e.Text("action"); ok {
		return v
	}
	if m, ok := e.Sub("action"); ok {
		return firstKey(m)
	}
	return ""
}

// zones reads a zone list that is either a plain list or, for pbf rules, a
// mapping holding a "zone" or "interface" list.
func zones(e cfgtree.Entry, key string) []string {
	if m, ok := e.Sub(key); ok {
		sub := cfgtree.NewEntry("", m)
		for _, k := range []string{"zone", "interface", "member"} {
			if sub.Has(k) {
				return sub.List(k)
			}
		}
		return nil
	}
	return e.List(key)
}

// ruleMembers returns a rule's member list with empty names removed.
func ruleMembers(e cfgtree.Entry, field string) []string {
	raw := e.List(field)
	out := raw[:0]
	for _, m := range raw {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

func firstKey(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	return keys[0]
}
