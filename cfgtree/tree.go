// Package cfgtree is the read-only boundary between a normalized device
// configuration and the graph builder.
//
// A Source exposes entries per container (e.g. "address",
// "pre-rulebase/security") for each configuration location. Version-specific
// path resolution has already happened by the time a Source exists; the builder
// only iterates.
package cfgtree

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Scope is the configuration subdivision a location belongs to.
type Scope string

const (
	ScopeShared      Scope = "shared"
	ScopeDeviceGroup Scope = "device-group"
	ScopeVsys        Scope = "vsys"
	ScopeTemplate    Scope = "template"
)

// IsValid reports whether s is one of the known scopes.
func (s Scope) IsValid() bool {
	switch s {
	case ScopeShared, ScopeDeviceGroup, ScopeVsys, ScopeTemplate:
		return true
	default:
		return false
	}
}

// ParseScope parses a scope name.
func ParseScope(s string) (Scope, error) {
	scope := Scope(strings.ToLower(strings.TrimSpace(s)))
	if !scope.IsValid() {
		return "", fmt.Errorf("invalid scope: %q (must be one of: shared, device-group, vsys, template)", s)
	}
	return scope, nil
}

// Location identifies one place in the configuration that holds containers.
// Name is empty for the shared location.
type Location struct {
	Scope Scope
	Name  string
}

// Shared returns the shared location.
func Shared() Location {
	return Location{Scope: ScopeShared}
}

// DeviceGroup returns the location of a Panorama device group.
func DeviceGroup(name string) Location {
	return Location{Scope: ScopeDeviceGroup, Name: name}
}

// Vsys returns the location of a firewall virtual system.
func Vsys(name string) Location {
	return Location{Scope: ScopeVsys, Name: name}
}

// Template returns the location of a template.
func Template(name string) Location {
	return Location{Scope: ScopeTemplate, Name: name}
}

// Qualifier is the short label used to qualify names that live in l.
func (l Location) Qualifier() string {
	if l.Scope == ScopeShared {
		return string(ScopeShared)
	}
	return l.Name
}

func (l Location) String() string {
	if l.Scope == ScopeShared {
		return string(ScopeShared)
	}
	return fmt.Sprintf("%s:%s", l.Scope, l.Name)
}

// Entry is one configuration entry of a container. Fields hold the decoded
// values: strings, numbers, booleans, []any and map[string]any.
type Entry struct {
	Name   string
	Fields map[string]any
}

// NewEntry creates an entry with the given name and fields.
func NewEntry(name string, fields map[string]any) Entry {
	if fields == nil {
		fields = make(map[string]any)
	}
	return Entry{Name: name, Fields: fields}
}

// Has reports whether key is present.
func (e Entry) Has(key string) bool {
	_, ok := e.Fields[key]
	return ok
}

// Text returns a scalar field rendered as a string.
func (e Entry) Text(key string) (string, bool) {
	return scalarText(e.Fields[key])
}

// List returns a member-style field as a list of strings. It accepts a list,
// a comma-joined scalar, or a map holding a "member" list.
func (e Entry) List(key string) []string {
	return listOf(e.Fields[key])
}

// Sub returns a nested mapping field.
func (e Entry) Sub(key string) (map[string]any, bool) {
	m, ok := e.Fields[key].(map[string]any)
	return m, ok
}

// Flag returns a boolean field. "yes"/"no" strings are accepted.
func (e Entry) Flag(key string) (bool, bool) {
	switch v := e.Fields[key].(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(v) {
		case "yes", "true":
			return true, true
		case "no", "false":
			return false, true
		}
	}
	return false, false
}

func scalarText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func listOf(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := scalarText(item); ok {
				out = append(out, s)
			}
		}
		return out
	case map[string]any:
		if members, ok := t["member"]; ok {
			return listOf(members)
		}
		return nil
	default:
		s, ok := scalarText(t)
		if !ok {
			return nil
		}
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
}

// Source is the narrow read-only view the graph builder consumes.
type Source interface {
	// Entries returns the entries of container at loc in configuration order.
	// A missing container yields nil.
	Entries(loc Location, container string) []Entry

	// Parent returns the parent device group of a device group. The second
	// result is false for top-level device groups, whose parent is shared.
	Parent(deviceGroup string) (string, bool)

	// Snapshot identifies the configuration content. Two sources with the same
	// snapshot are interchangeable for caching purposes.
	Snapshot() string
}

// Tree is an in-memory Source.
type Tree struct {
	snapshot   string
	containers map[Location]map[string][]Entry
	parents    map[string]string
}

// New creates an empty tree with a random snapshot id.
func New() *Tree {
	return &Tree{
		snapshot:   uuid.NewString(),
		containers: make(map[Location]map[string][]Entry),
		parents:    make(map[string]string),
	}
}

// WithSnapshot overrides the snapshot id and returns the tree for chaining.
func (t *Tree) WithSnapshot(id string) *Tree {
	t.snapshot = id
	return t
}

// Add appends entries to container at loc and returns the tree for chaining.
func (t *Tree) Add(loc Location, container string, entries ...Entry) *Tree {
	byName, ok := t.containers[loc]
	if !ok {
		byName = make(map[string][]Entry)
		t.containers[loc] = byName
	}
	byName[container] = append(byName[container], entries...)
	return t
}

// SetParent records the parent of a device group.
func (t *Tree) SetParent(deviceGroup, parent string) *Tree {
	t.parents[deviceGroup] = parent
	return t
}

// Entries implements Source.
func (t *Tree) Entries(loc Location, container string) []Entry {
	return t.containers[loc][container]
}

// Parent implements Source.
func (t *Tree) Parent(deviceGroup string) (string, bool) {
	p, ok := t.parents[deviceGroup]
	if !ok || p == "" {
		return "", false
	}
	return p, true
}

// Snapshot implements Source.
func (t *Tree) Snapshot() string {
	return t.snapshot
}

// Locations returns every location that holds at least one container, sorted
// by scope and name.
func (t *Tree) Locations() []Location {
	locs := make([]Location, 0, len(t.containers))
	for loc := range t.containers {
		locs = append(locs, loc)
	}
	sort.Slice(locs, func(i, j int) bool {
		if locs[i].Scope != locs[j].Scope {
			return locs[i].Scope < locs[j].Scope
		}
		return locs[i].Name < locs[j].Name
	})
	return locs
}
