package cfgtree

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML reads a normalized configuration document from path.
func LoadYAML(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config tree: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a normalized configuration document.
//
// The document has one top-level key per scope. "shared" holds containers
// directly; "device-group", "vsys" and "template" hold one mapping per named
// location. A container is any key whose value is a sequence; nested mappings
// are flattened into slash-separated container names, so
//
//	pre-rulebase:
//	  security: [...]
//
// becomes the "pre-rulebase/security" container. A device group may declare
// its parent with a "parent" key.
//
// The snapshot id is derived from the document content, so identical
// documents share cache entries.
func ParseYAML(data []byte) (*Tree, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config tree: %w", err)
	}

	sum := sha256.Sum256(data)
	tree := New().WithSnapshot("sha256:" + hex.EncodeToString(sum[:16]))

	for key, raw := range doc {
		scope, err := ParseScope(key)
		if err != nil {
			return nil, err
		}
		body, ok := raw.(map[string]any)
		if !ok {
			if raw == nil {
				continue
			}
			return nil, fmt.Errorf("scope %q: expected a mapping", key)
		}

		if scope == ScopeShared {
			if err := tree.addContainers(Shared(), "", body); err != nil {
				return nil, err
			}
			continue
		}

		for name, locRaw := range body {
			loc := Location{Scope: scope, Name: name}
			locBody, ok := locRaw.(map[string]any)
			if !ok {
				if locRaw == nil {
					continue
				}
				return nil, fmt.Errorf("%s: expected a mapping", loc)
			}
			if scope == ScopeDeviceGroup {
				if parent, ok := locBody["parent"].(string); ok {
					tree.SetParent(name, parent)
				}
			}
			if err := tree.addContainers(loc, "", locBody); err != nil {
				return nil, err
			}
		}
	}

	return tree, nil
}

func (t *Tree) addContainers(loc Location, prefix string, body map[string]any) error {
	for key, raw := range body {
		if prefix == "" && key == "parent" && loc.Scope == ScopeDeviceGroup {
			continue
		}
		container := key
		if prefix != "" {
			container = prefix + "/" + key
		}

		switch v := raw.(type) {
		case []any:
			entries := make([]Entry, 0, len(v))
			for i, item := range v {
				entry, err := decodeEntry(item)
				if err != nil {
					return fmt.Errorf("%s %s[%d]: %w", loc, container, i, err)
				}
				entries = append(entries, entry)
			}
			t.Add(loc, container, entries...)
		case map[string]any:
			if err := t.addContainers(loc, container, v); err != nil {
				return err
			}
		case nil:
			// empty container
		default:
			return fmt.Errorf("%s %s: expected a sequence or mapping, got %T", loc, container, raw)
		}
	}
	return nil
}

func decodeEntry(item any) (Entry, error) {
	switch v := item.(type) {
	case map[string]any:
		fields := make(map[string]any, len(v))
		name := ""
		for k, val := range v {
			if k == "name" {
				if s, ok := scalarText(val); ok {
					name = s
				}
				continue
			}
			fields[k] = val
		}
		return NewEntry(name, fields), nil
	case string:
		return NewEntry(v, nil), nil
	default:
		return Entry{}, fmt.Errorf("unsupported entry of type %T", item)
	}
}
