package graph

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/zero-day-ai/pql/cfgtree"
)

// ErrInvalidContext indicates that a build context cannot describe any
// configuration location. It is the only error Build returns.
var ErrInvalidContext = errors.New("invalid build context")

// DeviceKind is the type of device a configuration belongs to.
type DeviceKind string

const (
	DeviceFirewall DeviceKind = "firewall"
	DevicePanorama DeviceKind = "panorama"
)

// ParseDeviceKind parses a device kind name.
func ParseDeviceKind(s string) (DeviceKind, error) {
	switch k := DeviceKind(strings.ToLower(strings.TrimSpace(s))); k {
	case DeviceFirewall, DevicePanorama:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown device kind %q (must be firewall or panorama)", ErrInvalidContext, s)
	}
}

// Context selects which part of a configuration a graph is built for.
// Together with the source snapshot it forms the identity of a graph.
type Context struct {
	DeviceKind DeviceKind    `json:"device_kind"`
	Scope      cfgtree.Scope `json:"scope"`
	ScopeName  string        `json:"scope_name,omitempty"`
	Version    string        `json:"version"`
}

// Validate checks that the context is internally consistent. DeviceKind must
// already be canonical; normalise user input with ParseDeviceKind first.
func (c Context) Validate() error {
	if c.DeviceKind != DeviceFirewall && c.DeviceKind != DevicePanorama {
		return fmt.Errorf("%w: unknown device kind %q (must be firewall or panorama)", ErrInvalidContext, c.DeviceKind)
	}
	if !c.Scope.IsValid() {
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidContext, c.Scope)
	}

	switch c.Scope {
	case cfgtree.ScopeShared:
		if c.ScopeName != "" {
			return fmt.Errorf("%w: shared scope does not take a name", ErrInvalidContext)
		}
	case cfgtree.ScopeDeviceGroup:
		if c.DeviceKind != DevicePanorama {
			return fmt.Errorf("%w: device-group scope requires panorama", ErrInvalidContext)
		}
		fallthrough
	default:
		if c.ScopeName == "" {
			return fmt.Errorf("%w: %s scope requires a scope name", ErrInvalidContext, c.Scope)
		}
	}
	if c.Scope == cfgtree.ScopeVsys && c.DeviceKind != DeviceFirewall {
		return fmt.Errorf("%w: vsys scope requires firewall", ErrInvalidContext)
	}

	if _, _, err := ParseVersion(c.Version); err != nil {
		return err
	}
	return nil
}

// Location returns the primary configuration location of the context.
func (c Context) Location() cfgtree.Location {
	if c.Scope == cfgtree.ScopeShared {
		return cfgtree.Shared()
	}
	return cfgtree.Location{Scope: c.Scope, Name: c.ScopeName}
}

// Key is a stable string form used for cache keys and logging.
func (c Context) Key() string {
	return fmt.Sprintf("%s/%s/%s@%s", c.DeviceKind, c.Scope, c.ScopeName, c.Version)
}

// ParseVersion parses a schema version of the form "major.minor[.patch]".
func ParseVersion(v string) (major, minor int, err error) {
	parts := strings.Split(strings.TrimSpace(v), ".")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, fmt.Errorf("%w: malformed version %q", ErrInvalidContext, v)
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, convErr := strconv.Atoi(p)
		if convErr != nil || n < 0 {
			return 0, 0, fmt.Errorf("%w: malformed version %q", ErrInvalidContext, v)
		}
		nums[i] = n
	}
	return nums[0], nums[1], nil
}
