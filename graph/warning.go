package graph

import (
	"fmt"

	"github.com/zero-day-ai/pql/cfgtree"
)

// Warning codes recorded while building a graph.
const (
	// WarnMissingName indicates an entry without a name.
	WarnMissingName = "MISSING_NAME"

	// WarnDuplicate indicates a second entry with the same type and name in
	// one location. The first entry wins.
	WarnDuplicate = "DUPLICATE_ENTRY"

	// WarnUntyped indicates an entry whose kind could not be determined, such
	// as an address without any value field.
	WarnUntyped = "UNTYPED_ENTRY"

	// WarnInvalidField indicates a field that could not be parsed. The entry is
	// kept without that field.
	WarnInvalidField = "INVALID_FIELD"

	// WarnHierarchyCycle indicates a device-group parent chain that loops.
	WarnHierarchyCycle = "HIERARCHY_CYCLE"

	// WarnIDCollision indicates an inherited entry whose qualified id equals
	// the id of an entry already built, such as a local object literally
	// named "shared/x". The nearer entry wins.
	WarnIDCollision = "ID_COLLISION"
)

// BuildWarning records a non-fatal problem found while building a graph.
type BuildWarning struct {
	Location  cfgtree.Location `json:"location"`
	Container string           `json:"container,omitempty"`
	Entry     string           `json:"entry,omitempty"`
	Code      string           `json:"code"`
	Message   string           `json:"message"`
}

func (w BuildWarning) String() string {
	where := w.Location.String()
	if w.Container != "" {
		where += " " + w.Container
	}
	if w.Entry != "" {
		where += fmt.Sprintf(" %q", w.Entry)
	}
	return fmt.Sprintf("%s [%s]: %s", where, w.Code, w.Message)
}
