package profile

import (
	"encoding/json"
	"sort"
)

// Layout is an immutable table of symbolic field names ("UObject.NamePrivate")
// to byte offsets for one pointer width.
type Layout struct {
	PointerSize int
	fields      map[string]uint16
}

// Offset returns the offset of field.
func (l Layout) Offset(field string) (uint16, bool) {
	v, ok := l.fields[field]
	return v, ok
}

// Fields returns the field names in sorted order.
func (l Layout) Fields() []string {
	names := make([]string, 0, len(l.fields))
	for k := range l.fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of fields.
func (l Layout) Len() int {
	return len(l.fields)
}

// MarshalJSON exports the table as a flat object.
func (l Layout) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.fields)
}
