// Package registry models the registry.toml catalog of buildable image
// targets. Each TOML table declares one entry: what payload the image
// installs, how its version is resolved, how it is built, and how the
// finished image is verified. Loading is side-effect free; resolution
// and building live elsewhere.
package registry

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Registry is an ordered, name-unique set of buildable entries.
// Declaration order in the TOML source is preserved.
type Registry struct {
	entries []*Entry
	byName  map[string]*Entry
}

// Parse decodes a registry document. Entry names come from the TOML
// table keys; declaration order is preserved. Returns *ValidationError
// when the document is structurally valid TOML but declares an invalid
// registry (duplicate names, unknown kinds, missing coordinates).
func Parse(data []byte) (*Registry, error) {
	order, problems := scanTableOrder(data)
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	raw := make(map[string]*Entry)
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("registry: parse: %w", err)
	}

	r := &Registry{byName: make(map[string]*Entry, len(order))}
	for _, name := range order {
		e, ok := raw[name]
		if !ok || e == nil {
			e = &Entry{}
		}
		e.Name = name
		r.entries = append(r.entries, e)
		r.byName[name] = e
	}

	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Load reads the registry file and applies overlay files in order.
// Overlay entries with new names append after the base set; a same-name
// overlay entry replaces the base entry but must keep its kind.
func Load(path string, overlays ...string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, err
	}

	for _, op := range overlays {
		odata, err := os.ReadFile(op)
		if err != nil {
			return nil, fmt.Errorf("registry: read overlay %s: %w", op, err)
		}
		ov, err := Parse(odata)
		if err != nil {
			return nil, fmt.Errorf("registry: overlay %s: %w", op, err)
		}
		if err := r.merge(ov); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Get returns the entry with the given name.
func (r *Registry) Get(name string) (*Entry, bool) {
	e, ok := r.byName[name]
	return e, ok
}

// Entries returns all entries in declaration order.
func (r *Registry) Entries() []*Entry {
	return r.entries
}

// Names returns all entry names in declaration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// merge applies an overlay registry. Same-name entries replace the base
// entry in place (keeping base position); changing an entry's kind
// through an overlay is a validation error. New entries are appended in
// overlay order. The merged set is re-validated.
func (r *Registry) merge(overlay *Registry) error {
	var problems []string
	for _, oe := range overlay.entries {
		base, exists := r.byName[oe.Name]
		if !exists {
			r.entries = append(r.entries, oe)
			r.byName[oe.Name] = oe
			continue
		}
		if oe.Kind != base.Kind {
			problems = append(problems, fmt.Sprintf("entry %q: overlay changes kind from %q to %q", oe.Name, base.Kind, oe.Kind))
			continue
		}
		*base = *oe
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return r.validate()
}

// scanTableOrder extracts top-level table names in declaration order and
// reports duplicates. Registry documents use one flat table per entry;
// dotted headers (sub-tables) belong to the preceding entry and are
// skipped. Array-of-table headers are not part of the format.
func scanTableOrder(data []byte) (order []string, problems []string) {
	seen := make(map[string]bool)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "[") || strings.HasPrefix(line, "[[") {
			continue
		}
		end := strings.Index(line, "]")
		if end < 0 {
			continue
		}
		name := strings.TrimSpace(line[1:end])
		if name == "" || strings.Contains(name, ".") {
			continue
		}
		if seen[name] {
			problems = append(problems, fmt.Sprintf("entry %q: duplicate name", name))
			continue
		}
		seen[name] = true
		order = append(order, name)
	}
	return order, problems
}
