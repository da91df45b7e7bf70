package plan

import (
	"fmt"
	"path"
	"strings"

	"github.com/sofmeright/imagekiln/src/registry"
)

// SelectorAll requests every registry entry in declaration order.
const SelectorAll = "all"

// SelectionError reports an unusable selector. Selection is all or
// nothing: a bad selector yields zero tasks, never a partial plan.
type SelectionError struct {
	Selector string
	Reason   string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("selector %q: %s", e.Selector, e.Reason)
}

// Select resolves a target selector against the registry. Supported
// forms: "all", an explicit comma-separated name list, or a glob
// pattern. Explicit lists preserve request order; "all" and patterns
// follow registry declaration order.
func Select(reg *registry.Registry, selector string) ([]*registry.Entry, error) {
	selector = strings.TrimSpace(selector)

	switch {
	case selector == "" || selector == SelectorAll:
		return reg.Entries(), nil
	case strings.ContainsAny(selector, "*?["):
		return selectPattern(reg, selector)
	default:
		return selectNames(reg, selector)
	}
}

// selectNames resolves an explicit comma-separated name list. Unknown
// and duplicate names fail the whole selection.
func selectNames(reg *registry.Registry, selector string) ([]*registry.Entry, error) {
	seen := make(map[string]bool)
	var entries []*registry.Entry

	for _, name := range strings.Split(selector, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, &SelectionError{Selector: selector, Reason: "empty name in list"}
		}
		if seen[name] {
			return nil, &SelectionError{Selector: selector, Reason: fmt.Sprintf("duplicate name %q", name)}
		}
		seen[name] = true

		e, ok := reg.Get(name)
		if !ok {
			return nil, &SelectionError{Selector: selector, Reason: fmt.Sprintf("unknown target %q", name)}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// selectPattern resolves a glob pattern against entry names in
// declaration order. Zero matches fail the selection.
func selectPattern(reg *registry.Registry, pattern string) ([]*registry.Entry, error) {
	var entries []*registry.Entry
	for _, e := range reg.Entries() {
		ok, err := path.Match(pattern, e.Name)
		if err != nil {
			return nil, &SelectionError{Selector: pattern, Reason: fmt.Sprintf("invalid pattern: %v", err)}
		}
		if ok {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		return nil, &SelectionError{Selector: pattern, Reason: "no targets match"}
	}
	return entries, nil
}
