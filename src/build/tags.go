package build

import (
	"fmt"
	"strings"
)

// Tag derives the image reference for an entry at a resolved version.
// With no repository the tag is local-only ("gopls:0.15.0").
func Tag(repository, name, version string) string {
	tag := fmt.Sprintf("%s:%s", name, sanitizeTag(version))
	if repository == "" {
		return tag
	}
	return strings.TrimSuffix(repository, "/") + "/" + tag
}

// sanitizeTag replaces characters not allowed in Docker tags.
func sanitizeTag(s string) string {
	r := strings.NewReplacer(
		"/", "-",
		" ", "-",
		"+", "-",
	)
	return r.Replace(s)
}
