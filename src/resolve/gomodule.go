package resolve

import (
	"context"
	"fmt"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

// goProxyLatest is the JSON response from {proxy}/{module}/@latest.
type goProxyLatest struct {
	Version string `json:"Version"`
}

// latestGoModule resolves a module's newest stable version through the
// Go module proxy. The @v/list endpoint is preferred so pre-releases
// can be skipped deterministically; @latest is the fallback for modules
// that only publish pseudo-versions.
func (s *Service) latestGoModule(ctx context.Context, module string) (string, error) {
	base := strings.TrimRight(s.eps.GoProxy, "/")
	escaped := escapeModulePath(module)

	list, err := s.http.fetchText(ctx, fmt.Sprintf("%s/%s/@v/list", base, escaped))
	if err != nil {
		return "", err
	}
	if v := highestStable(list); v != "" {
		return v, nil
	}

	var resp goProxyLatest
	if err := s.http.fetchJSON(ctx, fmt.Sprintf("%s/%s/@latest", base, escaped), &resp, ""); err != nil {
		return "", err
	}
	return strings.TrimPrefix(resp.Version, "v"), nil
}

// highestStable picks the highest non-prerelease version from a
// newline-separated @v/list body. Returns "" when nothing parses.
// The leading "v" is dropped so the result matches what the installed
// binary reports.
func highestStable(list string) string {
	var best *masterminds.Version
	for _, line := range strings.Split(list, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		v, err := masterminds.NewVersion(strings.TrimPrefix(line, "v"))
		if err != nil || v.Prerelease() != "" {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}
	if best == nil {
		return ""
	}
	return best.String()
}

// escapeModulePath applies the module proxy's case encoding: every
// uppercase letter becomes "!" plus its lowercase form.
func escapeModulePath(path string) string {
	var b strings.Builder
	for _, r := range path {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('!')
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
