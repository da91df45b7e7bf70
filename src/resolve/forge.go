package resolve

import (
	"context"
	"fmt"
	"strings"
)

// forgeRelease matches the releases/latest response of GitHub-style
// forge APIs.
type forgeRelease struct {
	TagName string `json:"tag_name"`
}

// latestRelease queries the forge's latest release for owner/name.
// Forges tag releases as "v1.2.3" more often than not; stripV removes
// the prefix so the version matches what the payload reports.
func (s *Service) latestRelease(ctx context.Context, repo string, stripV bool) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", strings.TrimRight(s.eps.Forge, "/"), repo)

	var resp forgeRelease
	if err := s.http.fetchJSON(ctx, url, &resp, s.eps.ForgeTokenEnv); err != nil {
		return "", err
	}
	if resp.TagName == "" {
		return "", fmt.Errorf("release for %s has no tag name", repo)
	}

	version := resp.TagName
	if stripV {
		version = strings.TrimPrefix(version, "v")
	}
	return version, nil
}
