package resolve

import (
	"context"
	"fmt"
	"strings"
)

// npmDistTag matches the npm registry's abbreviated dist-tag response.
type npmDistTag struct {
	Version string `json:"version"`
}

// latestNpm queries the npm registry's latest dist-tag for a package.
func (s *Service) latestNpm(ctx context.Context, pkg string) (string, error) {
	url := fmt.Sprintf("%s/%s/latest", strings.TrimRight(s.eps.Npm, "/"), pkg)

	var resp npmDistTag
	if err := s.http.fetchJSON(ctx, url, &resp, ""); err != nil {
		return "", err
	}
	return resp.Version, nil
}
