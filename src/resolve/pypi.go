package resolve

import (
	"context"
	"fmt"
	"strings"
)

// pypiProject matches the relevant slice of PyPI's project JSON.
type pypiProject struct {
	Info struct {
		Version string `json:"version"`
	} `json:"info"`
}

// latestPyPI queries PyPI's project endpoint for the current release.
func (s *Service) latestPyPI(ctx context.Context, pkg string) (string, error) {
	url := fmt.Sprintf("%s/pypi/%s/json", strings.TrimRight(s.eps.PyPI, "/"), pkg)

	var resp pypiProject
	if err := s.http.fetchJSON(ctx, url, &resp, ""); err != nil {
		return "", err
	}
	return resp.Info.Version, nil
}
