package resolve

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// latestCustom runs a shell command and takes its trimmed stdout as the
// version. Used for payloads without a queryable publication API.
func (s *Service) latestCustom(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = s.Dir

	out, err := cmd.Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && len(ee.Stderr) > 0 {
			return "", fmt.Errorf("command failed: %s", strings.TrimSpace(string(ee.Stderr)))
		}
		return "", fmt.Errorf("command failed: %w", err)
	}

	version := strings.TrimSpace(string(out))
	if version == "" {
		return "", fmt.Errorf("command produced no output")
	}
	return version, nil
}
