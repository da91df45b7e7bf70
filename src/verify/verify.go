// Package verify runs post-build checks against a finished image:
// daemon-side existence, a version probe inside the container, the
// declared size budget, and a secret scan of the build context. Checks
// are independent; an early failure never blocks later checks.
package verify

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/sofmeright/imagekiln/src/registry"
)

// Check names, in emission order.
const (
	CheckImageExists    = "image-exists"
	CheckVersionProbe   = "version-probe"
	CheckSizeBudget     = "size-budget"
	CheckContextSecrets = "context-secrets"
)

// Check is one verification result.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Report collects the checks for one image. Passed is derived: true
// only when every emitted check passed.
type Report struct {
	Checks []Check `json:"checks"`
	Passed bool    `json:"passed"`
}

// ImageInfo is what the verifier needs to know about a local image.
type ImageInfo struct {
	ID          digest.Digest
	RepoDigests []string
	SizeBytes   int64
	Platform    ocispec.Platform
}

// Inspector resolves an image reference against the local daemon.
type Inspector interface {
	InspectImage(ctx context.Context, ref string) (ImageInfo, error)
}

// Prober runs a command inside a disposable container of the image and
// returns its combined output.
type Prober interface {
	Probe(ctx context.Context, ref string, argv []string) (string, error)
}

// SecretFinding is one leaked credential candidate in a build context.
type SecretFinding struct {
	File        string
	Line        int
	Description string
	RuleID      string
}

// SecretScanner scans a directory tree for leaked credentials.
type SecretScanner interface {
	ScanDir(dir string) ([]SecretFinding, error)
}

// Verifier runs the verification checks for built images.
type Verifier struct {
	Inspector Inspector
	Prober    Prober
	Scanner   SecretScanner

	// ProbeTimeout is the default version-probe limit; entries may
	// override it.
	ProbeTimeout time.Duration

	// ContextRoot is the directory entry context paths are relative to.
	ContextRoot string
}

// Verify runs every check against the image and returns the report.
// The verifier never returns an error: failures are data in the
// checks.
func (v *Verifier) Verify(ctx context.Context, e *registry.Entry, resolvedVersion, imageRef string) Report {
	var rep Report

	info, inspectErr := v.Inspector.InspectImage(ctx, imageRef)
	rep.add(v.checkImageExists(imageRef, info, inspectErr))
	rep.add(v.checkVersionProbe(ctx, e, resolvedVersion, imageRef))
	if e.SizeBudget > 0 {
		rep.add(v.checkSizeBudget(e, info, inspectErr))
	}
	if v.Scanner != nil {
		rep.add(v.checkContextSecrets(e))
	}

	rep.Passed = true
	for _, c := range rep.Checks {
		if !c.Passed {
			rep.Passed = false
			break
		}
	}
	return rep
}

func (r *Report) add(c Check) {
	r.Checks = append(r.Checks, c)
}

// checkImageExists confirms the daemon resolves the reference and
// reports its digest.
func (v *Verifier) checkImageExists(imageRef string, info ImageInfo, inspectErr error) Check {
	if inspectErr != nil {
		return Check{Name: CheckImageExists, Passed: false, Detail: fmt.Sprintf("%s not found: %v", imageRef, inspectErr)}
	}
	detail := shortDigest(info.ID)
	if info.Platform.OS != "" {
		detail = fmt.Sprintf("%s (%s/%s)", detail, info.Platform.OS, info.Platform.Architecture)
	}
	return Check{Name: CheckImageExists, Passed: true, Detail: detail}
}

// checkVersionProbe runs the entry's probe command inside the image
// under its own timeout. Pinned entries additionally require the
// pinned version to appear in the probe output.
func (v *Verifier) checkVersionProbe(ctx context.Context, e *registry.Entry, resolvedVersion, imageRef string) Check {
	timeout := v.ProbeTimeout
	if e.ProbeTimeout > 0 {
		timeout = time.Duration(e.ProbeTimeout) * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := v.Prober.Probe(pctx, imageRef, e.ProbeArgv())
	if err != nil {
		if errors.Is(pctx.Err(), context.DeadlineExceeded) {
			return Check{Name: CheckVersionProbe, Passed: false, Detail: fmt.Sprintf("probe timed out after %s", timeout)}
		}
		return Check{Name: CheckVersionProbe, Passed: false, Detail: fmt.Sprintf("probe failed: %v", err)}
	}

	line := firstLine(out)
	if e.Pinned() && resolvedVersion != "" && !strings.Contains(out, resolvedVersion) {
		return Check{Name: CheckVersionProbe, Passed: false, Detail: fmt.Sprintf("output %q does not mention pinned version %s", line, resolvedVersion)}
	}
	return Check{Name: CheckVersionProbe, Passed: true, Detail: line}
}

// checkSizeBudget compares the inspected size against the entry's
// budget. Without a usable size the check fails rather than passing
// silently.
func (v *Verifier) checkSizeBudget(e *registry.Entry, info ImageInfo, inspectErr error) Check {
	if inspectErr != nil {
		return Check{Name: CheckSizeBudget, Passed: false, Detail: fmt.Sprintf("size unknown: %v", inspectErr)}
	}
	if info.SizeBytes > e.SizeBudget {
		return Check{
			Name:   CheckSizeBudget,
			Passed: false,
			Detail: fmt.Sprintf("%s exceeds budget %s", formatBytes(info.SizeBytes), formatBytes(e.SizeBudget)),
		}
	}
	return Check{
		Name:   CheckSizeBudget,
		Passed: true,
		Detail: fmt.Sprintf("%s of %s budget", formatBytes(info.SizeBytes), formatBytes(e.SizeBudget)),
	}
}

// checkContextSecrets scans the entry's build context for credentials
// that would be baked into a published image.
func (v *Verifier) checkContextSecrets(e *registry.Entry) Check {
	dir := e.ContextDir()
	if v.ContextRoot != "" {
		dir = filepath.Join(v.ContextRoot, dir)
	}

	findings, err := v.Scanner.ScanDir(dir)
	if err != nil {
		return Check{Name: CheckContextSecrets, Passed: false, Detail: fmt.Sprintf("scan failed: %v", err)}
	}
	if len(findings) > 0 {
		f := findings[0]
		detail := fmt.Sprintf("%s:%d %s (%s)", f.File, f.Line, f.Description, f.RuleID)
		if extra := len(findings) - 1; extra > 0 {
			detail = fmt.Sprintf("%s, +%d more", detail, extra)
		}
		return Check{Name: CheckContextSecrets, Passed: false, Detail: detail}
	}
	return Check{Name: CheckContextSecrets, Passed: true, Detail: "no findings"}
}

// firstLine returns the first non-empty line of command output.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}

// shortDigest returns the first 12 hex characters of a sha256:... digest.
func shortDigest(d digest.Digest) string {
	s := strings.TrimPrefix(d.String(), "sha256:")
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

// formatBytes formats bytes for human display: 75890432 → "72.4 MB".
func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
