package verify

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// maxScanFileBytes skips files too large to be a committed credential
// (layer blobs, vendored archives).
const maxScanFileBytes = 1 << 20

// gitleaksScanner detects leaked credentials in build context files
// using the gitleaks default ruleset.
type gitleaksScanner struct {
	detector *detect.Detector
}

// NewSecretScanner creates the default context scanner.
func NewSecretScanner() SecretScanner {
	return &gitleaksScanner{}
}

// ScanDir walks the directory and runs detection over every regular
// file. Findings are reported in walk order.
func (g *gitleaksScanner) ScanDir(dir string) ([]SecretFinding, error) {
	// Lazy-init the detector; loading the default ruleset is not free.
	if g.detector == nil {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return nil, err
		}
		g.detector = d
	}

	var findings []SecretFinding
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() || info.Size() > maxScanFileBytes {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}

		for _, h := range g.detector.DetectBytes(data) {
			findings = append(findings, SecretFinding{
				File:        filepath.ToSlash(rel),
				Line:        h.StartLine + 1, // gitleaks is 0-indexed
				Description: h.Description,
				RuleID:      h.RuleID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	return findings, nil
}
