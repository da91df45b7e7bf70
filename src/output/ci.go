package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sofmeright/imagekiln/src/plan"
	"github.com/sofmeright/imagekiln/src/report"
)

// CI environment detection.

func IsCI() bool {
	return os.Getenv("CI") == "true"
}

func IsGitLabCI() bool {
	return os.Getenv("GITLAB_CI") == "true"
}

// GitLab collapsible section helpers.

func SectionStart(w io.Writer, id, name string) {
	if !IsGitLabCI() {
		return
	}
	ts := time.Now().Unix()
	fmt.Fprintf(w, "\033[0Ksection_start:%d:%s\r\033[0K%s\n", ts, id, name)
}

func SectionEnd(w io.Writer, id string) {
	if !IsGitLabCI() {
		return
	}
	ts := time.Now().Unix()
	fmt.Fprintf(w, "\033[0Ksection_end:%d:%s\r\033[0K\n", ts, id)
}

// JUnit XML types for CI test reporting.

type JUnitTestSuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Name     string           `xml:"name,attr"`
	Tests    int              `xml:"tests,attr"`
	Failures int              `xml:"failures,attr"`
	Time     string           `xml:"time,attr"`
	Suites   []JUnitTestSuite `xml:"testsuite"`
}

type JUnitTestSuite struct {
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Time     string          `xml:"time,attr"`
	Cases    []JUnitTestCase `xml:"testcase"`
}

type JUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
}

type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// WriteRunJUnit writes the run report as JUnit XML so CI systems show
// per-image verification results as tests. Each target becomes a suite;
// each verification check becomes a case. Plan and build failures surface
// as a single failed case, keeping the target visible in the report.
func WriteRunJUnit(dir string, rep report.RunReport) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}

	totalTests := 0
	totalFailures := 0
	var suites []JUnitTestSuite

	for _, tr := range rep.Targets {
		suite := JUnitTestSuite{
			Name: "imagekiln/" + tr.Name,
			Time: targetSeconds(tr),
		}

		switch tr.Status {
		case string(plan.StatusPlanFailed):
			suite.Cases = append(suite.Cases, JUnitTestCase{
				Name:      "plan",
				Classname: "imagekiln." + tr.Name,
				Time:      "0.000",
				Failure: &JUnitFailure{
					Message: "version resolution failed",
					Type:    tr.Status,
					Body:    tr.PlanError,
				},
			})
		case string(plan.StatusBuildFailed):
			body := ""
			if tr.Build != nil {
				body = strings.TrimSpace(tr.Build.Error + "\n\n" + tr.Build.LogExcerpt)
			}
			suite.Cases = append(suite.Cases, JUnitTestCase{
				Name:      "build",
				Classname: "imagekiln." + tr.Name,
				Time:      targetSeconds(tr),
				Failure: &JUnitFailure{
					Message: "image build failed",
					Type:    tr.Status,
					Body:    body,
				},
			})
		default:
			build := JUnitTestCase{
				Name:      "build",
				Classname: "imagekiln." + tr.Name,
				Time:      targetSeconds(tr),
			}
			suite.Cases = append(suite.Cases, build)
			if tr.Verification != nil {
				for _, c := range tr.Verification.Checks {
					tc := JUnitTestCase{
						Name:      c.Name,
						Classname: "imagekiln." + tr.Name,
						Time:      "0.000",
					}
					if !c.Passed {
						tc.Failure = &JUnitFailure{
							Message: c.Detail,
							Type:    c.Name,
							Body:    c.Detail,
						}
					}
					suite.Cases = append(suite.Cases, tc)
				}
			}
		}

		for _, c := range suite.Cases {
			suite.Tests++
			totalTests++
			if c.Failure != nil {
				suite.Failures++
				totalFailures++
			}
		}
		suites = append(suites, suite)
	}

	root := JUnitTestSuites{
		Name:     "imagekiln",
		Tests:    totalTests,
		Failures: totalFailures,
		Time:     fmt.Sprintf("%.3f", rep.FinishedAt.Sub(rep.StartedAt).Seconds()),
		Suites:   suites,
	}

	path := filepath.Join(dir, "imagekiln.xml")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	f.WriteString(xml.Header)
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("encoding junit xml: %w", err)
	}
	f.WriteString("\n")

	return nil
}

func targetSeconds(tr report.TargetReport) string {
	if tr.Build == nil {
		return "0.000"
	}
	return fmt.Sprintf("%.3f", float64(tr.Build.DurationMS)/1000)
}

// CIHeader prints a compact pipeline context block at the start of a CI run.
func CIHeader(w io.Writer) {
	if !IsCI() {
		return
	}
	var parts []string
	if tag := os.Getenv("CI_COMMIT_TAG"); tag != "" {
		parts = append(parts, fmt.Sprintf("tag=%s", tag))
	}
	if sha := os.Getenv("CI_COMMIT_SHORT_SHA"); sha != "" {
		parts = append(parts, fmt.Sprintf("sha=%s", sha))
	} else if sha := os.Getenv("CI_COMMIT_SHA"); sha != "" && len(sha) >= 8 {
		parts = append(parts, fmt.Sprintf("sha=%s", sha[:8]))
	}
	if pipe := os.Getenv("CI_PIPELINE_ID"); pipe != "" {
		parts = append(parts, fmt.Sprintf("pipeline=%s", pipe))
	}
	if runner := os.Getenv("CI_RUNNER_DESCRIPTION"); runner != "" {
		parts = append(parts, fmt.Sprintf("runner=%s", runner))
	}
	if len(parts) > 0 {
		fmt.Fprintf(w, "  ci: %s\n", strings.Join(parts, "  "))
	}
}
