package report

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sofmeright/imagekiln/src/build"
	"github.com/sofmeright/imagekiln/src/plan"
	"github.com/sofmeright/imagekiln/src/verify"
)

// fixedRun covers every terminal state with deterministic values.
func fixedRun() (uuid.UUID, time.Time, time.Time, []*plan.Task, []build.Outcome) {
	runID := uuid.MustParse("1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	started := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	finished := started.Add(95 * time.Second)

	tasks := []*plan.Task{
		{Entry: "gopls", ResolvedVersion: "0.15.0", Status: plan.StatusVerified},
		{Entry: "typescript-language-server", ResolvedVersion: "4.3.3", Status: plan.StatusVerificationFailed},
		{Entry: "rust-analyzer", ResolvedVersion: "2026-03-10", Status: plan.StatusBuildFailed},
		{Entry: "zls", Status: plan.StatusPlanFailed, PlanErr: errors.New("resolve zls via release: GET https://api.github.com/repos/zigtools/zls/releases/latest: status 404")},
	}

	outcomes := []build.Outcome{
		{
			Result: build.Result{
				ImageRef:      "gopls:0.15.0",
				Duration:      42300 * time.Millisecond,
				SizeBytes:     29360128,
				ContextDigest: "8f3a1c0b2d4e5f60",
				LogExcerpt:    "#12 exporting to image\n#12 DONE 1.9s\n",
			},
			Verification: &verify.Report{
				Checks: []verify.Check{
					{Name: verify.CheckImageExists, Passed: true, Detail: "4355a46b19d3 (linux/amd64)"},
					{Name: verify.CheckVersionProbe, Passed: true, Detail: "golang.org/x/tools/gopls v0.15.0"},
					{Name: verify.CheckSizeBudget, Passed: true, Detail: "28.0 MB of 50.0 MB budget"},
				},
				Passed: true,
			},
		},
		{
			Result: build.Result{
				ImageRef:      "typescript-language-server:4.3.3",
				Duration:      63150 * time.Millisecond,
				SizeBytes:     8388608,
				ContextDigest: "b2d9e8a7c6f5d4e3",
				LogExcerpt:    "#9 DONE 0.4s\n",
			},
			Verification: &verify.Report{
				Checks: []verify.Check{
					{Name: verify.CheckImageExists, Passed: true, Detail: "9f86d081884c (linux/amd64)"},
					{Name: verify.CheckVersionProbe, Passed: true, Detail: "4.3.3"},
					{Name: verify.CheckSizeBudget, Passed: false, Detail: "8.0 MB exceeds budget 5.0 MB"},
				},
				Passed: false,
			},
		},
		{
			Result: build.Result{
				Duration:      1800 * time.Second,
				Timeout:       true,
				ContextDigest: "5e6f7a8b9c0d1e2f",
				LogExcerpt:    "#6 downloading release archive\nbuild timed out after 30m0s\n",
				Error:         errors.New("build timed out after 30m0s"),
			},
		},
		{},
	}
	return runID, started, finished, tasks, outcomes
}

func TestAggregate_GoldenJSON(t *testing.T) {
	runID, started, finished, tasks, outcomes := fixedRun()
	rep := Aggregate(runID, started, finished, tasks, outcomes)

	var buf bytes.Buffer
	require.NoError(t, rep.WriteJSON(&buf))

	g := goldie.New(t)
	g.Assert(t, "run_report", buf.Bytes())
}

func TestAggregate_IsDeterministic(t *testing.T) {
	render := func() []byte {
		runID, started, finished, tasks, outcomes := fixedRun()
		rep := Aggregate(runID, started, finished, tasks, outcomes)
		var buf bytes.Buffer
		require.NoError(t, rep.WriteJSON(&buf))
		return buf.Bytes()
	}

	assert.Equal(t, render(), render())
}

func TestAggregate_TargetsKeepPlanOrder(t *testing.T) {
	runID, started, finished, tasks, outcomes := fixedRun()
	rep := Aggregate(runID, started, finished, tasks, outcomes)

	require.Len(t, rep.Targets, 4)
	names := make([]string, 0, 4)
	for _, tr := range rep.Targets {
		names = append(names, tr.Name)
	}
	assert.Equal(t, []string{"gopls", "typescript-language-server", "rust-analyzer", "zls"}, names)

	assert.Equal(t, Summary{
		Total:              4,
		Verified:           1,
		VerificationFailed: 1,
		BuildFailed:        1,
		PlanFailed:         1,
	}, rep.Summary)
}

func TestAggregate_PlanFailedTargetHasNoBuild(t *testing.T) {
	runID, started, finished, tasks, outcomes := fixedRun()
	rep := Aggregate(runID, started, finished, tasks, outcomes)

	zls := rep.Targets[3]
	assert.Nil(t, zls.Build)
	assert.Nil(t, zls.Verification)
	assert.Contains(t, zls.PlanError, "status 404")
	assert.Empty(t, zls.ResolvedVersion)
}

func TestAggregate_TimeoutSurfacesInBuildReport(t *testing.T) {
	runID, started, finished, tasks, outcomes := fixedRun()
	rep := Aggregate(runID, started, finished, tasks, outcomes)

	ra := rep.Targets[2]
	require.NotNil(t, ra.Build)
	assert.True(t, ra.Build.Timeout)
	assert.Equal(t, int64(1800000), ra.Build.DurationMS)
	assert.Equal(t, "build timed out after 30m0s", ra.Build.Error)
	assert.Empty(t, ra.Build.ImageRef)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, RunReport{}.ExitCode())
	assert.Equal(t, 0, RunReport{Summary: Summary{Total: 2, Verified: 2}}.ExitCode())
	assert.Equal(t, 1, RunReport{Summary: Summary{Total: 2, Verified: 1, BuildFailed: 1}}.ExitCode())
	assert.Equal(t, 1, RunReport{Summary: Summary{Total: 1, PlanFailed: 1}}.ExitCode())
}

func TestWriteFile(t *testing.T) {
	runID, started, finished, tasks, outcomes := fixedRun()
	rep := Aggregate(runID, started, finished, tasks, outcomes)

	path := t.TempDir() + "/report.json"
	require.NoError(t, rep.WriteFile(path))

	var buf bytes.Buffer
	require.NoError(t, rep.WriteJSON(&buf))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), data)
}
