package report

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/sofmeright/imagekiln/src/build"
	"github.com/sofmeright/imagekiln/src/plan"
	"github.com/sofmeright/imagekiln/src/verify"
)

// RunReport is the machine-readable record of one orchestrator run.
// Targets appear in plan order, so two runs over the same plan produce
// byte-identical reports apart from identity and timing fields.
type RunReport struct {
	RunID      uuid.UUID      `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Targets    []TargetReport `json:"targets"`
	Summary    Summary        `json:"summary"`
}

// TargetReport records one target's passage through the pipeline.
type TargetReport struct {
	Name            string         `json:"name"`
	Status          string         `json:"status"`
	ResolvedVersion string         `json:"resolved_version,omitempty"`
	PlanError       string         `json:"plan_error,omitempty"`
	Build           *BuildReport   `json:"build,omitempty"`
	Verification    *verify.Report `json:"verification,omitempty"`
}

// BuildReport mirrors build.Result in a serialization-friendly shape.
type BuildReport struct {
	ImageRef      string `json:"image_ref,omitempty"`
	DurationMS    int64  `json:"duration_ms"`
	SizeBytes     int64  `json:"size_bytes,omitempty"`
	Timeout       bool   `json:"timeout,omitempty"`
	ContextDigest string `json:"context_digest,omitempty"`
	LogExcerpt    string `json:"log_excerpt,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Summary counts targets by terminal state.
type Summary struct {
	Total              int `json:"total"`
	Verified           int `json:"verified"`
	VerificationFailed int `json:"verification_failed"`
	BuildFailed        int `json:"build_failed"`
	PlanFailed         int `json:"plan_failed"`
	Incomplete         int `json:"incomplete,omitempty"` // interrupted before a verdict
}

// NewRunID mints the identity for a run.
func NewRunID() uuid.UUID { return uuid.New() }

// Aggregate folds tasks and their outcomes into a report. tasks and
// outcomes are the parallel slices produced by the planner and executor.
func Aggregate(runID uuid.UUID, started, finished time.Time, tasks []*plan.Task, outcomes []build.Outcome) RunReport {
	rep := RunReport{
		RunID:      runID,
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
		Targets:    make([]TargetReport, 0, len(tasks)),
	}

	for i, t := range tasks {
		tr := TargetReport{
			Name:            t.Entry,
			Status:          string(t.Status),
			ResolvedVersion: t.ResolvedVersion,
		}
		if t.PlanErr != nil {
			tr.PlanError = t.PlanErr.Error()
		}
		if i < len(outcomes) && dispatched(t.Status) {
			b := buildReport(outcomes[i].Result)
			tr.Build = &b
			tr.Verification = outcomes[i].Verification
		}
		rep.Targets = append(rep.Targets, tr)
		rep.Summary.count(t.Status)
	}
	return rep
}

// dispatched reports whether a task reached the executor.
func dispatched(s plan.Status) bool {
	switch s {
	case plan.StatusPending, plan.StatusPlanFailed:
		return false
	}
	return true
}

func buildReport(r build.Result) BuildReport {
	br := BuildReport{
		ImageRef:      r.ImageRef,
		DurationMS:    r.Duration.Milliseconds(),
		SizeBytes:     r.SizeBytes,
		Timeout:       r.Timeout,
		ContextDigest: r.ContextDigest,
		LogExcerpt:    r.LogExcerpt,
	}
	if r.Error != nil {
		br.Error = r.Error.Error()
	}
	return br
}

func (s *Summary) count(st plan.Status) {
	s.Total++
	switch st {
	case plan.StatusVerified:
		s.Verified++
	case plan.StatusVerificationFailed:
		s.VerificationFailed++
	case plan.StatusBuildFailed:
		s.BuildFailed++
	case plan.StatusPlanFailed:
		s.PlanFailed++
	default:
		s.Incomplete++
	}
}

// ExitCode maps the run outcome to a process exit status. Zero only when
// every target reached verified; an empty run is a clean run.
func (r RunReport) ExitCode() int {
	if r.Summary.Total == r.Summary.Verified {
		return 0
	}
	return 1
}

// WriteJSON renders the report as indented JSON.
func (r RunReport) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// WriteFile writes the JSON report to path.
func (r RunReport) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
