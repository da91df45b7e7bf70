package plan

import "fmt"

// Status represents a task's position in the build lifecycle.
type Status string

const (
	// StatusPending indicates the task has not been dispatched.
	StatusPending Status = "pending"
	// StatusPlanFailed indicates version resolution failed; the task
	// never reaches the executor.
	StatusPlanFailed Status = "plan-failed"
	// StatusBuilding indicates the backend is building the image.
	StatusBuilding Status = "building"
	// StatusBuildFailed indicates the build errored or timed out.
	StatusBuildFailed Status = "build-failed"
	// StatusSucceeded indicates the image was built and awaits
	// verification.
	StatusSucceeded Status = "succeeded"
	// StatusVerifying indicates verification checks are running.
	StatusVerifying Status = "verifying"
	// StatusVerified indicates every verification check passed.
	StatusVerified Status = "verified"
	// StatusVerificationFailed indicates at least one check failed.
	StatusVerificationFailed Status = "verification-failed"
)

var statuses = map[Status]struct{}{
	StatusPending:            {},
	StatusPlanFailed:         {},
	StatusBuilding:           {},
	StatusBuildFailed:        {},
	StatusSucceeded:          {},
	StatusVerifying:          {},
	StatusVerified:           {},
	StatusVerificationFailed: {},
}

// StatusFromString converts a string to a Status and checks if it is known.
func StatusFromString(s string) (status Status, known bool) {
	status = Status(s)
	_, known = statuses[status]
	return status, known
}

// Terminal reports whether no further transition can leave the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusPlanFailed, StatusBuildFailed, StatusVerified, StatusVerificationFailed:
		return true
	default:
		return false
	}
}

// Task is one planned unit of work: build an image for a registry entry
// at a concrete version, then verify it. Tasks are created in selector
// order and discarded after the run report.
type Task struct {
	// Entry names the registry entry this task builds. The task does
	// not own the entry; it is a lookup key.
	Entry string

	// ResolvedVersion is the concrete version after plan-time
	// resolution. Empty only when Status is plan-failed.
	ResolvedVersion string

	// Status is the task's lifecycle position.
	Status Status

	// PlanErr holds the resolution error when Status is plan-failed.
	PlanErr error
}

// Advance moves the task to the next status, validating the
// transition. Transitions are one-directional; there are no retries
// within a run.
func (t *Task) Advance(to Status) error {
	if !allowedTransition(t.Status, to) {
		return fmt.Errorf("task %s: disallowed transition %s -> %s", t.Entry, t.Status, to)
	}
	t.Status = to
	return nil
}

func allowedTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusBuilding || to == StatusPlanFailed
	case StatusBuilding:
		return to == StatusSucceeded || to == StatusBuildFailed
	case StatusSucceeded:
		return to == StatusVerifying
	case StatusVerifying:
		return to == StatusVerified || to == StatusVerificationFailed
	default:
		return false
	}
}
