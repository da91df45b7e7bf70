// Package plan turns a target selector into an ordered task list with
// concrete versions. Selection is fail-fast; per-task resolution
// failures are recorded on the task and never abort siblings.
package plan

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/sofmeright/imagekiln/src/registry"
)

// Resolver yields the newest published version for a registry entry.
type Resolver interface {
	Latest(ctx context.Context, e *registry.Entry) (string, error)
}

// Planner builds task lists from selectors.
type Planner struct {
	Registry *registry.Registry
	Resolver Resolver

	// Workers bounds concurrent resolution queries. Values below 1 use
	// a single worker.
	Workers int
}

// Plan selects entries and resolves their versions. Pinned versions
// pass through untouched; "latest" entries are resolved concurrently.
// A failed resolution marks that task plan-failed with the error
// attached; the plan itself still succeeds. Selection problems return
// a *SelectionError and zero tasks.
func (p *Planner) Plan(ctx context.Context, selector string) ([]*Task, error) {
	entries, err := Select(p.Registry, selector)
	if err != nil {
		return nil, err
	}

	tasks := make([]*Task, len(entries))
	for i, e := range entries {
		tasks[i] = &Task{Entry: e.Name, Status: StatusPending}
		if e.Pinned() {
			tasks[i].ResolvedVersion = e.Version
		}
	}

	workers := p.Workers
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	sem := semaphore.NewWeighted(int64(workers))

	for i, e := range entries {
		if e.Pinned() {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break // canceled, stop dispatching lookups
		}
		wg.Add(1)
		go func(e *registry.Entry, t *Task) {
			defer wg.Done()
			defer sem.Release(1)
			p.resolve(ctx, e, t)
		}(e, tasks[i])
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

// resolve fills in the task's version, or marks it plan-failed.
// Each goroutine owns exactly one task, so no locking is needed.
func (p *Planner) resolve(ctx context.Context, e *registry.Entry, t *Task) {
	version, err := p.Resolver.Latest(ctx, e)
	if err != nil {
		t.PlanErr = err
		_ = t.Advance(StatusPlanFailed) // pending -> plan-failed is always legal
		return
	}
	t.ResolvedVersion = version
}
