package delta

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/sofmeright/imagekiln/src/registry"
)

// Selector picks build targets whose inputs changed since a base revision.
// A change under a global trigger path rebuilds everything, because those
// paths feed every image.
type Selector struct {
	RootDir        string
	GlobalTriggers []string
}

// Changed returns the names of entries whose build context changed between
// rev and HEAD, in registry declaration order. Uncommitted modifications
// count as changed. The revision must resolve; a typo here should abort
// the run, not quietly rebuild nothing.
func (s *Selector) Changed(ctx context.Context, reg *registry.Registry, rev string) ([]string, error) {
	repo, err := git.PlainOpen(s.RootDir)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", s.RootDir, err)
	}

	paths, err := s.changedPaths(ctx, repo, rev)
	if err != nil {
		return nil, err
	}

	if trigger := s.globalTrigger(paths); trigger != "" {
		return reg.Names(), nil
	}

	names := make([]string, 0)
	for _, e := range reg.Entries() {
		if contextTouched(e, paths) {
			names = append(names, e.Name)
		}
	}
	return names, nil
}

// changedPaths collects committed changes between rev and HEAD plus any
// staged or unstaged worktree modifications.
func (s *Selector) changedPaths(ctx context.Context, repo *git.Repository, rev string) (map[string]bool, error) {
	baseHash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("resolve revision %q: %w", rev, err)
	}
	baseCommit, err := repo.CommitObject(*baseHash)
	if err != nil {
		return nil, fmt.Errorf("revision %q: %w", rev, err)
	}

	headRef, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("getting HEAD: %w", err)
	}
	headCommit, err := repo.CommitObject(headRef.Hash())
	if err != nil {
		return nil, fmt.Errorf("getting HEAD commit: %w", err)
	}

	changed := make(map[string]bool)

	if baseCommit.Hash != headCommit.Hash {
		baseTree, err := baseCommit.Tree()
		if err != nil {
			return nil, err
		}
		headTree, err := headCommit.Tree()
		if err != nil {
			return nil, err
		}

		changes, err := object.DiffTreeWithOptions(ctx, baseTree, headTree, &object.DiffTreeOptions{})
		if err != nil {
			return nil, fmt.Errorf("diffing trees: %w", err)
		}
		for _, change := range changes {
			if name := changeName(change); name != "" {
				changed[name] = true
			}
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	status, err := wt.Status()
	if err != nil {
		return nil, err
	}
	for path, st := range status {
		if st.Worktree == git.Unmodified && st.Staging == git.Unmodified {
			continue
		}
		changed[path] = true
	}

	return changed, nil
}

// globalTrigger returns the first trigger hit by any changed path.
// Triggers ending in "/" match by prefix, everything else exactly.
func (s *Selector) globalTrigger(paths map[string]bool) string {
	for p := range paths {
		for _, trigger := range s.GlobalTriggers {
			if strings.HasSuffix(trigger, "/") {
				if strings.HasPrefix(p, trigger) {
					return trigger
				}
			} else if p == trigger {
				return trigger
			}
		}
	}
	return ""
}

func contextTouched(e *registry.Entry, paths map[string]bool) bool {
	prefix := e.ContextDir()
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	for p := range paths {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// changeName extracts the file path from a tree change.
func changeName(change *object.Change) string {
	action, err := change.Action()
	if err != nil {
		return ""
	}
	switch action {
	case merkletrie.Insert, merkletrie.Modify:
		return change.To.Name
	case merkletrie.Delete:
		return change.From.Name
	}
	return ""
}
