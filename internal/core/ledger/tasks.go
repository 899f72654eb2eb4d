package ledger

import "github.com/vietddude/minter/internal/core/domain"

// TryAcquireTask takes the token of a task kind. It returns false immediately if
// the token is already held.
func (s *State) TryAcquireTask(kind domain.TaskKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[kind] {
		return false
	}
	s.tasks[kind] = true
	return true
}

// ReleaseTask returns the token of a task kind. Releasing a free token is a no-op.
func (s *State) ReleaseTask(kind domain.TaskKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, kind)
}

// AcquireTask is TryAcquireTask returning the matching release function:
//
//	release, ok := state.AcquireTask(domain.TaskScrape)
//	if !ok {
//	    return nil
//	}
//	defer release()
func (s *State) AcquireTask(kind domain.TaskKind) (release func(), ok bool) {
	if !s.TryAcquireTask(kind) {
		return func() {}, false
	}
	return func() { s.ReleaseTask(kind) }, true
}
