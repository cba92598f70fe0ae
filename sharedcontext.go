package main

import (
	"fmt"
	"sync"
)

type jobResult int

// Zero value is resultPending, so a name looked up before it is ever
// registered (a depends_on reference to a command later in the document)
// reads as pending rather than needing a separate "unknown" case.
const (
	resultPending jobResult = iota
	resultPassed
	resultFailed
)

// SharedContext is process-wide for a single scheduler run: the name
// registry dependents wait on, and the predicate store if/unless consult.
type SharedContext struct {
	mu         sync.Mutex
	cond       *sync.Cond
	nameResult map[string]jobResult
	predicates map[string]bool
}

func NewSharedContext() *SharedContext {
	sc := &SharedContext{
		nameResult: make(map[string]jobResult),
		predicates: make(map[string]bool),
	}
	sc.cond = sync.NewCond(&sc.mu)
	return sc
}

// Register records name as pending. A non-empty name already registered
// fails the run before the job starts.
func (sc *SharedContext) Register(name string) error {
	if name == "" {
		return nil
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if _, exists := sc.nameResult[name]; exists {
		return fmt.Errorf("name %q is already in use", name)
	}
	sc.nameResult[name] = resultPending
	return nil
}

// WaitFor blocks until every listed name has a terminal result, returning the
// ones that failed (empty means all passed).
func (sc *SharedContext) WaitFor(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for !sc.allTerminalLocked(names) {
		sc.cond.Wait()
	}
	var failed []string
	for _, n := range names {
		if sc.nameResult[n] == resultFailed {
			failed = append(failed, n)
		}
	}
	return failed
}

func (sc *SharedContext) allTerminalLocked(names []string) bool {
	for _, n := range names {
		if sc.nameResult[n] == resultPending {
			return false
		}
	}
	return true
}

// MarkDone atomically sets name's terminal state and wakes every waiter.
func (sc *SharedContext) MarkDone(name string, passed bool) {
	if name == "" {
		return
	}
	sc.mu.Lock()
	if passed {
		sc.nameResult[name] = resultPassed
	} else {
		sc.nameResult[name] = resultFailed
	}
	sc.mu.Unlock()
	sc.cond.Broadcast()
}

// Abandon marks every name in names as failed without ever starting its job,
// registering it first if it was never reached by the scheduling cursor. It
// unblocks any worker already parked in WaitFor on a name that will now
// never be scheduled (e.g. a phase that stopped early on a prior failure).
// Names that already reached a terminal state are left untouched.
func (sc *SharedContext) Abandon(names []string) {
	if len(names) == 0 {
		return
	}
	sc.mu.Lock()
	for _, n := range names {
		if n == "" {
			continue
		}
		if r, ok := sc.nameResult[n]; !ok || r == resultPending {
			sc.nameResult[n] = resultFailed
		}
	}
	sc.mu.Unlock()
	sc.cond.Broadcast()
}

func (sc *SharedContext) SetPredicates(names []string, value bool) {
	if len(names) == 0 {
		return
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for _, n := range names {
		sc.predicates[n] = value
	}
}

// ShouldSkip evaluates if/unless. Supplying both is a configuration error.
func (sc *SharedContext) ShouldSkip(ifPreds, unlessPreds []string) (bool, error) {
	if len(ifPreds) > 0 && len(unlessPreds) > 0 {
		return false, fmt.Errorf("'if' and 'unless' are mutually exclusive")
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if len(ifPreds) > 0 {
		for _, p := range ifPreds {
			if sc.predicates[p] {
				return false, nil
			}
		}
		return true, nil
	}
	if len(unlessPreds) > 0 {
		for _, p := range unlessPreds {
			if sc.predicates[p] {
				return true, nil
			}
		}
	}
	return false, nil
}
