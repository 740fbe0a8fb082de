// Package cos provides common low-level types and utilities used across dash.
/*
 * Adapted from github.com/NVIDIA/aistore cmn/cos/err.go.
 */
package cos

import (
	"errors"
	"fmt"
	"sync"
	ratomic "sync/atomic"

	"github.com/dashrun/dash/cmn/debug"
)

type (
	// ErrNotFound is returned when a mount, location, or annotation lookup misses.
	ErrNotFound struct{ what string }

	// ErrDuplicateKey is returned by a shared map's Insert when the key is already present.
	ErrDuplicateKey struct{ key string }

	// ErrMissingKey is returned by a shared map's Remove when the key is absent.
	ErrMissingKey struct{ key string }

	// ErrNoLocation is returned by the scheduler when no location satisfies a hard constraint.
	ErrNoLocation struct{ node string }

	// ErrPoisoned marks a shared map whose mutex-protected invariant has been violated;
	// irrecoverable, aborts the run.
	ErrPoisoned struct{ name string }

	// Errs is a bounded multi-error aggregator: the first few distinct errors
	// observed across concurrent workers, deduplicated by message.
	Errs struct {
		errs []error
		cnt  int64
		mu   sync.Mutex
	}
)

func NewErrNotFound(format string, a ...any) *ErrNotFound {
	return &ErrNotFound{fmt.Sprintf(format, a...)}
}
func (e *ErrNotFound) Error() string { return e.what + " does not exist" }
func IsErrNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}

func NewErrDuplicateKey(key string) *ErrDuplicateKey { return &ErrDuplicateKey{key} }
func (e *ErrDuplicateKey) Error() string             { return "duplicate key: " + e.key }

func NewErrMissingKey(key string) *ErrMissingKey { return &ErrMissingKey{key} }
func (e *ErrMissingKey) Error() string           { return "missing key: " + e.key }

func NewErrNoLocation(node string) *ErrNoLocation { return &ErrNoLocation{node} }
func (e *ErrNoLocation) Error() string {
	return fmt.Sprintf("no location satisfies the hard constraints for node %s", e.node)
}

func NewErrPoisoned(name string) *ErrPoisoned { return &ErrPoisoned{name} }
func (e *ErrPoisoned) Error() string          { return "poisoned shared map: " + e.name }

// Errs

const maxErrs = 4

func (e *Errs) Add(err error) {
	debug.Assert(err != nil)
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
		ratomic.StoreInt64(&e.cnt, int64(len(e.errs)))
	}
}

func (e *Errs) Cnt() int { return int(ratomic.LoadInt64(&e.cnt)) }

// JoinErr returns the count of distinct errors seen and a single joined
// error (nil if none were added).
func (e *Errs) JoinErr() (cnt int, err error) {
	if cnt = e.Cnt(); cnt > 0 {
		e.mu.Lock()
		err = errors.Join(e.errs...)
		e.mu.Unlock()
	}
	return
}
