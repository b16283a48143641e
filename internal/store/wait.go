package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WaitResult reports the outcome of one wait: the qualifying signals keyed
// by type, and whether the deadline elapsed before the full set arrived.
type WaitResult struct {
	Signals  map[string]Signal
	TimedOut bool
}

// Waiter polls a store until every requested signal type carries a signal
// written after its most recent clear.
type Waiter struct {
	store Store
}

// NewWaiter wraps a store with the polling wait primitive.
func NewWaiter(store Store) *Waiter {
	return &Waiter{store: store}
}

// Wait blocks until every type in signalTypes has a qualifying signal, the
// timeout elapses, or ctx is canceled. A signal qualifies only when written
// strictly after the last recorded clear for its key, so stale signals from
// a previous attempt never satisfy a wait. Success is never reported while
// any type is missing, and timeout is never reported before the deadline;
// the deadline itself triggers one final poll so a signal landing exactly
// at the boundary still counts. Store errors other than not-found propagate
// immediately, and a non-positive poll interval is rejected up front.
func (w *Waiter) Wait(ctx context.Context, taskID string, signalTypes []string, timeout, pollInterval time.Duration) (WaitResult, error) {
	if pollInterval <= 0 {
		return WaitResult{}, fmt.Errorf("store: poll interval must be > 0, got %v", pollInterval)
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		result, complete, err := w.collect(taskID, signalTypes)
		if err != nil {
			return WaitResult{}, err
		}
		if complete {
			return result, nil
		}
		select {
		case <-ctx.Done():
			return WaitResult{}, ctx.Err()
		case <-deadline.C:
			result, complete, err := w.collect(taskID, signalTypes)
			if err != nil {
				return WaitResult{}, err
			}
			if complete {
				return result, nil
			}
			result.TimedOut = true
			return result, nil
		case <-ticker.C:
		}
	}
}

// collect gathers the qualifying signals for signalTypes. complete is true
// only when every requested type qualifies.
func (w *Waiter) collect(taskID string, signalTypes []string) (WaitResult, bool, error) {
	result := WaitResult{Signals: make(map[string]Signal, len(signalTypes))}
	complete := true
	for _, signalType := range signalTypes {
		sig, err := w.store.GetSignal(taskID, signalType)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				complete = false
				continue
			}
			return WaitResult{}, false, err
		}
		cleared, err := w.store.LastCleared(taskID, signalType)
		if err != nil {
			return WaitResult{}, false, err
		}
		if !cleared.IsZero() && !sig.WrittenAt.After(cleared) {
			complete = false
			continue
		}
		result.Signals[signalType] = sig
	}
	return result, complete, nil
}
