package task

import "time"

// Status enumerates coarse task lifecycle phases.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusEscalated Status = "escalated"
	StatusAborted   Status = "aborted"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusEscalated, StatusAborted:
		return true
	}
	return false
}

// State captures the persisted snapshot of one task. The cursor always
// points one past the most recently dispatched slot, so the slot under
// inspection is Cursor-1. Retry and timeout counters are keyed by slot
// index.
type State struct {
	TaskID        string      `json:"task_id"`
	Plan          Plan        `json:"plan"`
	Cursor        int         `json:"cursor"`
	RetryCounts   map[int]int `json:"retry_counts,omitempty"`
	TimeoutCounts map[int]int `json:"timeout_counts,omitempty"`
	Status        Status      `json:"status"`
	// StatusReason provides a human readable explanation for terminal states.
	StatusReason string    `json:"status_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewState seeds a pending state for the plan.
func NewState(taskID string, plan Plan, now time.Time) State {
	return State{
		TaskID:    taskID,
		Plan:      plan,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the state.
func (st State) Clone() State {
	clone := st
	clone.Plan = st.Plan.Clone()
	clone.RetryCounts = cloneIntMap(st.RetryCounts)
	clone.TimeoutCounts = cloneIntMap(st.TimeoutCounts)
	return clone
}

// RetryCount returns the gate retries already spent on a slot.
func (st State) RetryCount(slot int) int {
	return st.RetryCounts[slot]
}

// TimeoutCount returns the wait timeouts already burned on a slot.
func (st State) TimeoutCount(slot int) int {
	return st.TimeoutCounts[slot]
}

// InFlightSlot returns the slot index currently awaiting signals, when one
// exists.
func (st State) InFlightSlot() (int, bool) {
	if st.Status.Terminal() || st.Cursor <= 0 {
		return 0, false
	}
	idx := st.Cursor - 1
	if idx >= len(st.Plan.Steps) {
		return 0, false
	}
	return idx, true
}

// LastDispatched returns the label of the most recently dispatched slot, or
// "" when nothing has run yet.
func (st State) LastDispatched() string {
	if st.Cursor <= 0 || len(st.Plan.Steps) == 0 {
		return ""
	}
	idx := st.Cursor - 1
	if idx >= len(st.Plan.Steps) {
		idx = len(st.Plan.Steps) - 1
	}
	return st.Plan.Steps[idx].Label()
}

func cloneIntMap(values map[int]int) map[int]int {
	if len(values) == 0 {
		return nil
	}
	clone := make(map[int]int, len(values))
	for key, value := range values {
		clone[key] = value
	}
	return clone
}
