package models

import (
	"maps"
	"slices"
	"time"
)

// FlowState is the coarse conversation phase reported by the orchestrator.
type FlowState string

const (
	FlowGreeting     FlowState = "greeting"
	FlowCollecting   FlowState = "collecting_info"
	FlowBooking      FlowState = "booking"
	FlowConfirmed    FlowState = "confirmed"
	FlowTransferring FlowState = "transferring"
	FlowEnded        FlowState = "ended"
	FlowError        FlowState = "error"
)

// ProgressState is the evolving snapshot of what a conversation has collected
// and achieved so far. It is owned and mutated by the single conversation
// driving one test; the goal evaluator only ever reads an immutable snapshot.
//
// Invariants: a goal id added to CompletedGoals is never removed, and
// TurnCount strictly increases.
type ProgressState struct {
	CollectedFields   map[string]any  `json:"collected_fields"`
	CompletedGoals    map[string]bool `json:"completed_goals"`
	ActiveGoals       map[string]bool `json:"active_goals"`
	FailedGoals       map[string]bool `json:"failed_goals"`
	FlowState         FlowState       `json:"flow_state"`
	TurnCount         int             `json:"turn_count"`
	BookingConfirmed  bool            `json:"booking_confirmed"`
	TransferInitiated bool            `json:"transfer_initiated"`
	Issues            []string        `json:"issues,omitempty"`
	StartedAt         time.Time       `json:"started_at"`
	LastActivity      time.Time       `json:"last_activity"`
}

// NewProgressState creates an empty progress state for a conversation that
// starts now.
func NewProgressState(start time.Time) *ProgressState {
	return &ProgressState{
		CollectedFields: make(map[string]any),
		CompletedGoals:  make(map[string]bool),
		ActiveGoals:     make(map[string]bool),
		FailedGoals:     make(map[string]bool),
		FlowState:       FlowGreeting,
		StartedAt:       start,
		LastActivity:    start,
	}
}

// AdvanceTurn increments the turn counter and records activity.
func (p *ProgressState) AdvanceTurn(at time.Time) {
	p.TurnCount++
	p.LastActivity = at
}

// CollectField records one collected data field.
func (p *ProgressState) CollectField(key string, value any) {
	if p.CollectedFields == nil {
		p.CollectedFields = make(map[string]any)
	}
	p.CollectedFields[key] = value
}

// ActivateGoal marks a goal as being worked on, unless it already completed.
func (p *ProgressState) ActivateGoal(id string) {
	if p.CompletedGoals[id] {
		return
	}
	p.ActiveGoals[id] = true
}

// CompleteGoal marks a goal as completed. Completion is monotonic: the id is
// removed from the active and failed sets and can never be un-completed.
func (p *ProgressState) CompleteGoal(id string) {
	p.CompletedGoals[id] = true
	delete(p.ActiveGoals, id)
	delete(p.FailedGoals, id)
}

// FailGoal marks a goal as failed. A goal that already completed stays
// completed.
func (p *ProgressState) FailGoal(id string) {
	if p.CompletedGoals[id] {
		return
	}
	p.FailedGoals[id] = true
	delete(p.ActiveGoals, id)
}

// AddIssue appends a diagnostic note to the accumulated issue list.
func (p *ProgressState) AddIssue(issue string) {
	p.Issues = append(p.Issues, issue)
}

// Snapshot returns a deep copy suitable for handing to the goal evaluator
// while the conversation keeps mutating the original.
func (p *ProgressState) Snapshot() *ProgressState {
	cp := *p
	cp.CollectedFields = maps.Clone(p.CollectedFields)
	cp.CompletedGoals = maps.Clone(p.CompletedGoals)
	cp.ActiveGoals = maps.Clone(p.ActiveGoals)
	cp.FailedGoals = maps.Clone(p.FailedGoals)
	cp.Issues = slices.Clone(p.Issues)
	return &cp
}
