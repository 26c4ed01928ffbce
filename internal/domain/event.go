package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CycleEventKind names a step in a cycle's life.
type CycleEventKind string

const (
	EventCycleFound      CycleEventKind = "cycle_found"
	EventPhaseStarted    CycleEventKind = "phase_started"
	EventPhaseCompleted  CycleEventKind = "phase_completed"
	EventCycleCompleted  CycleEventKind = "cycle_completed"
	EventCycleFailed     CycleEventKind = "cycle_failed"
	EventThresholdRaised CycleEventKind = "threshold_raised"
	EventSettlement      CycleEventKind = "settlement"
)

// SettlementStep is one move of the settlement state machine while a phase
// waits on a transfer or order.
type SettlementStep struct {
	Kind      SettlementKind `json:"kind"`
	Reference string         `json:"reference"`
	From      string         `json:"from,omitempty"`
	To        string         `json:"to"`
	Attempt   int            `json:"attempt,omitempty"`
	RawStatus string         `json:"raw_status,omitempty"`
}

// CycleEvent is published for every phase transition and outcome.
type CycleEvent struct {
	Kind       CycleEventKind   `json:"kind"`
	CycleID    string           `json:"cycle_id,omitempty"`
	Phase      int              `json:"phase,omitempty"`
	PhaseName  string           `json:"phase_name,omitempty"`
	Exchange   ExchangeID       `json:"exchange,omitempty"`
	Currency   Currency         `json:"currency,omitempty"`
	Amount     decimal.Decimal  `json:"amount"`
	Cycle      *Cycle           `json:"cycle,omitempty"`
	Summary    *CycleSummary    `json:"summary,omitempty"`
	Threshold  *decimal.Decimal `json:"threshold,omitempty"`
	Settlement *SettlementStep  `json:"settlement,omitempty"`
	Error      string           `json:"error,omitempty"`
	At         time.Time        `json:"at"`
}

// Terminal reports whether the event closes a cycle.
func (e CycleEvent) Terminal() bool {
	return e.Kind == EventCycleCompleted || e.Kind == EventCycleFailed
}
