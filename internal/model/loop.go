package model

import "time"

// LoopStatus is the state machine for a scheduled agent loop.
type LoopStatus string

const (
	LoopStopped LoopStatus = "stopped"
	LoopRunning LoopStatus = "running"
	LoopPaused  LoopStatus = "paused"
	LoopError   LoopStatus = "error"
)

// LoopState is the status snapshot of one agent's scheduled loop. The
// loop manager holds it in memory; it is not persisted.
type LoopState struct {
	AgentID         string
	Status          LoopStatus
	CyclesCompleted int
	StartedAt       time.Time
	LastCycleAt     *time.Time
	LastError       string
	IntervalSeconds int
}
