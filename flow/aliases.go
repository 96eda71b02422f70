package flow

import "github.com/dshills/agentflow/flow/event"

// Event, Emitter and the concrete event kinds are re-exported from flow/event
// so that callers wiring a workflow together need only import the flow
// package for the common case; flow/event remains importable directly by
// code that only needs to build custom emitters.
type Event = event.Event
type Emitter = event.Emitter

type (
	WorkflowStarted    = event.WorkflowStarted
	ExecutorInvoked    = event.ExecutorInvoked
	ExecutorCompleted  = event.ExecutorCompleted
	ExecutorFailed     = event.ExecutorFailed
	AgentRunResponse   = event.AgentRunResponse
	AgentRunUpdate     = event.AgentRunUpdate
	WorkflowCompleted  = event.WorkflowCompleted
	WorkflowError      = event.WorkflowError
	CheckpointCreated  = event.CheckpointCreated
	RunEnded           = event.RunEnded
)

var NewBase = event.NewBase
