package flow

// TurnToken is the sentinel message type chat-oriented executors use to
// signal "my batch is complete" (spec §4.4). Sending a TurnToken down an
// edge to a batching executor (see pattern.NewBatchExecutor) causes it to
// flush its accumulated messages as one []any payload, which is how the
// sequential and concurrent orchestration patterns synchronize phase
// boundaries. The batching executor does not forward the token itself.
type TurnToken struct{}

// FanInBundle is the payload type delivered to a fan-in edge's target: one
// element per declared source, in declared-source order, holding each
// source's most recent contribution this gating round (spec §4.3).
type FanInBundle []any

// queuedMessage is one FIFO entry in the dispatcher's pending queue.
type queuedMessage struct {
	Target  string
	Payload any
	Source  string
}
