// Package pattern implements the three pre-built orchestration patterns
// spec §4.8 names: sequential pipeline, concurrent fan-out with
// aggregation, and tool-call-driven handoff. Each builds an ordinary
// flow.Workflow out of flow.Executor/flow.Edge primitives — there is no
// separate runtime here, only graph-construction helpers.
package pattern

import (
	"context"

	"github.com/dshills/agentflow/flow"
)

const batchStateKey = "items"

// NewBatchExecutor builds the turn-token batching accumulator the
// sequential and concurrent patterns use to synchronize phase boundaries
// (spec §4.4, §9 "Batching with turn tokens"). It appends every
// non-TurnToken message it receives to private state and, on receipt of a
// flow.TurnToken, publishes the accumulated list as its output and clears
// the accumulator for a fresh round. The accumulator lives in private
// scope, so it checkpoints for free via the dispatcher's own scope
// snapshot.
func NewBatchExecutor(id string) *flow.Executor {
	e := flow.NewExecutor(id)

	flow.AddHandlerWithOutput[any, []any](e, func(_ context.Context, msg any, wc *flow.WorkflowContext) ([]any, error) {
		items := append(readItems(wc), msg)
		wc.QueueStateUpdate(batchStateKey, items)
		return nil, nil
	})

	flow.AddHandlerWithOutput[flow.TurnToken, []any](e, func(_ context.Context, _ flow.TurnToken, wc *flow.WorkflowContext) ([]any, error) {
		items := readItems(wc)
		wc.QueueStateUpdate(batchStateKey, []any{})
		// The return value only takes effect if this executor is the
		// workflow's designated output sink (e.g. the sequential
		// pattern's trailing batch); SendMessage is what actually routes
		// the flushed list onward to a fan-in aggregator, as the
		// concurrent pattern's per-agent batches need.
		wc.SendMessage(items)
		return items, nil
	})

	return e
}

func readItems(wc *flow.WorkflowContext) []any {
	v, ok := wc.ReadState(batchStateKey)
	if !ok {
		return nil
	}
	items, _ := v.([]any)
	out := make([]any, len(items))
	copy(out, items)
	return out
}
