package pattern

import (
	"context"
	"fmt"
	"reflect"

	"github.com/dshills/agentflow/flow"
	"github.com/dshills/agentflow/flow/model"
)

// Aggregator combines one accumulated-output list per agent, in declared
// agent order, into the concurrent pattern's final result (spec §4.8).
type Aggregator func(perAgent [][]any) []any

// DefaultAggregator implements spec §4.8's default aggregator: the last
// message of each agent's non-empty output, in declared agent order.
//
// Scenario (spec §8 S2): three agents produce "a", "" and "c"; the default
// aggregator yields ["a", "c"].
func DefaultAggregator(perAgent [][]any) []any {
	out := make([]any, 0, len(perAgent))
	for _, msgs := range perAgent {
		if len(msgs) == 0 {
			continue
		}
		last := msgs[len(msgs)-1]
		if s, ok := last.(string); ok && s == "" {
			continue
		}
		out = append(out, last)
	}
	return out
}

// NewConcurrent builds the concurrent fan-out pattern (spec §4.8): a
// forwarding start executor broadcasts the input to every agent. Each
// agent's output is batched and turn-marked independently — provenance is
// not otherwise preserved in a raw routed message — and a fan-in executor
// waits for every agent to report before calling aggregator. A nil
// aggregator uses DefaultAggregator.
func NewConcurrent(agents []model.Agent, aggregator Aggregator) (*flow.Workflow, error) {
	if len(agents) == 0 {
		return nil, ErrEmptyAgentList
	}
	if aggregator == nil {
		aggregator = DefaultAggregator
	}

	const startID = "concurrent_start"
	const aggregateID = "concurrent_aggregate"

	b := flow.NewBuilder()
	b.AddUnbound(startID, func() *flow.Executor { return newForwardExecutor(startID) })

	hostIDs := make([]string, len(agents))
	batchIDs := make([]string, len(agents))

	for i, ag := range agents {
		hostID := fmt.Sprintf("agent_%d_%s", i, ag.Name())
		terminatorID := hostID + "_term"
		batchID := hostID + "_batch"
		hostIDs[i] = hostID
		batchIDs[i] = batchID

		b.AddUnbound(hostID, func() *flow.Executor { return newAgentHostExecutor(hostID, ag) })
		b.AddUnbound(terminatorID, func() *flow.Executor { return newTerminatorExecutor(terminatorID) })
		b.AddUnbound(batchID, func() *flow.Executor { return NewBatchExecutor(batchID) })

		b.AddEdge(hostID, terminatorID, nil)
		b.AddEdge(terminatorID, batchID, nil)
	}

	b.AddFanOutEdge(startID, hostIDs, nil)
	b.AddFanInEdge(batchIDs, aggregateID)
	b.AddUnbound(aggregateID, func() *flow.Executor { return newAggregateExecutor(aggregateID, aggregator) })

	b.WithStart(startID, reflect.TypeOf((*any)(nil)).Elem())
	b.WithOutputSink(aggregateID)

	return b.Build()
}

func newAggregateExecutor(id string, aggregator Aggregator) *flow.Executor {
	e := flow.NewExecutor(id)
	flow.AddHandlerWithOutput[flow.FanInBundle, []any](e, func(_ context.Context, bundle flow.FanInBundle, wc *flow.WorkflowContext) ([]any, error) {
		perAgent := make([][]any, len(bundle))
		for i, v := range bundle {
			if list, ok := v.([]any); ok {
				perAgent[i] = list
			}
		}
		return aggregator(perAgent), nil
	})
	return e
}
