package pattern

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/dshills/agentflow/flow"
	"github.com/dshills/agentflow/flow/model"
)

// ErrEmptyAgentList is returned by NewSequential and NewConcurrent when
// given no agents (spec §4.8: "an empty agents list is an error").
var ErrEmptyAgentList = errors.New("pattern: agents list must not be empty")

// NewSequential builds the sequential pipeline pattern (spec §4.8): agents
// run in declared order, each one's output becoming the next one's input,
// while a trailing batching executor independently collects the original
// input plus every agent's output and emits the full transcript, in order,
// once the chain completes.
//
// Scenario (spec §8 S1): agents UpperCaser, Exclaimer and input "hello"
// yield a completed result of ["hello", "HELLO", "HELLO!"].
func NewSequential(agents []model.Agent) (*flow.Workflow, error) {
	if len(agents) == 0 {
		return nil, ErrEmptyAgentList
	}

	const startID = "sequential_start"
	const batchID = "sequential_batch"
	const terminatorID = "sequential_terminator"

	b := flow.NewBuilder()

	hostIDs := make([]string, len(agents))
	for i, ag := range agents {
		hostIDs[i] = fmt.Sprintf("agent_%d_%s", i, ag.Name())
	}

	b.AddUnbound(startID, func() *flow.Executor { return newForwardExecutor(startID) })
	b.AddUnbound(batchID, func() *flow.Executor { return NewBatchExecutor(batchID) })
	b.AddUnbound(terminatorID, func() *flow.Executor { return newTerminatorExecutor(terminatorID) })

	for i, ag := range agents {
		id := hostIDs[i]
		b.AddUnbound(id, func() *flow.Executor { return newAgentHostExecutor(id, ag) })
	}

	// The start executor broadcasts the seed input to the first agent and
	// directly to the batch, so the final transcript includes the
	// original input alongside every agent's output.
	b.AddFanOutEdge(startID, []string{hostIDs[0], batchID}, nil)

	for i := 0; i < len(hostIDs)-1; i++ {
		b.AddEdge(hostIDs[i], hostIDs[i+1], nil)
		b.AddEdge(hostIDs[i], batchID, nil)
	}
	// The last agent's output has no next agent to chain to; route it
	// through the terminator, which appends a turn token so the batch
	// executor flushes exactly once, after the whole chain has reported.
	b.AddEdge(hostIDs[len(hostIDs)-1], terminatorID, nil)
	b.AddEdge(terminatorID, batchID, nil)

	b.WithStart(startID, reflect.TypeOf((*any)(nil)).Elem())
	b.WithOutputSink(batchID)

	return b.Build()
}
