package flow

import "time"

// ExecutorPolicy configures per-executor timeout and retry-classification
// behavior. Grounded on graph/timeout.go (timeout precedence) and the
// classification half of graph/policy.go's RetryPolicy; the automatic
// backoff/retry-loop half of that file is deliberately not carried forward
// here — spec §7 states the dispatcher never retries a handler on its own,
// so Retryable is exposed only for a handler or orchestration pattern to
// consult when deciding whether to route to a retry edge itself.
type ExecutorPolicy struct {
	// Timeout bounds a single handler invocation. Zero means no per-handler
	// timeout is enforced beyond the run's own context deadline, if any.
	Timeout time.Duration

	// Retryable classifies an error returned by this executor's handler as
	// worth retrying, from the caller's perspective. Nil means "never",
	// i.e. callers should treat every error as terminal for this executor.
	Retryable func(error) bool
}

// effectiveTimeout resolves the timeout to apply to one handler invocation,
// preferring the executor's own policy over the dispatcher's default, and
// treating zero as "no override" at each level (spec §7: "a per-executor
// timeout, when set, takes precedence over the dispatcher default").
func effectiveTimeout(executorPolicy, defaultPolicy ExecutorPolicy) time.Duration {
	if executorPolicy.Timeout > 0 {
		return executorPolicy.Timeout
	}
	return defaultPolicy.Timeout
}
