package model

import (
	"fmt"
	"sync"
	"time"
)

// ModelPricing is the per-million-token USD cost of one model.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// defaultPricing covers the models the anthropic/openai/google adapters
// default to, plus their near neighbors. Grounded on graph/cost.go's
// defaultModelPricing table; callers needing other models use
// SetCustomPricing.
var defaultPricing = map[string]ModelPricing{
	"gpt-4o":                     {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":                {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4-turbo":                {InputPer1M: 10.00, OutputPer1M: 30.00},
	"gpt-3.5-turbo":               {InputPer1M: 0.50, OutputPer1M: 1.50},
	"claude-sonnet-4-5-20250929":  {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-opus-20240229":     {InputPer1M: 15.00, OutputPer1M: 75.00},
	"claude-3-haiku-20240307":    {InputPer1M: 0.25, OutputPer1M: 1.25},
	"gemini-2.5-flash":           {InputPer1M: 0.075, OutputPer1M: 0.30},
	"gemini-1.5-pro":             {InputPer1M: 1.25, OutputPer1M: 5.00},
}

// LLMCall records one priced invocation.
type LLMCall struct {
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Timestamp    time.Time
	ExecutorID   string
}

// CostTracker accumulates token usage and USD cost across a run's LLM
// calls, attributable per executor and per model. Grounded on
// graph/cost.go's CostTracker, renamed NodeID -> ExecutorID to match this
// runtime's vocabulary.
type CostTracker struct {
	RunID      string
	Currency   string
	Pricing    map[string]ModelPricing

	mu           sync.RWMutex
	calls        []LLMCall
	totalCost    float64
	modelCosts   map[string]float64
	inputTokens  int64
	outputTokens int64
	enabled      bool
}

// NewCostTracker creates a tracker seeded with the default pricing table.
func NewCostTracker(runID, currency string) *CostTracker {
	pricing := make(map[string]ModelPricing, len(defaultPricing))
	for k, v := range defaultPricing {
		pricing[k] = v
	}
	return &CostTracker{
		RunID:      runID,
		Currency:   currency,
		Pricing:    pricing,
		modelCosts: make(map[string]float64),
		enabled:    true,
	}
}

// RecordLLMCall prices and records one call. An unpriced model is recorded
// at zero cost rather than rejected, so tracking never blocks execution.
func (ct *CostTracker) RecordLLMCall(model string, inputTokens, outputTokens int, executorID string) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if !ct.enabled {
		return
	}

	pricing := ct.Pricing[model]
	cost := (float64(inputTokens)/1_000_000.0)*pricing.InputPer1M + (float64(outputTokens)/1_000_000.0)*pricing.OutputPer1M

	ct.calls = append(ct.calls, LLMCall{
		Model: model, InputTokens: inputTokens, OutputTokens: outputTokens,
		CostUSD: cost, Timestamp: time.Now(), ExecutorID: executorID,
	})
	ct.totalCost += cost
	ct.modelCosts[model] += cost
	ct.inputTokens += int64(inputTokens)
	ct.outputTokens += int64(outputTokens)
}

// TotalCost returns the cumulative cost across every recorded call.
func (ct *CostTracker) TotalCost() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.totalCost
}

// CostByModel returns a copy of the per-model cost breakdown.
func (ct *CostTracker) CostByModel() map[string]float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	out := make(map[string]float64, len(ct.modelCosts))
	for k, v := range ct.modelCosts {
		out[k] = v
	}
	return out
}

// TokenUsage returns total input and output tokens across every call.
func (ct *CostTracker) TokenUsage() (input, output int64) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.inputTokens, ct.outputTokens
}

// SetCustomPricing overrides or adds pricing for one model.
func (ct *CostTracker) SetCustomPricing(model string, inputPer1M, outputPer1M float64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.Pricing[model] = ModelPricing{InputPer1M: inputPer1M, OutputPer1M: outputPer1M}
}

func (ct *CostTracker) String() string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return fmt.Sprintf("CostTracker{run=%s calls=%d total=$%.4f%s}", ct.RunID, len(ct.calls), ct.totalCost, ct.Currency)
}
