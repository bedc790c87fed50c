package domain

import (
	"math"
	"time"
)

// costPrecision is the number of decimal places the accountant rounds all
// USD figures to, per spec.
const costPrecision = 6

// roundCost rounds v to six decimal places using round-half-away-from-zero.
func roundCost(v float64) float64 {
	scale := math.Pow(10, costPrecision)
	if v < 0 {
		return -math.Round(-v*scale) / scale
	}
	return math.Round(v*scale) / scale
}

// LLMCostRecord is one append-only accounting row for a single LLM call.
type LLMCostRecord struct {
	ID               string    `json:"id"`
	Model            string    `json:"model"`
	Provider         string    `json:"provider"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	InputCostUSD     float64   `json:"input_cost_usd"`
	OutputCostUSD    float64   `json:"output_cost_usd"`
	TotalCostUSD     float64   `json:"total_cost_usd"`
	WorkflowID       string    `json:"workflow_id"`
	TenantID         string    `json:"tenant_id"`
	UserID           string    `json:"user_id"`
	TaskID           string    `json:"task_id,omitempty"`
	LatencyMS        int64     `json:"latency_ms"`
	FallbackPricing  bool      `json:"fallback_pricing,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewLLMCostRecord computes input/output/total cost at six-decimal
// precision from per-million-token prices.
func NewLLMCostRecord(model, provider string, promptTokens, completionTokens int, inputPricePerM, outputPricePerM float64) *LLMCostRecord {
	input := roundCost(float64(promptTokens) / 1_000_000 * inputPricePerM)
	output := roundCost(float64(completionTokens) / 1_000_000 * outputPricePerM)
	return &LLMCostRecord{
		Model:            model,
		Provider:         provider,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		InputCostUSD:     input,
		OutputCostUSD:    output,
		TotalCostUSD:     roundCost(input + output),
	}
}
