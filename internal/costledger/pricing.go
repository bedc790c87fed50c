package costledger

import "strings"

// ModelPricing is the USD cost per one million input/output tokens for one
// model.
type ModelPricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// fallbackModel is used whenever a model has no matching pricing entry, so
// that a cost is still always recorded rather than dropped.
const fallbackModel = "gpt-3.5-turbo"

// pricingTable mirrors a snapshot of provider list pricing, expressed in
// USD per one million tokens.
var pricingTable = map[string]ModelPricing{
	"gpt-4-turbo":        {InputPerMillion: 10.00, OutputPerMillion: 30.00},
	"gpt-4-32k":          {InputPerMillion: 60.00, OutputPerMillion: 120.00},
	"gpt-4o-mini":        {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4o":             {InputPerMillion: 5.00, OutputPerMillion: 15.00},
	"gpt-4":              {InputPerMillion: 30.00, OutputPerMillion: 60.00},
	"gpt-3.5-turbo-16k":  {InputPerMillion: 3.00, OutputPerMillion: 4.00},
	"gpt-3.5-turbo":      {InputPerMillion: 0.50, OutputPerMillion: 1.50},
	"gpt-35-turbo":       {InputPerMillion: 0.50, OutputPerMillion: 1.50},
	"claude-3-opus":      {InputPerMillion: 15.00, OutputPerMillion: 75.00},
	"claude-3-sonnet":    {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-haiku":     {InputPerMillion: 0.25, OutputPerMillion: 1.25},
	"claude-2.1":         {InputPerMillion: 8.00, OutputPerMillion: 24.00},
	"claude-2":           {InputPerMillion: 8.00, OutputPerMillion: 24.00},
	"llama3-70b-8192":    {InputPerMillion: 0.59, OutputPerMillion: 0.79},
	"llama3-8b-8192":     {InputPerMillion: 0.05, OutputPerMillion: 0.10},
	"mixtral-8x7b-32768": {InputPerMillion: 0.27, OutputPerMillion: 0.27},
	"gemma-7b-it":        {InputPerMillion: 0.10, OutputPerMillion: 0.10},
}

// sortedModelKeys are tried longest-first so that, e.g., "gpt-4o-mini" is
// matched before the shorter "gpt-4" substring.
var sortedModelKeys = sortKeysByLengthDesc(pricingTable)

func sortKeysByLengthDesc(table map[string]ModelPricing) []string {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && len(keys[j]) > len(keys[j-1]); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

// PricingFor resolves the pricing entry for a model name. Matching is by
// substring against the lower-cased model name, same as provider/date
// suffixed identifiers (e.g. "claude-3-opus-20240229" matches
// "claude-3-opus"). If nothing matches, it returns the fallback pricing and
// false, so that a cost is never simply skipped for an unrecognized model.
func PricingFor(model string) (ModelPricing, bool) {
	lower := strings.ToLower(model)
	for _, key := range sortedModelKeys {
		if strings.Contains(lower, key) {
			return pricingTable[key], true
		}
	}
	return pricingTable[fallbackModel], false
}
