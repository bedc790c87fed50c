package costledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPricingFor_ExactAndDatedSuffix(t *testing.T) {
	p, ok := PricingFor("claude-3-opus-20240229")
	assert.True(t, ok)
	assert.Equal(t, pricingTable["claude-3-opus"], p)
}

func TestPricingFor_LongestPrefixWins(t *testing.T) {
	p, ok := PricingFor("gpt-4o-mini")
	assert.True(t, ok)
	assert.Equal(t, pricingTable["gpt-4o-mini"], p)
	assert.NotEqual(t, pricingTable["gpt-4"], p)
}

func TestPricingFor_UnknownModelFallsBackAndReportsFalse(t *testing.T) {
	p, ok := PricingFor("some-unreleased-model-9000")
	assert.False(t, ok)
	assert.Equal(t, pricingTable[fallbackModel], p)
}

func TestPricingFor_CaseInsensitive(t *testing.T) {
	p, ok := PricingFor("Claude-3-Haiku-20240307")
	assert.True(t, ok)
	assert.Equal(t, pricingTable["claude-3-haiku"], p)
}
