package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelForScore(t *testing.T) {
	cases := []struct {
		score float64
		want  ConfidenceLevel
	}{
		{0.97, LevelCritical},
		{0.95, LevelCritical},
		{0.90, LevelHigh},
		{0.85, LevelHigh},
		{0.75, LevelMedium},
		{0.70, LevelMedium},
		{0.55, LevelLow},
		{0.50, LevelLow},
		{0.10, LevelVeryLow},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, LevelForScore(c.score), "score %v", c.score)
	}
}

func TestRequiresHumanReview_LowOverall(t *testing.T) {
	assert.True(t, RequiresHumanReview(0.6, nil))
	assert.False(t, RequiresHumanReview(0.9, []ConfidenceMetric{
		{Dimension: DimensionSecurity, Score: 0.9},
		{Dimension: DimensionReliability, Score: 0.9},
	}))
}

func TestRequiresHumanReview_SecurityOrReliabilityFloor(t *testing.T) {
	assert.True(t, RequiresHumanReview(0.9, []ConfidenceMetric{
		{Dimension: DimensionSecurity, Score: 0.4},
	}))
	assert.True(t, RequiresHumanReview(0.9, []ConfidenceMetric{
		{Dimension: DimensionReliability, Score: 0.3},
	}))
}

func TestRequiresHumanReview_TooManyConcerns(t *testing.T) {
	metrics := []ConfidenceMetric{
		{Dimension: DimensionSyntax, Score: 0.9, Concerns: []string{"a", "b", "c"}},
		{Dimension: DimensionStructure, Score: 0.9, Concerns: []string{"d", "e", "f"}},
	}
	assert.True(t, RequiresHumanReview(0.9, metrics))
}
