package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPatternCacheEntry_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := &PatternCacheEntry{CreatedAt: now, TTL: time.Hour}

	assert.False(t, entry.Expired(now.Add(30*time.Minute)))
	assert.True(t, entry.Expired(now.Add(2*time.Hour)))
}

func TestPatternCacheEntry_CacheReadable(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	confident := &PatternCacheEntry{
		CreatedAt: now,
		TTL:       time.Hour,
		Result:    GenerationResult{Confidence: 0.85},
	}
	assert.True(t, confident.CacheReadable(now.Add(time.Minute)))

	lowConfidence := &PatternCacheEntry{
		CreatedAt: now,
		TTL:       time.Hour,
		Result:    GenerationResult{Confidence: 0.5},
	}
	assert.False(t, lowConfidence.CacheReadable(now.Add(time.Minute)))

	expired := &PatternCacheEntry{
		CreatedAt: now,
		TTL:       time.Minute,
		Result:    GenerationResult{Confidence: 0.95},
	}
	assert.False(t, expired.CacheReadable(now.Add(time.Hour)))
}
