package retriever

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHotnessZeroWhenNeverUpdated(t *testing.T) {
	now := time.Now().UTC()
	assert.Zero(t, HotnessScore(100, time.Time{}, now, DefaultHalfLifeDays))
}

func TestHotnessMonotoneInActiveCount(t *testing.T) {
	now := time.Now().UTC()
	updated := now.Add(-24 * time.Hour)
	prev := -1.0
	for _, count := range []int64{0, 1, 2, 5, 10, 100, 10000} {
		score := HotnessScore(count, updated, now, DefaultHalfLifeDays)
		assert.Greater(t, score, prev, "active_count=%d", count)
		assert.LessOrEqual(t, score, 1.0)
		prev = score
	}
}

func TestHotnessMonotoneInRecency(t *testing.T) {
	now := time.Now().UTC()
	prev := -1.0
	for _, ageDays := range []float64{30, 14, 7, 3, 1, 0.5, 0} {
		score := HotnessScore(5, now.Add(-time.Duration(ageDays*24)*time.Hour), now, DefaultHalfLifeDays)
		assert.Greater(t, score, prev, "age_days=%v", ageDays)
		prev = score
	}
}

func TestHotnessHalfLife(t *testing.T) {
	now := time.Now().UTC()
	fresh := HotnessScore(5, now, now, 7)
	halfway := HotnessScore(5, now.Add(-7*24*time.Hour), now, 7)
	assert.InDelta(t, fresh/2, halfway, 1e-9, "one half-life should halve the score")
}

func TestBlendScoreClampsAlpha(t *testing.T) {
	assert.Equal(t, 1.0, blendScore(1.0, 0.0, -5))
	assert.Equal(t, 0.5, blendScore(1.0, 0.5, 2))
	assert.InDelta(t, 0.8*1.0+0.2*0.5, blendScore(1.0, 0.5, 0.2), 1e-12)
}
