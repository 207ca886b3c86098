package voxline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhaseDiff(t *testing.T) {
	assert.InDelta(t, 0.1, phaseDiff(0.9, 0.8), 1e-12)
	assert.InDelta(t, 0.1, phaseDiff(0.9, 0.0), 1e-12, "distance wraps around the cycle")
	assert.InDelta(t, 0.5, phaseDiff(0.9, 0.4), 1e-12)
	assert.InDelta(t, 0.0, phaseDiff(0.3, 0.3), 1e-12)
	assert.InDelta(t, 0.5, phaseDiff(0.0, 0.5), 1e-12)
}

// phasePair builds two groups whose members sit at phases
// {0, 0.5, 0.9} and {0, 0.4, 0.8} of a 10-step cycle.
func phasePair() []volSpec {
	return []volSpec{
		{group: 0, cycle: 0, cycleLen: 10},
		{group: 0, cycle: 5, cycleLen: 10},
		{group: 0, cycle: 9, cycleLen: 10},
		{group: 1, cycle: 0, cycleLen: 10},
		{group: 1, cycle: 4, cycleLen: 10},
		{group: 1, cycle: 8, cycleLen: 10},
	}
}

func TestNextGroupIndex_PhaseMatched(t *testing.T) {
	tl := newTestTimeline(t, phasePair())

	// From phase 0.9 the best next-group matches are phase 0.8 and phase
	// 0.0 (both circular distance 0.1); the later index wins.
	tl.Seek(2)
	assert.Equal(t, 5, tl.NextGroupIndex())

	tl.Seek(0)
	assert.Equal(t, 3, tl.NextGroupIndex())

	tl.Seek(1) // phase 0.5: candidates at d=0.1 (0.4) and d=0.3 (0.8)
	assert.Equal(t, 4, tl.NextGroupIndex())
}

func TestPrevGroupIndex_PhaseMatched(t *testing.T) {
	tl := newTestTimeline(t, phasePair())

	// From phase 0.8 the closest previous-group phase is 0.9.
	tl.Seek(5)
	assert.Equal(t, 2, tl.PrevGroupIndex())

	tl.Seek(3)
	assert.Equal(t, 0, tl.PrevGroupIndex())

	tl.Seek(4) // phase 0.4: closest in group 0 is 0.5
	assert.Equal(t, 1, tl.PrevGroupIndex())
}

func TestGroupNavigation_AtTimelineEnds(t *testing.T) {
	tl := newTestTimeline(t, phasePair())

	// With no previous group the boundary scan stops at the timeline edge
	// and only the edge volume is considered.
	tl.Seek(1)
	assert.Equal(t, 0, tl.PrevGroupIndex())

	tl.Seek(4)
	assert.Equal(t, 5, tl.NextGroupIndex())
}

func TestFirstLastGroupIndex(t *testing.T) {
	tl := newTestTimeline(t, twoGroups())

	tl.Seek(1)
	assert.Equal(t, 0, tl.FirstGroupIndex())
	assert.Equal(t, 2, tl.LastGroupIndex())

	tl.Seek(4)
	assert.Equal(t, 3, tl.FirstGroupIndex())
	assert.Equal(t, 4, tl.LastGroupIndex())

	tl.Seek(0)
	assert.Equal(t, 0, tl.FirstGroupIndex())
	tl.Seek(2)
	assert.Equal(t, 2, tl.LastGroupIndex())
}
