package sinusoid

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateDischargeRules(t *testing.T) {
	for tick := int64(0); tick <= 2*largeDischargeInterval+200; tick++ {
		sim := &Simulation{Time: tick, HoldDuration: 1000, Exceeded: 1}
		got := sim.evaluate()

		wantLD := tick > 60 && tick%25219 <= 60
		wantSD := !wantLD && tick > 60 && tick%601 <= 60

		require.Equal(t, boolInt(wantLD), got.LargeDischarge, "ld at time %d", tick)
		require.Equal(t, boolInt(wantSD), got.SmallDischarge, "sd at time %d", tick)
		require.Equal(t, 1-got.LargeDischarge, got.Production, "production at time %d", tick)
		if got.Production == 0 {
			require.Equal(t, 0, got.LdThresholdExceeded, "exceeded at time %d", tick)
		}
		require.Equal(t, tick, sim.Time, "evaluate must not advance time")
		require.Equal(t, 999, sim.HoldDuration)
	}
}

func TestEvaluateScenarios(t *testing.T) {
	tests := []struct {
		name string
		time int64
		want PLCData
	}{
		{name: "start", time: 0, want: PLCData{Production: 1, LdThresholdExceeded: 1}},
		{name: "boundary not past duration", time: 60, want: PLCData{Production: 1, LdThresholdExceeded: 1}},
		{name: "just past both windows", time: 61, want: PLCData{Production: 1, LdThresholdExceeded: 1}},
		{name: "small discharge start", time: 601, want: PLCData{SmallDischarge: 1, Production: 1, LdThresholdExceeded: 1}},
		{name: "small discharge end", time: 661, want: PLCData{SmallDischarge: 1, Production: 1, LdThresholdExceeded: 1}},
		{name: "after small discharge", time: 662, want: PLCData{Production: 1, LdThresholdExceeded: 1}},
		{name: "large discharge start", time: 25219, want: PLCData{LargeDischarge: 1}},
		{name: "large discharge middle", time: 25249, want: PLCData{LargeDischarge: 1}},
		{name: "after large discharge", time: 25310, want: PLCData{Production: 1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sim := &Simulation{Time: tc.time, HoldDuration: 10, Exceeded: 1}
			if tc.time == 25310 {
				// exceeded stays cleared after a large discharge until the next draw
				sim.Exceeded = 0
			}
			assert.Equal(t, tc.want, sim.evaluate())
		})
	}
}

func TestProductionInterlockPersists(t *testing.T) {
	sim := &Simulation{Time: 25249, HoldDuration: 100, Exceeded: 1}
	sim.evaluate()
	assert.Equal(t, 0, sim.Exceeded)

	sim.Time = 25310
	got := sim.evaluate()
	assert.Equal(t, 1, got.Production)
	assert.Equal(t, 0, got.LdThresholdExceeded, "flag stays forced until the next draw")
}

func TestRerollOnlyWhenHoldIsZero(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	sim := &Simulation{HoldDuration: 1, Exceeded: 1}
	assert.False(t, sim.rerollIfDue(rng))
	assert.Equal(t, 1, sim.HoldDuration)

	sim.HoldDuration = 0
	require.True(t, sim.rerollIfDue(rng))
	assert.GreaterOrEqual(t, sim.HoldDuration, 300)
	assert.LessOrEqual(t, sim.HoldDuration, 600)
}

func TestRerollRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	seenExceeded := map[int]bool{}
	seenMin, seenMax := 600, 300

	for i := 0; i < 20000; i++ {
		sim := &Simulation{}
		require.True(t, sim.rerollIfDue(rng))
		require.GreaterOrEqual(t, sim.HoldDuration, 300)
		require.LessOrEqual(t, sim.HoldDuration, 600)
		require.Contains(t, []int{0, 1}, sim.Exceeded)
		seenExceeded[sim.Exceeded] = true
		seenMin = min(seenMin, sim.HoldDuration)
		seenMax = max(seenMax, sim.HoldDuration)
	}

	assert.True(t, seenExceeded[0] && seenExceeded[1])
	assert.Equal(t, 300, seenMin, "lower bound is inclusive")
	assert.Equal(t, 600, seenMax, "upper bound is inclusive")
}

func TestPLCDataMap(t *testing.T) {
	m := PLCData{SmallDischarge: 1, Production: 1}.Map()
	assert.Equal(t, map[string]any{
		"SmallDischarge":      1,
		"LargeDischarge":      0,
		"Production":          1,
		"LdThresholdExceeded": 0,
	}, m)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
