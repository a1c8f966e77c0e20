package counterdiff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstSampleReportsFirstTime(t *testing.T) {
	c := WithMaxValue(1000)
	u := c.Update(900)
	assert.Equal(t, FirstTime, u.Kind)
	_, ok := u.AsOptionalDelta()
	assert.False(t, ok)
}

func TestPlainDifference(t *testing.T) {
	c := WithMaxValue(1000)
	c.Update(900)
	u := c.Update(950)
	assert.Equal(t, Difference, u.Kind)
	assert.Equal(t, uint64(50), u.Delta)
}

// TestWrapCorrection: max=1000, samples=[900, 950, 50] -> deltas
// {FirstTime, 50, 101}. The wrap counts 950->1000 (50 steps), 1000->0
// (1 step) and 0->50 (50 steps), i.e. (max-last)+new+1.
func TestWrapCorrection(t *testing.T) {
	c := WithMaxValue(1000)

	first := c.Update(900)
	assert.Equal(t, FirstTime, first.Kind)

	second := c.Update(950)
	assert.Equal(t, Difference, second.Kind)
	assert.Equal(t, uint64(50), second.Delta)

	third := c.Update(50)
	assert.Equal(t, CorrectedDifference, third.Kind)
	assert.Equal(t, uint64(101), third.Delta)
}

// TestDeltaNeverNegative is a property-style check (P3): for any
// last > new, update must return a non-negative corrected delta.
func TestDeltaNeverNegative(t *testing.T) {
	cases := []struct{ max, last, new uint64 }{
		{1000, 999, 0},
		{1000, 500, 499},
		{^uint64(0), ^uint64(0), 0},
	}
	for _, tc := range cases {
		c := WithMaxValue(tc.max)
		c.Update(tc.last)
		u := c.Update(tc.new)
		assert.Equal(t, CorrectedDifference, u.Kind)
		want := (tc.max - tc.last) + tc.new + 1
		assert.Equal(t, want, u.Delta)
	}
}

func TestResetForcesFirstTimeAgain(t *testing.T) {
	c := WithMaxValue(1000)
	c.Update(500)
	c.Reset()
	u := c.Update(10)
	assert.Equal(t, FirstTime, u.Kind)
}
