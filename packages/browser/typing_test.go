package browser

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"commentbot/packages/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPacing() config.Pacing {
	return config.Pacing{
		CharDelayMinMs:  40,
		CharDelayMaxMs:  120,
		PunctPauseMinMs: 200,
		PunctPauseMaxMs: 500,
		TypoRate:        0,
		PreSubmitMinMs:  800,
		PreSubmitMaxMs:  2000,
	}
}

func TestChunks_SplitsAtClauseBoundaries(t *testing.T) {
	chunks := Chunks("Hi Maria, love this! DM us.")
	assert.Equal(t, []string{"Hi Maria,", " love this!", " DM us."}, chunks)
}

func TestChunks_TrailingTextWithoutBoundary(t *testing.T) {
	chunks := Chunks("no punctuation at all")
	assert.Equal(t, []string{"no punctuation at all"}, chunks)

	assert.Nil(t, Chunks(""))
}

func TestBuildTypingPlan_ReproducesText(t *testing.T) {
	text := "Hi Maria, love this! DM us."
	plan := BuildTypingPlan(text, testPacing(), rand.New(rand.NewSource(42)))

	var b strings.Builder
	for _, step := range plan {
		for i := 0; i < step.Backspaces; i++ {
			// A backspace removes the previously planned wrong key.
			typed := b.String()
			b.Reset()
			b.WriteString(typed[:len(typed)-1])
		}
		b.WriteString(step.Keys)
	}
	assert.Equal(t, text, b.String())
}

func TestBuildTypingPlan_DelaysWithinConfiguredRanges(t *testing.T) {
	p := testPacing()
	plan := BuildTypingPlan("Hi Maria, love this!", p, rand.New(rand.NewSource(7)))
	require.NotEmpty(t, plan)

	last := plan[len(plan)-1]
	assert.Empty(t, last.Keys, "plan must end with the pre-submit pause")
	assert.GreaterOrEqual(t, last.Delay, time.Duration(p.PreSubmitMinMs)*time.Millisecond)
	assert.Less(t, last.Delay, time.Duration(p.PreSubmitMaxMs)*time.Millisecond)

	charMin := time.Duration(p.CharDelayMinMs) * time.Millisecond
	charPunctMax := time.Duration(p.CharDelayMaxMs+p.PunctPauseMaxMs) * time.Millisecond
	for _, step := range plan[:len(plan)-1] {
		assert.GreaterOrEqual(t, step.Delay, charMin)
		assert.Less(t, step.Delay, charPunctMax)
	}
}

func TestBuildTypingPlan_PunctuationGetsLongerPause(t *testing.T) {
	p := testPacing()
	rng := rand.New(rand.NewSource(3))
	plan := BuildTypingPlan("ab,", p, rng)
	require.Len(t, plan, 4) // 3 keys + pre-submit pause

	comma := plan[2]
	assert.Equal(t, ",", comma.Keys)
	assert.GreaterOrEqual(t, comma.Delay,
		time.Duration(p.CharDelayMinMs+p.PunctPauseMinMs)*time.Millisecond)
}

func TestBuildTypingPlan_TypoGetsCorrected(t *testing.T) {
	p := testPacing()
	p.TypoRate = 1.0

	// Every rune has a QWERTY neighbor, so a typo fires whenever the chosen
	// index lands on a lowercase key.
	sawCorrection := false
	for seed := int64(0); seed < 20 && !sawCorrection; seed++ {
		plan := BuildTypingPlan("assist", p, rand.New(rand.NewSource(seed)))
		for _, step := range plan {
			if step.Backspaces > 0 {
				sawCorrection = true
				assert.Len(t, step.Keys, 1)
			}
		}
	}
	assert.True(t, sawCorrection, "expected at least one typo-and-correct step")
}

func TestBuildTypingPlan_ZeroTypoRateNeverCorrects(t *testing.T) {
	plan := BuildTypingPlan("assist me, please!", testPacing(), rand.New(rand.NewSource(9)))
	for _, step := range plan {
		assert.Zero(t, step.Backspaces)
	}
}
