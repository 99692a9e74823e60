package classifier

import (
	"testing"

	"commentbot/packages/config"
	"commentbot/packages/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() *config.Policy {
	p := &config.Policy{}
	p.Keywords.Negative = []config.WeightedTerm{
		{Term: "scam", Weight: -10},
		{Term: "giveaway", Weight: -5},
	}
	p.Keywords.Service = []config.WeightedTerm{
		{Term: "casting", Weight: 8},
		{Term: "rush turnaround", Weight: 8},
		{Term: "repair", Weight: 8},
	}
	p.Keywords.ISO = []config.WeightedTerm{
		{Term: "iso", Weight: 6},
		{Term: "looking for", Weight: 6},
		{Term: "bracelet", Weight: 6},
	}
	p.Keywords.General = []config.WeightedTerm{
		{Term: "gold", Weight: 2},
		{Term: "jewelry", Weight: 2},
	}
	p.Brands.Blacklist = []string{"pandora"}
	p.Brands.AllowedModifiers = []string{"inspired", "style"}
	p.Thresholds.Service = 15
	p.Thresholds.ISO = 12
	p.Thresholds.General = 4
	p.Thresholds.SkipFloor = 3
	p.DirectAskPrefixes = []string{"iso", "in search of", "does anyone have"}
	p.Tags = map[string][]string{
		"bracelet": {"bracelet", "bangle"},
		"repair":   {"repair", "fix"},
	}
	return p
}

func TestClassify_NegativeKeywordShortCircuits(t *testing.T) {
	c := New(testPolicy())

	// Plenty of service signal, but the negative hit wins regardless.
	res := c.Classify("Casting repair with rush turnaround, definitely not a scam")

	assert.Equal(t, domain.CategorySkip, res.Category)
	assert.True(t, res.ShouldSkip)
	assert.Equal(t, 10.0, res.Score)
	assert.Contains(t, res.Matched[domain.CategorySkip], "scam")
}

func TestClassify_BlacklistedBrandWithoutModifier(t *testing.T) {
	c := New(testPolicy())

	res := c.Classify("ISO this Pandora bracelet, looking for one in good shape")
	assert.Equal(t, domain.CategorySkip, res.Category)
	assert.True(t, res.ShouldSkip)

	// Any allowed modifier flips the decision back to normal evaluation.
	res = c.Classify("ISO this Pandora style bracelet, looking for one in good shape")
	assert.Equal(t, domain.CategoryISO, res.Category)
	assert.False(t, res.ShouldSkip)
}

func TestClassify_PriorityOrder(t *testing.T) {
	c := New(testPolicy())

	// Exceeds every threshold but does not start with a direct-ask phrase.
	text := "We do casting and repair with rush turnaround, also looking for iso bracelet trades, gold jewelry welcome"
	res := c.Classify(text)
	require.False(t, res.ShouldSkip)
	assert.Equal(t, domain.CategoryService, res.Category)

	// Without the service terms, ISO beats GENERAL.
	text = "We are looking for an iso bracelet trade, gold jewelry welcome"
	res = c.Classify(text)
	require.False(t, res.ShouldSkip)
	assert.Equal(t, domain.CategoryISO, res.Category)
}

func TestClassify_DirectAskPrefixPrefersISO(t *testing.T) {
	c := New(testPolicy())

	// ISO score 12 meets the threshold; general stays under its own.
	res := c.Classify("ISO this bracelet in white gold")

	assert.Equal(t, domain.CategoryISO, res.Category)
	assert.False(t, res.ShouldSkip)
}

func TestClassify_ServiceScenario(t *testing.T) {
	c := New(testPolicy())

	res := c.Classify("Need a casting house for 200 pieces, rush turnaround")

	assert.Equal(t, domain.CategoryService, res.Category)
	assert.False(t, res.ShouldSkip)
	assert.Equal(t, 16.0, res.Score)
	assert.ElementsMatch(t, []string{"casting", "rush turnaround"}, res.Matched[domain.CategoryService])
}

func TestClassify_NoThresholdMet(t *testing.T) {
	c := New(testPolicy())

	res := c.Classify("Just had a lovely lunch downtown")

	assert.Equal(t, domain.CategorySkip, res.Category)
	assert.True(t, res.ShouldSkip)
}

func TestClassify_SkipFloorOverridesCategory(t *testing.T) {
	p := testPolicy()
	p.Thresholds.General = 1
	p.Thresholds.SkipFloor = 10
	c := New(p)

	// GENERAL threshold met, but the global floor still discards it.
	res := c.Classify("Nice gold ring")

	assert.Equal(t, domain.CategoryGeneral, res.Category)
	assert.True(t, res.ShouldSkip)
}

func TestTags_AuxiliaryOnly(t *testing.T) {
	c := New(testPolicy())

	res := c.Classify("Can anyone repair this bracelet clasp? It's gold jewelry")

	assert.Equal(t, []string{"bracelet", "repair"}, res.Tags)
}
