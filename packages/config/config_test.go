package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingRequiredVars(t *testing.T) {
	t.Setenv("FEED_URL", "")
	t.Setenv("POLICY_FILE", "")
	os.Unsetenv("FEED_URL")
	os.Unsetenv("POLICY_FILE")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FEED_URL")
	assert.Contains(t, err.Error(), "POLICY_FILE")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FEED_URL", "https://www.example.com/groups/jewelers")
	t.Setenv("POLICY_FILE", "policy.yaml")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.ScanInterval)
	assert.Equal(t, 64, cfg.QueueSize)
	assert.Equal(t, 15, cfg.MaxPostsPerDay)
	assert.Equal(t, 4*time.Minute, cfg.MinInterPostDelay)
	assert.Equal(t, 12*time.Minute, cfg.MaxInterPostDelay)
	assert.True(t, cfg.Headless)
	assert.False(t, cfg.AIGeneration)
	assert.Equal(t, "commentbot:seen_posts", cfg.SeenSetKey)
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("FEED_URL", "https://www.example.com/groups/jewelers")
	t.Setenv("POLICY_FILE", "policy.yaml")
	t.Setenv("SCAN_INTERVAL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.ScanInterval)
}

func TestLoad_AIGenerationNeedsKey(t *testing.T) {
	t.Setenv("FEED_URL", "https://www.example.com/groups/jewelers")
	t.Setenv("POLICY_FILE", "policy.yaml")
	t.Setenv("AI_GENERATION", "true")
	os.Unsetenv("GEMINI_API_KEY")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.AIGeneration)

	t.Setenv("GEMINI_API_KEY", "key")
	cfg, err = Load()
	require.NoError(t, err)
	assert.True(t, cfg.AIGeneration)
}

const validPolicyYAML = `
language: eng
keywords:
  negative:
    - {term: scam, weight: -10}
  service:
    - {term: casting, weight: 8}
  iso:
    - {term: looking for, weight: 6}
  general:
    - {term: gold, weight: 2}
brands:
  blacklist: [pandora]
  allowed_modifiers: [inspired, style]
thresholds:
  service: 15
  iso: 12
  general: 4
  skip_floor: 3
direct_ask_prefixes: [iso, in search of]
tags:
  repair: [repair, fix]
templates:
  service:
    - "Hi {name}, we can help with that!"
variations:
  - {find: "Hi", replace: "Hey"}
pacing:
  char_delay_min_ms: 40
  char_delay_max_ms: 120
  punct_pause_min_ms: 200
  punct_pause_max_ms: 500
  typo_rate: 0.05
  pre_submit_min_ms: 800
  pre_submit_max_ms: 2000
locators:
  comment_box:
    - {by: css, value: "div[aria-label='Write a comment']"}
    - {by: xpath, value: "//div[@role='textbox']"}
feed:
  post: .feed-post
  text: .post-text
  author: .post-author
  link: a.post-link
  image: img.post-image
`

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPolicy_Valid(t *testing.T) {
	p, err := LoadPolicy(writePolicy(t, validPolicyYAML))
	require.NoError(t, err)

	assert.Equal(t, "eng", p.Language)
	assert.Equal(t, 12.0, p.Thresholds.ISO)
	assert.Equal(t, []string{"pandora"}, p.Brands.Blacklist)
	require.Len(t, p.Locators["comment_box"], 2)
	assert.Equal(t, "xpath", p.Locators["comment_box"][1].By)
	assert.Equal(t, ".feed-post", p.Feed.Post)
	assert.Equal(t, 0.05, p.Pacing.TypoRate)
	assert.Equal(t, []string{"Hi {name}, we can help with that!"}, p.Templates["service"])
}

func TestLoadPolicy_MissingFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadPolicy_MalformedYAML(t *testing.T) {
	_, err := LoadPolicy(writePolicy(t, "thresholds: [not: a: map"))
	assert.Error(t, err)
}

func TestLoadPolicy_ValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{
			name: "zero thresholds",
			yaml: `
keywords:
  general:
    - {term: gold, weight: 2}
thresholds: {service: 0, iso: 12, general: 4, skip_floor: 3}
`,
		},
		{
			name: "no keyword sets",
			yaml: `
thresholds: {service: 15, iso: 12, general: 4, skip_floor: 3}
`,
		},
		{
			name: "inverted pacing range",
			yaml: `
keywords:
  general:
    - {term: gold, weight: 2}
thresholds: {service: 15, iso: 12, general: 4, skip_floor: 3}
pacing: {char_delay_min_ms: 120, char_delay_max_ms: 40}
`,
		},
		{
			name: "typo rate over one",
			yaml: `
keywords:
  general:
    - {term: gold, weight: 2}
thresholds: {service: 15, iso: 12, general: 4, skip_floor: 3}
pacing: {typo_rate: 1.5}
`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadPolicy(writePolicy(t, tc.yaml))
			assert.Error(t, err)
		})
	}
}
