package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy holds everything an operator retunes without a redeploy: keyword
// tables, weights, thresholds, template bodies, locator chains and pacing
// ranges. Loaded from a single YAML file so there is exactly one canonical
// table of weights and thresholds.
type Policy struct {
	Language string `yaml:"language"`

	Keywords struct {
		Negative []WeightedTerm `yaml:"negative"`
		Service  []WeightedTerm `yaml:"service"`
		ISO      []WeightedTerm `yaml:"iso"`
		General  []WeightedTerm `yaml:"general"`
	} `yaml:"keywords"`

	Brands struct {
		Blacklist        []string `yaml:"blacklist"`
		AllowedModifiers []string `yaml:"allowed_modifiers"`
	} `yaml:"brands"`

	Thresholds struct {
		Service   float64 `yaml:"service"`
		ISO       float64 `yaml:"iso"`
		General   float64 `yaml:"general"`
		SkipFloor float64 `yaml:"skip_floor"`
	} `yaml:"thresholds"`

	DirectAskPrefixes []string `yaml:"direct_ask_prefixes"`

	// Tags maps a closed tag set to the domain terms that imply each tag.
	Tags map[string][]string `yaml:"tags"`

	// Templates seed the store on first start; rotation state lives in the store.
	Templates map[string][]string `yaml:"templates"`

	Variations []Variation `yaml:"variations"`

	Pacing Pacing `yaml:"pacing"`

	// Locators holds the ordered fallback chain per logical UI element, so
	// selector drift is patched in data rather than code.
	Locators map[string][]Locator `yaml:"locators"`

	Feed FeedSelectors `yaml:"feed"`
}

type WeightedTerm struct {
	Term   string  `yaml:"term"`
	Weight float64 `yaml:"weight"`
}

type Variation struct {
	Find    string `yaml:"find"`
	Replace string `yaml:"replace"`
}

type Pacing struct {
	CharDelayMinMs  int     `yaml:"char_delay_min_ms"`
	CharDelayMaxMs  int     `yaml:"char_delay_max_ms"`
	PunctPauseMinMs int     `yaml:"punct_pause_min_ms"`
	PunctPauseMaxMs int     `yaml:"punct_pause_max_ms"`
	TypoRate        float64 `yaml:"typo_rate"`
	PreSubmitMinMs  int     `yaml:"pre_submit_min_ms"`
	PreSubmitMaxMs  int     `yaml:"pre_submit_max_ms"`
}

type Locator struct {
	By    string `yaml:"by"` // "css" or "xpath"
	Value string `yaml:"value"`
}

type FeedSelectors struct {
	Post   string `yaml:"post"`
	Text   string `yaml:"text"`
	Author string `yaml:"author"`
	Link   string `yaml:"link"`
	Image  string `yaml:"image"`
}

func LoadPolicy(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("invalid policy file %s: %w", path, err)
	}
	return &p, nil
}

func (p *Policy) validate() error {
	if p.Thresholds.Service <= 0 || p.Thresholds.ISO <= 0 || p.Thresholds.General <= 0 {
		return fmt.Errorf("all category thresholds must be positive")
	}
	if p.Thresholds.SkipFloor < 0 {
		return fmt.Errorf("skip_floor must not be negative")
	}
	if len(p.Keywords.Service) == 0 && len(p.Keywords.ISO) == 0 && len(p.Keywords.General) == 0 {
		return fmt.Errorf("at least one category keyword set is required")
	}
	if p.Pacing.CharDelayMaxMs < p.Pacing.CharDelayMinMs {
		return fmt.Errorf("pacing: char_delay_max_ms below char_delay_min_ms")
	}
	if p.Pacing.TypoRate < 0 || p.Pacing.TypoRate > 1 {
		return fmt.Errorf("pacing: typo_rate must be within [0,1]")
	}
	return nil
}
