// Package classifier scores raw post text against the policy's weighted
// keyword tables and decides a category or a skip.
package classifier

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"commentbot/packages/config"
	"commentbot/packages/domain"

	"github.com/abadojack/whatlanggo"
)

type Classifier struct {
	policy *config.Policy
}

func New(policy *config.Policy) *Classifier {
	return &Classifier{policy: policy}
}

// Classify runs the scoring policy. Category priority on ties is fixed:
// direct-ask ISO, then SERVICE, then ISO, then GENERAL.
func (c *Classifier) Classify(text string) domain.ClassificationResult {
	res := domain.ClassificationResult{
		Category: domain.CategorySkip,
		Matched:  make(map[domain.Category][]string),
	}
	lowered := strings.ToLower(text)

	if lang := c.policy.Language; lang != "" {
		info := whatlanggo.Detect(text)
		if info.IsReliable() && info.Lang.Iso6393() != lang {
			res.ShouldSkip = true
			res.Reasons = append(res.Reasons, fmt.Sprintf("language %s outside target %s", info.Lang.Iso6393(), lang))
			return res
		}
	}

	// Negative keywords short-circuit everything else.
	if score, hits := scoreTerms(lowered, c.policy.Keywords.Negative); len(hits) > 0 {
		res.ShouldSkip = true
		res.Score = math.Abs(score)
		res.Matched[domain.CategorySkip] = hits
		res.Reasons = append(res.Reasons, "negative keyword: "+strings.Join(hits, ", "))
		return res
	}

	// A blacklisted brand is tolerated only with an allowed modifier nearby.
	if brand, ok := firstMatch(lowered, c.policy.Brands.Blacklist); ok {
		if _, softened := firstMatch(lowered, c.policy.Brands.AllowedModifiers); !softened {
			res.ShouldSkip = true
			res.Matched[domain.CategorySkip] = []string{brand}
			res.Reasons = append(res.Reasons, "blacklisted brand without modifier: "+brand)
			return res
		}
		res.Reasons = append(res.Reasons, "blacklisted brand softened by modifier: "+brand)
	}

	serviceScore, serviceHits := scoreTerms(lowered, c.policy.Keywords.Service)
	isoScore, isoHits := scoreTerms(lowered, c.policy.Keywords.ISO)
	generalScore, generalHits := scoreTerms(lowered, c.policy.Keywords.General)
	res.Matched[domain.CategoryService] = serviceHits
	res.Matched[domain.CategoryISO] = isoHits
	res.Matched[domain.CategoryGeneral] = generalHits

	th := c.policy.Thresholds
	switch {
	case c.directlyAsking(lowered) && isoScore >= th.ISO:
		res.Category = domain.CategoryISO
		res.Score = isoScore
		res.Reasons = append(res.Reasons, "direct-ask prefix with iso score over threshold")
	case serviceScore >= th.Service:
		res.Category = domain.CategoryService
		res.Score = serviceScore
		res.Reasons = append(res.Reasons, fmt.Sprintf("service score %.1f >= %.1f", serviceScore, th.Service))
	case isoScore >= th.ISO:
		res.Category = domain.CategoryISO
		res.Score = isoScore
		res.Reasons = append(res.Reasons, fmt.Sprintf("iso score %.1f >= %.1f", isoScore, th.ISO))
	case generalScore >= th.General:
		res.Category = domain.CategoryGeneral
		res.Score = generalScore
		res.Reasons = append(res.Reasons, fmt.Sprintf("general score %.1f >= %.1f", generalScore, th.General))
	default:
		res.Score = math.Max(serviceScore, math.Max(isoScore, generalScore))
		res.Reasons = append(res.Reasons, "no category threshold met")
	}

	// Skip floor is a global safety net under the per-category thresholds.
	res.ShouldSkip = res.Category == domain.CategorySkip || res.Score < th.SkipFloor
	if res.Category != domain.CategorySkip && res.Score < th.SkipFloor {
		res.Reasons = append(res.Reasons, fmt.Sprintf("score %.1f under skip floor %.1f", res.Score, th.SkipFloor))
	}

	res.Tags = c.Tags(lowered)
	return res
}

// Tags is the auxiliary grouping pass. It never influences the skip decision.
func (c *Classifier) Tags(lowered string) []string {
	var tags []string
	for tag, terms := range c.policy.Tags {
		for _, term := range terms {
			if strings.Contains(lowered, strings.ToLower(term)) {
				tags = append(tags, tag)
				break
			}
		}
	}
	sort.Strings(tags)
	return tags
}

func (c *Classifier) directlyAsking(lowered string) bool {
	trimmed := strings.TrimSpace(lowered)
	for _, prefix := range c.policy.DirectAskPrefixes {
		if strings.HasPrefix(trimmed, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

func scoreTerms(lowered string, terms []config.WeightedTerm) (float64, []string) {
	var score float64
	var hits []string
	for _, t := range terms {
		if strings.Contains(lowered, strings.ToLower(t.Term)) {
			score += t.Weight
			hits = append(hits, t.Term)
		}
	}
	return score, hits
}

func firstMatch(lowered string, terms []string) (string, bool) {
	for _, t := range terms {
		if strings.Contains(lowered, strings.ToLower(t)) {
			return t, true
		}
	}
	return "", false
}
