// Package generator drafts outreach comment text. Generation is two-tier: an
// optional AI call first, then rotation over the category's stored templates.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"commentbot/packages/config"
	"commentbot/packages/domain"
)

const namePlaceholder = "{name}"

// variationRate is the chance a rotated template gets one lexical variation
// applied, spreading surface forms without touching meaning.
const variationRate = 0.4

// Consumer-side interfaces
type TemplateSource interface {
	TemplatesByCategory(ctx context.Context, cat domain.Category) ([]domain.Template, error)
	IncrementTemplateUse(ctx context.Context, id string) error
}

type AIClient interface {
	Draft(ctx context.Context, cat domain.Category, postText, author string) (string, error)
}

type Generator struct {
	templates  TemplateSource
	ai         AIClient
	variations []config.Variation

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a Generator. ai may be nil when AI generation is disabled; rng
// may be nil for a time-seeded source.
func New(templates TemplateSource, ai AIClient, variations []config.Variation, rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{templates: templates, ai: ai, variations: variations, rng: rng}
}

// Generate returns comment text for the category, or a
// FaultGenerationUnavailable when neither tier can produce one. The caller
// drops the candidate on that fault.
func (g *Generator) Generate(ctx context.Context, cat domain.Category, postText, author string) (string, error) {
	name, ok := FirstName(author)
	if !ok {
		name = "there"
	}

	if g.ai != nil {
		draft, err := g.ai.Draft(ctx, cat, postText, author)
		if err == nil && strings.TrimSpace(draft) != "" {
			return personalize(draft, name), nil
		}
		if err != nil {
			slog.Warn("AI draft failed, falling back to templates", "category", cat, "error", err)
		}
	}

	tmpl, err := g.rotate(ctx, cat)
	if err != nil {
		return "", err
	}

	body := tmpl.Body
	g.mu.Lock()
	if len(g.variations) > 0 && g.rng.Float64() < variationRate {
		v := g.variations[g.rng.Intn(len(g.variations))]
		body = strings.ReplaceAll(body, v.Find, v.Replace)
	}
	g.mu.Unlock()

	if err := g.templates.IncrementTemplateUse(ctx, tmpl.ID); err != nil {
		return "", fmt.Errorf("failed to record template use %s: %w", tmpl.ID, err)
	}
	return personalize(body, name), nil
}

// rotate picks the least-used template for the category, breaking ties
// randomly so exposure spreads instead of cycling deterministically.
func (g *Generator) rotate(ctx context.Context, cat domain.Category) (domain.Template, error) {
	templates, err := g.templates.TemplatesByCategory(ctx, cat)
	if err != nil {
		return domain.Template{}, fmt.Errorf("failed to load templates for %s: %w", cat, err)
	}
	if len(templates) == 0 {
		return domain.Template{}, domain.NewFault(domain.FaultGenerationUnavailable,
			fmt.Sprintf("no templates for category %s and AI path unavailable", cat))
	}

	minUse := templates[0].UseCount
	for _, t := range templates[1:] {
		if t.UseCount < minUse {
			minUse = t.UseCount
		}
	}
	var leastUsed []domain.Template
	for _, t := range templates {
		if t.UseCount == minUse {
			leastUsed = append(leastUsed, t)
		}
	}

	g.mu.Lock()
	pick := leastUsed[g.rng.Intn(len(leastUsed))]
	g.mu.Unlock()
	return pick, nil
}

func personalize(body, name string) string {
	return strings.TrimSpace(strings.ReplaceAll(body, namePlaceholder, name))
}
