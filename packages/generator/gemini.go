package generator

import (
	"context"
	"fmt"
	"strings"

	"commentbot/packages/domain"

	"google.golang.org/genai"
)

const draftSystemPrompt = `You write short, warm outreach comments for a jewelry workshop replying to
social feed posts. One or two sentences, no hashtags, no emoji walls, no sales
pressure. Address the author naturally and react to what they actually wrote.`

var draftStyles = map[domain.Category]string{
	domain.CategoryService: "The author needs a jewelry service done. Offer help and invite them to message us.",
	domain.CategoryISO:     "The author is searching for a specific piece. Mention we can source or make it.",
	domain.CategoryGeneral: "The author shared something jewelry related. Leave a friendly, engaged comment.",
}

type GeminiClient struct {
	client *genai.Client
	models []string
}

func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClient{
		client: client,
		models: []string{"gemini-2.5-flash", "gemini-2.5-flash-lite"},
	}, nil
}

var _ AIClient = (*GeminiClient)(nil)

func (g *GeminiClient) Draft(ctx context.Context, cat domain.Category, postText, author string) (string, error) {
	prompt := fmt.Sprintf(`%s

%s

Post author: %s
Post text:
%s

Reply with the comment text only.`, draftSystemPrompt, draftStyles[cat], author, postText)

	var lastErr error
	for _, model := range g.models {
		result, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
		if err != nil {
			errStr := strings.ToLower(err.Error())
			if strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit") ||
				strings.Contains(errStr, "exhausted") || strings.Contains(errStr, "not found") {
				lastErr = err
				continue
			}
			return "", err
		}
		if result != nil && len(result.Candidates) > 0 && result.Candidates[0].Content != nil &&
			len(result.Candidates[0].Content.Parts) > 0 {
			return strings.TrimSpace(result.Candidates[0].Content.Parts[0].Text), nil
		}
	}
	return "", domain.WrapFault(domain.FaultGenerationUnavailable, "all gemini models failed", lastErr)
}
