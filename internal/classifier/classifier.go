// Package classifier decides whether an inbound email asks for a
// product demo. The model call is opaque to the rest of the system:
// callers see a verdict or an error, never the prompt.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"

	"github.com/akshatj2209/calender-assistant-sub001/internal/models"
)

// Classifier returns an intent verdict for one email. Failures may be
// transient; callers mark the record failed and move on.
type Classifier interface {
	Classify(ctx context.Context, subject, body string) (*models.IntentAnalysis, error)
}

const systemPrompt = `You classify inbound business emails for a sales team.
Decide whether the email requests a product demo or sales meeting.
Respond with JSON only, no prose, matching this shape:
{"is_demo_request": bool, "confidence": number between 0 and 1,
 "intent_type": "demo_request"|"sales_inquiry"|"support"|"spam"|"other",
 "time_preferences": ["morning"|"afternoon"|"specific date text", ...],
 "contact_info": {"name": string, "email": string, "company": string}}`

// OpenAI implements Classifier with a chat completion.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (c *OpenAI) Classify(ctx context.Context, subject, body string) (*models.IntentAnalysis, error) {
	var verdict *models.IntentAnalysis

	operation := func() error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Temperature: 0,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: fmt.Sprintf("Subject: %s\n\n%s", subject, body),
				},
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("empty completion response"))
		}

		v, err := parseVerdict(resp.Choices[0].Message.Content)
		if err != nil {
			// A malformed verdict will not improve on retry.
			return backoff.Permanent(err)
		}
		verdict = v
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("classifying email: %w", err)
	}
	return verdict, nil
}

// parseVerdict tolerates code fences around the JSON payload.
func parseVerdict(content string) (*models.IntentAnalysis, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var verdict models.IntentAnalysis
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &verdict); err != nil {
		return nil, fmt.Errorf("decoding classifier verdict: %w", err)
	}
	return &verdict, nil
}
