package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"cbt-companion/pkg"
)

// riskSystemPrompt instructs the secondary classifier. It is deliberately
// narrow: judge safety risk, return structured JSON, nothing else.
const riskSystemPrompt = `You are a clinical safety classifier for a CBT skills-practice assistant.
You analyze a single patient message, in context, for self-harm or suicide risk.
Weigh stated intent, plan specificity, and access to means or a timeline.
Discount false positives: metaphors, quotations, song lyrics, or reporting what someone else said.
You respond with JSON only.`

// OpenAIClient calls the OpenAI API for adaptive reply generation and for
// the secondary risk judgment. It implements core.Generator and
// core.RiskJudge.
type OpenAIClient struct {
	client    *openai.Client
	chatModel string
	riskModel string
}

// NewOpenAIClient constructs an OpenAI-backed client. Model names fall back
// to a modern small model when empty.
func NewOpenAIClient(apiKey, chatModel, riskModel string) *OpenAIClient {
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}
	if riskModel == "" {
		riskModel = chatModel
	}
	return &OpenAIClient{
		client:    openai.NewClient(apiKey),
		chatModel: chatModel,
		riskModel: riskModel,
	}
}

// Generate sends the assembled instructions, the running history, and the new
// patient message to the chat completion API and returns the assistant reply.
func (c *OpenAIClient) Generate(ctx context.Context, instructions string, history []pkg.Turn, userMessage string) (pkg.Generation, error) {
	if c.client == nil {
		return pkg.Generation{}, errors.New("openai client not initialized")
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: instructions,
	})
	for _, t := range history {
		role := openai.ChatMessageRoleUser
		if t.Role == pkg.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userMessage,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    msgs,
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	if err != nil {
		return pkg.Generation{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return pkg.Generation{}, errors.New("chat completion returned no choices")
	}
	return pkg.Generation{
		Content:    resp.Choices[0].Message.Content,
		Model:      c.chatModel,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// JudgeRisk asks the risk model for a structured judgment of the message,
// given the matched keyword tags and recent conversation context.
func (c *OpenAIClient) JudgeRisk(ctx context.Context, message string, triggers []string, history []pkg.Turn) (pkg.RiskJudgment, error) {
	if c.client == nil {
		return pkg.RiskJudgment{}, errors.New("openai client not initialized")
	}

	var b strings.Builder
	b.WriteString("Detected keywords: ")
	b.WriteString(strings.Join(triggers, ", "))
	b.WriteString("\n\nRecent conversation context:\n")
	for _, t := range history {
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nCurrent patient message:\n%q\n\n", message)
	b.WriteString(`Analyze this message for safety risk. Consider:
1. Intent (actual self-harm intent or distress without intent?)
2. Plan, means, timeline (specificity increases risk)
3. Context from the conversation history
4. False positives (metaphors, song lyrics, quoting others)

Return ONLY valid JSON in this exact format:
{"risk_level": "HIGH|MEDIUM|LOW", "reasoning": "brief explanation", "triggers": ["keyword1", "keyword2"]}`)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.riskModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: riskSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: b.String()},
		},
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if err != nil {
		return pkg.RiskJudgment{}, fmt.Errorf("risk judgment: %w", err)
	}
	if len(resp.Choices) == 0 {
		return pkg.RiskJudgment{}, errors.New("risk judgment returned no choices")
	}

	var judgment pkg.RiskJudgment
	raw := extractJSON(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &judgment); err != nil {
		return pkg.RiskJudgment{}, fmt.Errorf("parse risk judgment: %w", err)
	}
	if judgment.Tier == "" {
		return pkg.RiskJudgment{}, errors.New("risk judgment missing risk_level")
	}
	return judgment, nil
}

var (
	fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	rawJSONRe    = regexp.MustCompile(`(?s)\{.*\}`)
)

// extractJSON pulls a JSON object out of a model response, tolerating
// markdown code fences and surrounding prose.
func extractJSON(text string) string {
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := rawJSONRe.FindString(text); m != "" {
		return m
	}
	return text
}
