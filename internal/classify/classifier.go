package classify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/whatsmap/internal/apperr"
	"github.com/rahul/whatsmap/internal/observability"
	"github.com/rahul/whatsmap/internal/plan"
)

const toolName = "classify_command"

// DefaultPrompt is used when no classifier prompt is configured.
const DefaultPrompt = `You classify real-estate commands for WhatsMAP.
Decide who is asking and what they want, then call classify_command.

Personas:
- Investor: returns, yield, ROI, capital growth, rental income.
- Broker: commissions, clients, leads, pitching, talking points.
- Homebuyer: living in the home, schools, commute, family, lifestyle.
If the signal is weak or mixed, choose Homebuyer.

Intents:
- informational: wants facts about a project or area.
- comparison: weighs two or more options.
- transactional: wants to buy, book, or contact.
- lead_enrichment: names a person to research as a prospective buyer.

subject is the project, area or person the command is about.`

// Result is what the classifier inferred about a command.
type Result struct {
	Persona plan.Persona `json:"persona"`
	Intent  plan.Intent  `json:"intent"`
	Subject string       `json:"subject"`
}

// Classifier infers persona and intent through a generative model.
type Classifier struct {
	model  llms.Model
	prompt string
	logger *observability.Logger
}

func New(model llms.Model, prompt string, logger *observability.Logger) *Classifier {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Classifier{model: model, prompt: prompt, logger: logger}
}

func classifyTool() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        toolName,
			Description: "Record the persona and intent inferred from the user's command.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"persona": map[string]any{
						"type": "string",
						"enum": []string{"Investor", "Homebuyer", "Broker", "Unknown"},
					},
					"intent": map[string]any{
						"type": "string",
						"enum": []string{"informational", "comparison", "transactional", "lead_enrichment"},
					},
					"subject": map[string]any{
						"type": "string",
					},
				},
				"required": []string{"persona", "intent"},
			},
		},
	}
}

// Classify returns the persona and intent of text. A weak signal resolves to
// Homebuyer; a failed call or unreadable answer is a ClassificationFailed
// error and nothing further should run.
func (c *Classifier) Classify(ctx context.Context, chatID, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, apperr.NewClassificationFailed("command is empty", nil)
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, c.prompt),
		llms.TextParts(llms.ChatMessageTypeHuman, text),
	}

	resp, err := c.model.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{classifyTool()}))
	if err != nil {
		return Result{}, apperr.NewClassificationFailed("model call failed", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return Result{}, apperr.NewClassificationFailed("model returned no choices", nil)
	}
	choice := resp.Choices[0]
	c.logger.LogLLM(chatID, "", text, choice.Content, choice.ToolCalls)

	raw, err := payload(choice)
	if err != nil {
		return Result{}, apperr.NewClassificationFailed("unreadable answer", err)
	}

	// Pointers tell a missing or null key apart from an ambiguous value.
	var out struct {
		Persona *string `json:"persona"`
		Intent  *string `json:"intent"`
		Subject string  `json:"subject"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Result{}, apperr.NewClassificationFailed("unreadable answer", err)
	}
	if out.Persona == nil {
		return Result{}, apperr.NewClassificationFailed("answer has no persona", nil)
	}
	if out.Intent == nil {
		return Result{}, apperr.NewClassificationFailed("answer has no intent", nil)
	}

	res := Result{
		Persona: plan.ParsePersona(*out.Persona),
		Intent:  plan.ParseIntent(*out.Intent),
		Subject: strings.TrimSpace(out.Subject),
	}
	c.logger.LogClassification(chatID, string(res.Persona), string(res.Intent), res.Subject)
	return res, nil
}

// payload prefers the tool call and falls back to JSON in the message body.
func payload(choice *llms.ContentChoice) (string, error) {
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall != nil && tc.FunctionCall.Name == toolName {
			return tc.FunctionCall.Arguments, nil
		}
	}

	content := strings.TrimSpace(choice.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errors.New("neither a tool call nor a message body")
	}
	return content, nil
}
