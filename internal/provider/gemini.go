package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// Gemini adapts the Google GenAI client to llms.Model so the rest of the
// code can stay provider-agnostic.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, opt := range options {
		opt(&opts)
	}

	contents, cfg := toGenAI(messages, opts)
	if len(contents) == 0 {
		return nil, errors.New("no user or model messages to send")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, err
	}
	return fromGenAI(resp)
}

func (g *Gemini) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, g, prompt, options...)
}

// toGenAI maps langchaingo messages and options onto a GenAI request.
// System messages become the system instruction.
func toGenAI(messages []llms.MessageContent, opts llms.CallOptions) ([]*genai.Content, *genai.GenerateContentConfig) {
	cfg := &genai.GenerateContentConfig{}
	var system []string
	var contents []*genai.Content

	for _, m := range messages {
		var texts []string
		for _, part := range m.Parts {
			if tp, ok := part.(llms.TextContent); ok {
				texts = append(texts, tp.Text)
			}
		}
		text := strings.Join(texts, "\n")
		if text == "" {
			continue
		}

		switch m.Role {
		case llms.ChatMessageTypeSystem:
			system = append(system, text)
		case llms.ChatMessageTypeAI:
			contents = append(contents, genai.NewContentFromText(text, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
		}
	}

	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if opts.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}
	if opts.Temperature > 0 {
		t := float32(opts.Temperature)
		cfg.Temperature = &t
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}

	var decls []*genai.FunctionDeclaration
	for _, t := range opts.Tools {
		if t.Function == nil {
			continue
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 t.Function.Name,
			Description:          t.Function.Description,
			ParametersJsonSchema: t.Function.Parameters,
		})
	}
	if len(decls) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	return contents, cfg
}

func fromGenAI(resp *genai.GenerateContentResponse) (*llms.ContentResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, errors.New("gemini returned no candidates")
	}

	out := &llms.ContentResponse{}
	for _, cand := range resp.Candidates {
		choice := &llms.ContentChoice{StopReason: string(cand.FinishReason)}
		if cand.Content != nil {
			var texts []string
			for i, part := range cand.Content.Parts {
				if part.Text != "" && !part.Thought {
					texts = append(texts, part.Text)
				}
				if fc := part.FunctionCall; fc != nil {
					args, err := json.Marshal(fc.Args)
					if err != nil {
						return nil, fmt.Errorf("encode %s arguments: %w", fc.Name, err)
					}
					id := fc.ID
					if id == "" {
						id = fmt.Sprintf("call_%d", i)
					}
					choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
						ID:           id,
						Type:         "function",
						FunctionCall: &llms.FunctionCall{Name: fc.Name, Arguments: string(args)},
					})
				}
			}
			choice.Content = strings.Join(texts, "")
		}
		out.Choices = append(out.Choices, choice)
	}
	return out, nil
}
