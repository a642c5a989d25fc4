package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
)

// BlockSpec describes one model-generated block: what to ask and which keys
// the answer must carry.
type BlockSpec struct {
	Name        ToolName
	Description string
	Template    string
	Required    []string
}

// DefaultBlocks are the built-in generated blocks. Templates use Go template
// syntax with .input (the step input JSON) and .project (catalog entry JSON
// or empty).
var DefaultBlocks = []BlockSpec{
	{
		Name:        ToolSummary,
		Description: "Write a short answer to the command for the inferred persona.",
		Required:    []string{"text"},
		Template: `Answer this real-estate request in two or three sentences for a {{.persona}}.
Request: {{.input}}
{{if .project}}Project: {{.project}}{{end}}
Reply with a JSON object with a single "text" field.`,
	},
	{
		Name:        ToolFinancialSummary,
		Description: "Estimate return on investment, rental yield and cap rate.",
		Required:    []string{"roi", "yield", "cap_rate"},
		Template: `Estimate investment figures for this request.
Request: {{.input}}
{{if .project}}Project: {{.project}}{{end}}
Reply with a JSON object with "roi", "yield" and "cap_rate" as short strings such as "7.2%".`,
	},
	{
		Name:        ToolBrokerTools,
		Description: "Give a broker commission potential and talking points.",
		Required:    []string{"commission_potential", "talking_points"},
		Template: `Help a broker sell against this request.
Request: {{.input}}
{{if .project}}Project: {{.project}}{{end}}
Reply with a JSON object with "commission_potential" (string) and "talking_points" (array of strings).`,
	},
	{
		Name:        ToolLifestyleScore,
		Description: "Score walkability, schools and amenities out of 10.",
		Required:    []string{"walkability", "schools", "amenities"},
		Template: `Score the neighbourhood for someone who will live there.
Request: {{.input}}
{{if .project}}Project: {{.project}}{{end}}
Reply with a JSON object with integer "walkability", "schools" and "amenities" scores from 0 to 10.`,
	},
	{
		Name:        ToolEvaluate,
		Description: "Evaluate an investigated lead as a property buyer.",
		Required:    []string{"estimated_budget", "property_preferences", "primary_motivation", "profile_summary"},
		Template: `Evaluate this person as a prospective property buyer.
Lead: {{.input}}
Reply with a JSON object with "estimated_budget" (string), "property_preferences" (array of strings),
"primary_motivation" (string) and "profile_summary" (string).`,
	},
}

// GenerativeTool produces a content block by asking a model for JSON.
type GenerativeTool struct {
	spec     BlockSpec
	template prompts.PromptTemplate
	model    llms.Model
	catalog  Catalog
	policy   *bluemonday.Policy
}

// NewGenerativeTool builds a block tool. catalog may be nil; when set, a
// project_id in the input is expanded into the prompt.
func NewGenerativeTool(spec BlockSpec, model llms.Model, catalog Catalog) *GenerativeTool {
	return &GenerativeTool{
		spec: spec,
		template: prompts.PromptTemplate{
			Template:       spec.Template,
			InputVariables: []string{"input", "persona", "project"},
			TemplateFormat: prompts.TemplateFormatGoTemplate,
		},
		model:   model,
		catalog: catalog,
		policy:  bluemonday.StrictPolicy(),
	}
}

func (g *GenerativeTool) Name() ToolName {
	return g.spec.Name
}

func (g *GenerativeTool) Description() string {
	return g.spec.Description
}

func (g *GenerativeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command":    map[string]any{"type": "string"},
			"subject":    map[string]any{"type": "string"},
			"persona":    map[string]any{"type": "string"},
			"project_id": map[string]any{"type": "string"},
		},
	}
}

func (g *GenerativeTool) Execute(ctx context.Context, input string) (string, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}

	persona, _ := args["persona"].(string)
	if persona == "" {
		persona = "Homebuyer"
	}

	var project string
	if id, _ := args["project_id"].(string); id != "" && g.catalog != nil {
		p, err := g.catalog.Get(ctx, id)
		if err != nil {
			return "", err
		}
		data, _ := json.Marshal(p)
		project = string(data)
	}

	prompt, err := g.template.Format(map[string]any{
		"input":   input,
		"persona": persona,
		"project": project,
	})
	if err != nil {
		return "", fmt.Errorf("render %s prompt: %w", g.spec.Name, err)
	}

	resp, err := g.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, llms.WithJSONMode())
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", fmt.Errorf("model returned no choices")
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(stripFences(resp.Choices[0].Content)), &out); err != nil {
		return "", fmt.Errorf("model answer is not a JSON object: %w", err)
	}
	for _, key := range g.spec.Required {
		if _, ok := out[key]; !ok {
			return "", fmt.Errorf("model answer is missing %q", key)
		}
	}

	data, err := json.Marshal(g.sanitize(out))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// sanitize strips markup from every string in v. Blocks are rendered as
// plain text, so entities are decoded again afterwards.
func (g *GenerativeTool) sanitize(v any) any {
	switch t := v.(type) {
	case string:
		return html.UnescapeString(g.policy.Sanitize(t))
	case []any:
		for i := range t {
			t[i] = g.sanitize(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = g.sanitize(t[k])
		}
		return t
	default:
		return v
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
