package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// Searcher runs a web search and returns the raw text results.
// *duckduckgo.Tool satisfies it.
type Searcher interface {
	Call(ctx context.Context, input string) (string, error)
}

// NewDuckDuckGo returns the default web searcher.
func NewDuckDuckGo(maxResults int) (Searcher, error) {
	ddg, err := duckduckgo.New(maxResults, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return ddg, nil
}

// LeadMatch is one public record that may describe the lead.
type LeadMatch struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// InvestigateTool searches the web for a named lead.
type InvestigateTool struct {
	search Searcher
	model  llms.Model // optional; writes overall_summary
}

func NewInvestigateTool(search Searcher, model llms.Model) *InvestigateTool {
	return &InvestigateTool{search: search, model: model}
}

func (i *InvestigateTool) Name() ToolName {
	return ToolInvestigate
}

func (i *InvestigateTool) Description() string {
	return "Search public sources for a named lead and list what was found."
}

func (i *InvestigateTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{
				"type":        "string",
				"description": "Full name of the lead",
			},
			"company": map[string]any{
				"type":        "string",
				"description": "Employer or company, if known",
			},
		},
		"required": []string{"name"},
	}
}

func (i *InvestigateTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Name    string `json:"name"`
		Company string `json:"company"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	args.Name = strings.TrimSpace(args.Name)
	if args.Name == "" {
		return "", fmt.Errorf("name is required")
	}

	query := fmt.Sprintf("%q %s", args.Name, args.Company)
	raw, err := i.search.Call(ctx, strings.TrimSpace(query))
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "no good") {
		return "", fmt.Errorf("search failed: %w", err)
	}

	matches := parseSearchResults(raw)
	summary := fmt.Sprintf("Found %d public results for %s.", len(matches), args.Name)
	if len(matches) > 0 && i.model != nil {
		if s, err := i.summarize(ctx, args.Name, raw); err == nil && s != "" {
			summary = s
		}
	}

	data, err := json.Marshal(map[string]any{
		"matches":         matches,
		"overall_summary": summary,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (i *InvestigateTool) summarize(ctx context.Context, name, raw string) (string, error) {
	prompt := fmt.Sprintf("In two sentences, summarise what these search results say about %s as a person. Results:\n%s", name, raw)
	resp, err := i.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", errors.New("model returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// parseSearchResults reads the Title/Description/URL blocks the search
// client emits. Anything else yields no matches.
func parseSearchResults(raw string) []LeadMatch {
	matches := []LeadMatch{}
	var cur *LeadMatch
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Title:"):
			matches = append(matches, LeadMatch{Title: strings.TrimSpace(strings.TrimPrefix(line, "Title:"))})
			cur = &matches[len(matches)-1]
		case cur != nil && strings.HasPrefix(line, "Description:"):
			cur.Snippet = strings.TrimSpace(strings.TrimPrefix(line, "Description:"))
		case cur != nil && strings.HasPrefix(line, "URL:"):
			cur.URL = strings.TrimSpace(strings.TrimPrefix(line, "URL:"))
		}
	}
	return matches
}
