package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rahul/whatsmap/internal/store"
)

// Catalog is the read side of the project catalog. *store.CatalogStore
// satisfies it.
type Catalog interface {
	Get(ctx context.Context, id string) (store.Project, error)
	Search(ctx context.Context, query string, limit int) ([]store.Project, error)
}

// ListingTool returns the catalog entry behind a listing card.
type ListingTool struct {
	catalog Catalog
}

func NewListingTool(catalog Catalog) *ListingTool {
	return &ListingTool{catalog: catalog}
}

func (l *ListingTool) Name() ToolName {
	return ToolListing
}

func (l *ListingTool) Description() string {
	return "Load a project from the catalog for an interactive listing card."
}

func (l *ListingTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"project_id": map[string]any{
				"type":        "string",
				"description": "Catalog ID of the project",
			},
		},
		"required": []string{"project_id"},
	}
}

func (l *ListingTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if args.ProjectID == "" {
		return "", fmt.Errorf("project_id is required")
	}

	p, err := l.catalog.Get(ctx, args.ProjectID)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// MatchTool ranks catalog projects against a buyer profile.
type MatchTool struct {
	catalog      Catalog
	defaultLimit int
}

func NewMatchTool(catalog Catalog) *MatchTool {
	return &MatchTool{catalog: catalog, defaultLimit: 3}
}

func (m *MatchTool) Name() ToolName {
	return ToolMatch
}

func (m *MatchTool) Description() string {
	return "Find catalog projects that fit a buyer profile."
}

func (m *MatchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"profile": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"estimated_budget":     map[string]any{"type": "string"},
					"property_preferences": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"primary_motivation":   map[string]any{"type": "string"},
				},
			},
			"query": map[string]any{
				"type":        "string",
				"description": "Free-text criteria used when no profile is given",
			},
			"limit": map[string]any{
				"type": "integer",
			},
		},
	}
}

func (m *MatchTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Profile struct {
			EstimatedBudget     string   `json:"estimated_budget"`
			PropertyPreferences []string `json:"property_preferences"`
			PrimaryMotivation   string   `json:"primary_motivation"`
		} `json:"profile"`
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	if args.Limit <= 0 {
		args.Limit = m.defaultLimit
	}

	criteria := strings.TrimSpace(strings.Join(append(args.Profile.PropertyPreferences, args.Profile.PrimaryMotivation, args.Query), " "))
	if criteria == "" {
		return "", fmt.Errorf("no profile or query to match against")
	}

	projects, err := m.catalog.Search(ctx, criteria, args.Limit)
	if err != nil {
		return "", fmt.Errorf("catalog search failed: %w", err)
	}
	if projects == nil {
		projects = []store.Project{}
	}

	data, err := json.Marshal(map[string]any{
		"criteria":         criteria,
		"estimated_budget": args.Profile.EstimatedBudget,
		"matches":          projects,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}
