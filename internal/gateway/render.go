package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rahul/whatsmap/internal/agent"
	"github.com/rahul/whatsmap/internal/apperr"
	"github.com/rahul/whatsmap/internal/briefing"
)

// blockRenderers turns block data into chat text. Types without a renderer
// are left out of the message.
var blockRenderers = map[briefing.BlockType]func(data json.RawMessage) (string, error){
	briefing.BlockSummary:           renderSummary,
	briefing.BlockListingCard:       renderListing,
	briefing.BlockFinancialSummary:  renderFinancial,
	briefing.BlockBrokerTools:       renderBrokerTools,
	briefing.BlockLifestyleScore:    renderLifestyle,
	briefing.BlockLeadInvestigation: renderInvestigation,
	briefing.BlockBuyerProfile:      renderBuyerProfile,
	briefing.BlockPropertyMatches:   renderMatches,
}

// Render formats a response as a plain-text chat message.
func Render(resp *agent.Response) string {
	if resp.OK() {
		return renderBriefing(resp.Briefing)
	}

	f := resp.Failure
	var b strings.Builder
	switch {
	case f.PartialBriefing != nil:
		b.WriteString(renderBriefing(f.PartialBriefing))
		b.WriteString("\n\nSome sections are unavailable right now: ")
		names := make([]string, len(f.PartialBriefing.Missing))
		for i, m := range f.PartialBriefing.Missing {
			names[i] = strings.ReplaceAll(string(m), "_", " ")
		}
		b.WriteString(strings.Join(names, ", "))
	case f.Kind == apperr.KindClassificationFailed:
		b.WriteString("Sorry, I couldn't understand that request. Try naming a project or area.")
	default:
		fmt.Fprintf(&b, "Sorry, I couldn't complete that request (%s).", strings.ReplaceAll(string(f.Kind), "_", " "))
		if f.FailedStepIndex >= 0 {
			fmt.Fprintf(&b, " Step %d failed.", f.FailedStepIndex+1)
		}
	}
	return b.String()
}

func renderBriefing(br *briefing.Briefing) string {
	var sections []string
	for _, block := range br.ContentBlocks {
		render, ok := blockRenderers[block.Type]
		if !ok {
			continue
		}
		text, err := render(block.Data)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		sections = append(sections, text)
	}
	if len(sections) == 0 {
		return "No results."
	}
	return strings.Join(sections, "\n\n")
}

func renderSummary(data json.RawMessage) (string, error) {
	var v struct {
		Text string `json:"text"`
	}
	err := json.Unmarshal(data, &v)
	return v.Text, err
}

func renderListing(data json.RawMessage) (string, error) {
	var v struct {
		Name      string `json:"name"`
		Developer string `json:"developer"`
		Area      string `json:"area"`
		City      string `json:"city"`
		PriceFrom string `json:"priceFrom"`
		Status    string `json:"status"`
		Handover  string `json:"handover"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return "", err
	}
	lines := []string{fmt.Sprintf("🏢 %s by %s", v.Name, v.Developer)}
	if loc := strings.Trim(v.Area+", "+v.City, ", "); loc != "" {
		lines = append(lines, "📍 "+loc)
	}
	if v.PriceFrom != "" {
		lines = append(lines, "💰 From "+v.PriceFrom)
	}
	if v.Status != "" {
		status := v.Status
		if v.Handover != "" {
			status += ", handover " + v.Handover
		}
		lines = append(lines, "🗓 "+status)
	}
	return strings.Join(lines, "\n"), nil
}

func renderFinancial(data json.RawMessage) (string, error) {
	var v struct {
		ROI     any `json:"roi"`
		Yield   any `json:"yield"`
		CapRate any `json:"cap_rate"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return "", err
	}
	return fmt.Sprintf("📈 ROI %v · Yield %v · Cap rate %v", v.ROI, v.Yield, v.CapRate), nil
}

func renderBrokerTools(data json.RawMessage) (string, error) {
	var v struct {
		Commission    any      `json:"commission_potential"`
		TalkingPoints []string `json:"talking_points"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return "", err
	}
	lines := []string{fmt.Sprintf("🤝 Commission potential: %v", v.Commission)}
	for _, p := range v.TalkingPoints {
		lines = append(lines, "• "+p)
	}
	return strings.Join(lines, "\n"), nil
}

func renderLifestyle(data json.RawMessage) (string, error) {
	var v struct {
		Walkability any `json:"walkability"`
		Schools     any `json:"schools"`
		Amenities   any `json:"amenities"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return "", err
	}
	return fmt.Sprintf("🌳 Walkability %v/10 · Schools %v/10 · Amenities %v/10", v.Walkability, v.Schools, v.Amenities), nil
}

func renderInvestigation(data json.RawMessage) (string, error) {
	var v struct {
		Summary string `json:"overall_summary"`
		Matches []struct {
			Title string `json:"title"`
			URL   string `json:"url"`
		} `json:"matches"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return "", err
	}
	lines := []string{"🔎 " + v.Summary}
	for i, m := range v.Matches {
		if i == 3 {
			break
		}
		lines = append(lines, fmt.Sprintf("• %s %s", m.Title, m.URL))
	}
	return strings.Join(lines, "\n"), nil
}

func renderBuyerProfile(data json.RawMessage) (string, error) {
	var v struct {
		Budget      string   `json:"estimated_budget"`
		Preferences []string `json:"property_preferences"`
		Motivation  string   `json:"primary_motivation"`
		Summary     string   `json:"profile_summary"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return "", err
	}
	return fmt.Sprintf("👤 %s\nBudget: %s\nLooking for: %s\nMotivation: %s",
		v.Summary, v.Budget, strings.Join(v.Preferences, ", "), v.Motivation), nil
}

func renderMatches(data json.RawMessage) (string, error) {
	var v struct {
		Matches []struct {
			Name      string `json:"name"`
			Area      string `json:"area"`
			PriceFrom string `json:"priceFrom"`
		} `json:"matches"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return "", err
	}
	if len(v.Matches) == 0 {
		return "🏘 No matching projects in the catalog yet.", nil
	}
	lines := []string{"🏘 Suggested projects:"}
	for _, m := range v.Matches {
		line := "• " + m.Name
		if m.Area != "" {
			line += ", " + m.Area
		}
		if m.PriceFrom != "" {
			line += " (from " + m.PriceFrom + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

// chunkText splits text on line boundaries into pieces of at most limit
// bytes. A single longer line is cut at the last rune start that fits.
func chunkText(text string, limit int) []string {
	var chunks []string
	var cur strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			if cur.Len() > 0 {
				chunks = append(chunks, cur.String())
				cur.Reset()
			}
			cut := limit
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if cur.Len()+len(line) > limit {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
