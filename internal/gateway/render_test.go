package gateway

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/rahul/whatsmap/internal/agent"
	"github.com/rahul/whatsmap/internal/apperr"
	"github.com/rahul/whatsmap/internal/briefing"
	"github.com/rahul/whatsmap/internal/plan"
)

func block(t briefing.BlockType, data string) briefing.ContentBlock {
	return briefing.ContentBlock{Type: t, Data: json.RawMessage(data)}
}

func TestRender_BriefingInOrder(t *testing.T) {
	resp := &agent.Response{Briefing: &briefing.Briefing{
		InferredPersona: plan.PersonaInvestor,
		ContentBlocks: []briefing.ContentBlock{
			block(briefing.BlockSummary, `{"text":"Beachfront living from AED 2.1M."}`),
			block(briefing.BlockListingCard, `{"name":"Emaar Beachfront","developer":"Emaar","area":"Dubai Harbour","city":"Dubai","priceFrom":"AED 2.1M","status":"Ready"}`),
			block(briefing.BlockFinancialSummary, `{"roi":"7%","yield":"6.1%","cap_rate":"5.4%"}`),
		},
	}}

	out := Render(resp)

	assert.Contains(t, out, "Beachfront living")
	assert.Contains(t, out, "Emaar Beachfront by Emaar")
	assert.Contains(t, out, "ROI 7%")
	assert.Less(t, strings.Index(out, "Beachfront living"), strings.Index(out, "ROI 7%"))
}

func TestRender_UnknownBlockTypeDropped(t *testing.T) {
	resp := &agent.Response{Briefing: &briefing.Briefing{
		ContentBlocks: []briefing.ContentBlock{
			block("virtual_tour", `{"url":"https://example.com/tour"}`),
			block(briefing.BlockLifestyleScore, `{"walkability":8,"schools":7,"amenities":9}`),
		},
	}}

	out := Render(resp)

	assert.NotContains(t, out, "example.com/tour")
	assert.Contains(t, out, "Walkability 8/10")
}

func TestRender_Failures(t *testing.T) {
	partial := &agent.Response{Failure: &agent.FailureReport{
		Kind:            apperr.KindCapability,
		FailedStepIndex: 1,
		PartialBriefing: &briefing.Briefing{
			ContentBlocks: []briefing.ContentBlock{block(briefing.BlockSummary, `{"text":"hello"}`)},
			Missing:       []briefing.BlockType{briefing.BlockListingCard},
		},
	}}
	out := Render(partial)
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "listing card interactive")

	halted := &agent.Response{Failure: &agent.FailureReport{Kind: apperr.KindPlanHalted, FailedStepIndex: 0}}
	assert.Contains(t, Render(halted), "Step 1 failed")

	unclassified := &agent.Response{Failure: &agent.FailureReport{Kind: apperr.KindClassificationFailed, FailedStepIndex: -1}}
	assert.Contains(t, Render(unclassified), "couldn't understand")
}

func TestChunkText(t *testing.T) {
	text := strings.Repeat("a", 15) + "\n" + strings.Repeat("b", 5) + "\n" + strings.Repeat("c", 25)
	chunks := chunkText(text, 10)

	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 10)
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestChunkText_KeepsRunesWhole(t *testing.T) {
	text := strings.Repeat("a", 1999) + "📈 ROI"
	chunks := chunkText(text, discordMessageLimit)

	assert.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), discordMessageLimit)
		assert.True(t, utf8.ValidString(c), "chunk %q is not valid UTF-8", c)
	}
	assert.Equal(t, strings.Repeat("a", 1999), chunks[0])
	assert.Equal(t, text, strings.Join(chunks, ""))
}
