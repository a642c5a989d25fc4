package briefing

import (
	"encoding/json"

	"github.com/rahul/whatsmap/internal/plan"
	"github.com/rahul/whatsmap/internal/tools"
)

// BlockType is the renderer-facing key of a content block.
type BlockType string

const (
	BlockSummary           BlockType = "summary"
	BlockListingCard       BlockType = "listing_card_interactive"
	BlockFinancialSummary  BlockType = "financial_summary"
	BlockBrokerTools       BlockType = "broker_tools"
	BlockLifestyleScore    BlockType = "lifestyle_score"
	BlockLeadInvestigation BlockType = "lead_investigation"
	BlockBuyerProfile      BlockType = "buyer_profile"
	BlockPropertyMatches   BlockType = "property_matches"
)

var blockFor = map[tools.ToolName]BlockType{
	tools.ToolSummary:          BlockSummary,
	tools.ToolListing:          BlockListingCard,
	tools.ToolFinancialSummary: BlockFinancialSummary,
	tools.ToolBrokerTools:      BlockBrokerTools,
	tools.ToolLifestyleScore:   BlockLifestyleScore,
	tools.ToolInvestigate:      BlockLeadInvestigation,
	tools.ToolEvaluate:         BlockBuyerProfile,
	tools.ToolMatch:            BlockPropertyMatches,
}

// BlockTypeFor returns the block a tool's result renders as.
func BlockTypeFor(name tools.ToolName) (BlockType, bool) {
	t, ok := blockFor[name]
	return t, ok
}

// ContentBlock is one typed unit of a briefing.
type ContentBlock struct {
	Type BlockType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Briefing is the assembled output for one command. Missing names the block
// types whose steps did not complete.
type Briefing struct {
	InferredPersona plan.Persona   `json:"inferredPersona"`
	ContentBlocks   []ContentBlock `json:"contentBlocks"`
	Missing         []BlockType    `json:"missing,omitempty"`
}

// Assemble turns completed steps into content blocks in step order. Steps
// that are not Complete are left out and listed in Missing.
func Assemble(persona plan.Persona, steps []*plan.Step) *Briefing {
	b := &Briefing{
		InferredPersona: persona,
		ContentBlocks:   make([]ContentBlock, 0, len(steps)),
	}
	for _, step := range steps {
		bt, ok := blockFor[step.Tool]
		if !ok {
			continue
		}
		status, result, _ := step.Snapshot()
		if status != plan.StatusComplete {
			b.Missing = append(b.Missing, bt)
			continue
		}
		b.ContentBlocks = append(b.ContentBlocks, ContentBlock{
			Type: bt,
			Data: json.RawMessage(result),
		})
	}
	return b
}

// Complete reports whether nothing is missing.
func (b *Briefing) Complete() bool {
	return len(b.Missing) == 0
}

// Types lists the block types in order.
func (b *Briefing) Types() []BlockType {
	out := make([]BlockType, len(b.ContentBlocks))
	for i, cb := range b.ContentBlocks {
		out[i] = cb.Type
	}
	return out
}
