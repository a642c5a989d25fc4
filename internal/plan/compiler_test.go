package plan

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/whatsmap/internal/apperr"
	"github.com/rahul/whatsmap/internal/tools"
)

type toolSet map[tools.ToolName]bool

func (s toolSet) Has(name tools.ToolName) bool { return s[name] }

func fullRegistry() toolSet {
	return toolSet{
		tools.ToolSummary:          true,
		tools.ToolListing:          true,
		tools.ToolFinancialSummary: true,
		tools.ToolBrokerTools:      true,
		tools.ToolLifestyleScore:   true,
		tools.ToolInvestigate:      true,
		tools.ToolEvaluate:         true,
		tools.ToolMatch:            true,
	}
}

func countTool(p *Plan, name tools.ToolName) int {
	n := 0
	for _, s := range p.Steps {
		if s.Tool == name {
			n++
		}
	}
	return n
}

func TestCompile_PersonaAugmentation(t *testing.T) {
	tests := []struct {
		persona Persona
		want    tools.ToolName
	}{
		{PersonaInvestor, tools.ToolFinancialSummary},
		{PersonaBroker, tools.ToolBrokerTools},
		{PersonaHomebuyer, tools.ToolLifestyleScore},
		{PersonaUnknown, tools.ToolLifestyleScore},
	}

	augments := []tools.ToolName{tools.ToolFinancialSummary, tools.ToolBrokerTools, tools.ToolLifestyleScore}

	for _, tt := range tests {
		t.Run(string(tt.persona), func(t *testing.T) {
			for _, listings := range [][]string{nil, {"p-1"}, {"p-1", "p-2"}} {
				p, err := NewCompiler(fullRegistry()).Compile(Request{
					Persona:  tt.persona,
					Intent:   IntentInformational,
					Command:  "Emaar Beachfront price",
					Listings: listings,
				})
				require.NoError(t, err)
				assert.Equal(t, ModeFanOut, p.Mode)

				for _, a := range augments {
					want := 0
					if a == tt.want {
						want = 1
					}
					assert.Equal(t, want, countTool(p, a), "tool %s", a)
				}
			}
		})
	}
}

func TestCompile_ScenarioAInvestorWithListing(t *testing.T) {
	p, err := NewCompiler(fullRegistry()).Compile(Request{
		Persona:  PersonaInvestor,
		Intent:   IntentInformational,
		Command:  "Emaar Beachfront price",
		Listings: []string{"p-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, []tools.ToolName{tools.ToolSummary, tools.ToolListing, tools.ToolFinancialSummary}, p.ToolNames())
	assert.Equal(t, "p-1", p.Steps[1].Parameters["project_id"])
	assert.Equal(t, "p-1", p.Steps[2].Parameters["project_id"])
	for i, s := range p.Steps {
		assert.Equal(t, StatusPending, s.Status)
		assert.Equal(t, i+1, s.ID)
	}
}

func TestCompile_NoListingWithoutMatches(t *testing.T) {
	p, err := NewCompiler(fullRegistry()).Compile(Request{Persona: PersonaBroker, Command: "off-plan villas"})
	require.NoError(t, err)
	assert.Equal(t, []tools.ToolName{tools.ToolSummary, tools.ToolBrokerTools}, p.ToolNames())
}

func TestCompile_Deterministic(t *testing.T) {
	c := NewCompiler(fullRegistry())
	req := Request{Persona: PersonaHomebuyer, Intent: IntentComparison, Command: "Damac Hills vs Creek Beach", Listings: []string{"p-2", "p-3"}}

	first, err := c.Compile(req)
	require.NoError(t, err)
	second, err := c.Compile(req)
	require.NoError(t, err)

	assert.Equal(t, first.ToolNames(), second.ToolNames())
	assert.Equal(t, first.Mode, second.Mode)
	for i := range first.Steps {
		assert.Equal(t, first.Steps[i].Parameters, second.Steps[i].Parameters)
	}
	assert.NotEqual(t, first.ID, second.ID, "each compile yields its own plan instance")
}

func TestCompile_OmitsAbsentAugmentation(t *testing.T) {
	reg := fullRegistry()
	delete(reg, tools.ToolFinancialSummary)

	p, err := NewCompiler(reg).Compile(Request{Persona: PersonaInvestor, Command: "Emaar Beachfront", Listings: []string{"p-1"}})
	require.NoError(t, err)
	assert.Equal(t, []tools.ToolName{tools.ToolSummary, tools.ToolListing}, p.ToolNames())
}

func TestCompile_MissingSummaryIsUnknownTool(t *testing.T) {
	reg := fullRegistry()
	delete(reg, tools.ToolSummary)

	_, err := NewCompiler(reg).Compile(Request{Persona: PersonaInvestor, Command: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrUnknownTool))
}

func TestCompile_LeadPipelineIsSequential(t *testing.T) {
	p, err := NewCompiler(fullRegistry()).Compile(Request{
		Persona: PersonaBroker,
		Intent:  IntentLeadEnrichment,
		Command: "enrich lead Jane Doe",
		Subject: "Jane Doe",
	})
	require.NoError(t, err)

	assert.Equal(t, ModeSequential, p.Mode)
	assert.Equal(t, []tools.ToolName{tools.ToolInvestigate, tools.ToolEvaluate, tools.ToolMatch}, p.ToolNames())
	assert.Equal(t, "Jane Doe", p.Steps[0].Parameters["name"])
	assert.Equal(t, ForwardFirstMatch, p.Steps[0].Forward)
	assert.Equal(t, ForwardBuyerProfile, p.Steps[1].Forward)
	assert.Equal(t, ForwardNone, p.Steps[2].Forward)
}

func TestBuild_ScenarioCUnknownTool(t *testing.T) {
	specs := []StepSpec{
		{Tool: tools.ToolSummary},
		{Tool: tools.ToolName("nonexistent_tool")},
	}
	p, err := Build(ModeFanOut, Request{}, specs, fullRegistry())

	require.Error(t, err)
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, apperr.ErrUnknownTool))
	assert.Contains(t, err.Error(), "nonexistent_tool")
}

func TestCompilePipeline(t *testing.T) {
	c := NewCompiler(fullRegistry()).WithPipelines(map[string][]string{
		"qualify": {"investigate", "evaluate"},
		"broken":  {"investigate", "nonexistent_tool"},
	})

	p, err := c.CompilePipeline("qualify", Request{Command: "qualify Omar Khan", Subject: "Omar Khan"})
	require.NoError(t, err)
	assert.Equal(t, ModeSequential, p.Mode)
	assert.Equal(t, []tools.ToolName{tools.ToolInvestigate, tools.ToolEvaluate}, p.ToolNames())
	assert.Equal(t, ForwardFirstMatch, p.Steps[0].Forward)
	assert.Equal(t, ForwardNone, p.Steps[1].Forward)

	_, err = c.CompilePipeline("broken", Request{})
	assert.True(t, errors.Is(err, apperr.ErrUnknownTool))

	_, err = c.CompilePipeline("missing", Request{})
	assert.ErrorIs(t, err, ErrUnknownPipeline)
}

func TestForwardFirstMatchPassesOnlyFirstElement(t *testing.T) {
	result := `{"matches":[{"name":"Jane Doe","source":"LinkedIn"},{"name":"J. Doe","source":"Facebook"}],"overall_summary":"two hits"}`

	fields, err := ForwardFirstMatch.Apply(result)
	require.NoError(t, err)
	require.Len(t, fields, 1)

	var lead map[string]any
	require.NoError(t, json.Unmarshal(fields["lead"].(json.RawMessage), &lead))
	assert.Equal(t, "Jane Doe", lead["name"])

	_, err = ForwardFirstMatch.Apply(`{"matches":[],"overall_summary":"nothing"}`)
	assert.ErrorIs(t, err, ErrNoMatches)
}

func TestForwardBuyerProfileDropsOtherFields(t *testing.T) {
	result := `{"estimated_budget":"$2M - $3M","property_preferences":["penthouse"],"primary_motivation":"Investment","profile_summary":"long text"}`

	fields, err := ForwardBuyerProfile.Apply(result)
	require.NoError(t, err)

	step := &Step{ID: 3, Parameters: map[string]any{"limit": 3}}
	input, err := step.Input(fields)
	require.NoError(t, err)

	assert.JSONEq(t, `{"limit":3,"profile":{"estimated_budget":"$2M - $3M","property_preferences":["penthouse"],"primary_motivation":"Investment"}}`, input)
}

func TestStepTransitionsOnlyAdvance(t *testing.T) {
	s := &Step{ID: 1}

	assert.Error(t, s.Complete("{}"), "pending cannot complete without running")
	require.NoError(t, s.Start())
	assert.Error(t, s.Start(), "running cannot restart")
	require.NoError(t, s.Fail(errors.New("boom")))
	assert.Error(t, s.Complete("{}"), "error is terminal")

	status, _, err := s.Snapshot()
	assert.Equal(t, StatusError, status)
	assert.EqualError(t, err, "boom")
}

func TestParsePersonaDefaultsToHomebuyer(t *testing.T) {
	assert.Equal(t, PersonaInvestor, ParsePersona(" Investor "))
	assert.Equal(t, PersonaHomebuyer, ParsePersona("maybe an investor?"))
	assert.Equal(t, PersonaHomebuyer, ParsePersona(""))
	assert.Equal(t, PersonaUnknown, ParsePersona("unknown"))
	assert.Equal(t, PersonaHomebuyer, PersonaUnknown.Effective())
}
