package plan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rahul/whatsmap/internal/apperr"
	"github.com/rahul/whatsmap/internal/tools"
)

// Resolver reports which tools are available. *tools.Registry satisfies it.
type Resolver interface {
	Has(name tools.ToolName) bool
}

// Request is everything the compiler needs. Listings holds the catalog IDs the
// listing search found before compilation, best first; compiling never makes
// a live call itself.
type Request struct {
	Persona  Persona
	Intent   Intent
	Command  string
	Subject  string
	Listings []string
}

// subject is what the command is about, falling back to the raw command.
func (r Request) subject() string {
	if s := strings.TrimSpace(r.Subject); s != "" {
		return s
	}
	return strings.TrimSpace(r.Command)
}

// StepSpec describes one step before validation.
type StepSpec struct {
	Tool        tools.ToolName
	Description string
	Parameters  map[string]any
	Forward     Forward
}

var ErrUnknownPipeline = errors.New("unknown pipeline")

// augmentations maps each effective persona to its extra block.
var augmentations = map[Persona]tools.ToolName{
	PersonaInvestor:  tools.ToolFinancialSummary,
	PersonaBroker:    tools.ToolBrokerTools,
	PersonaHomebuyer: tools.ToolLifestyleScore,
}

// defaultForward is the narrowing applied after each tool in a sequential
// chain.
var defaultForward = map[tools.ToolName]Forward{
	tools.ToolInvestigate: ForwardFirstMatch,
	tools.ToolEvaluate:    ForwardBuyerProfile,
}

// Build validates specs against the registry and returns a plan with every
// step Pending. Any spec naming a tool the registry cannot resolve fails the
// whole plan with an UnknownTool error.
func Build(mode Mode, req Request, specs []StepSpec, reg Resolver) (*Plan, error) {
	if mode != ModeSequential && mode != ModeFanOut {
		return nil, fmt.Errorf("invalid plan mode %q", mode)
	}
	if len(specs) == 0 {
		return nil, errors.New("plan has no steps")
	}

	steps := make([]*Step, 0, len(specs))
	for i, spec := range specs {
		if !reg.Has(spec.Tool) {
			return nil, apperr.NewUnknownTool(string(spec.Tool))
		}
		steps = append(steps, &Step{
			ID:          i + 1,
			Description: spec.Description,
			Tool:        spec.Tool,
			Parameters:  spec.Parameters,
			Forward:     spec.Forward,
			Status:      StatusPending,
		})
	}

	return &Plan{
		ID:      newPlanID(),
		Mode:    mode,
		Persona: req.Persona,
		Intent:  req.Intent,
		Command: req.Command,
		Steps:   steps,
	}, nil
}

// Compiler turns classified requests into plans.
type Compiler struct {
	registry  Resolver
	pipelines map[string][]string
}

func NewCompiler(registry Resolver) *Compiler {
	return &Compiler{
		registry:  registry,
		pipelines: make(map[string][]string),
	}
}

// WithPipelines adds named sequential tool chains. Tool names are validated
// when the pipeline is compiled, not here.
func (c *Compiler) WithPipelines(pipelines map[string][]string) *Compiler {
	for name, chain := range pipelines {
		c.pipelines[name] = append([]string(nil), chain...)
	}
	return c
}

// Compile picks the plan shape from the intent: lead enrichment runs the
// sequential lead pipeline, everything else a fan-out briefing.
func (c *Compiler) Compile(req Request) (*Plan, error) {
	if req.Intent == IntentLeadEnrichment {
		return c.compileLead(req)
	}
	return c.compileBriefing(req)
}

func (c *Compiler) compileBriefing(req Request) (*Plan, error) {
	persona := req.Persona.Effective()

	specs := []StepSpec{{
		Tool:        tools.ToolSummary,
		Description: "Summarise the request for the reader",
		Parameters: map[string]any{
			"command": req.Command,
			"subject": req.subject(),
			"persona": string(persona),
			"intent":  string(req.Intent),
		},
	}}

	var topListing string
	if len(req.Listings) > 0 {
		topListing = req.Listings[0]
		specs = append(specs, StepSpec{
			Tool:        tools.ToolListing,
			Description: "Show the best matching listing",
			Parameters:  map[string]any{"project_id": topListing},
		})
	}

	if extra, ok := augmentations[persona]; ok && c.registry.Has(extra) {
		params := map[string]any{
			"command": req.Command,
			"subject": req.subject(),
			"persona": string(persona),
		}
		if topListing != "" {
			params["project_id"] = topListing
		}
		specs = append(specs, StepSpec{
			Tool:        extra,
			Description: fmt.Sprintf("Add %s insight", strings.ToLower(string(persona))),
			Parameters:  params,
		})
	}

	return Build(ModeFanOut, req, specs, c.registry)
}

func (c *Compiler) compileLead(req Request) (*Plan, error) {
	specs := []StepSpec{
		{
			Tool:        tools.ToolInvestigate,
			Description: "Investigate lead",
			Parameters:  map[string]any{"name": req.subject()},
			Forward:     ForwardFirstMatch,
		},
		{
			Tool:        tools.ToolEvaluate,
			Description: "Evaluate as buyer",
			Parameters:  map[string]any{},
			Forward:     ForwardBuyerProfile,
		},
		{
			Tool:        tools.ToolMatch,
			Description: "Match properties",
			Parameters:  map[string]any{"limit": 3},
		},
	}
	return Build(ModeSequential, req, specs, c.registry)
}

// CompilePipeline compiles a configured named chain as a sequential plan.
// The first step receives the request subject as "name" and "query".
func (c *Compiler) CompilePipeline(name string, req Request) (*Plan, error) {
	chain, ok := c.pipelines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPipeline, name)
	}

	specs := make([]StepSpec, 0, len(chain))
	for i, raw := range chain {
		tool, err := tools.ParseToolName(raw)
		if err != nil {
			return nil, err
		}
		params := map[string]any{}
		if i == 0 {
			params["name"] = req.subject()
			params["query"] = req.subject()
		}
		specs = append(specs, StepSpec{
			Tool:        tool,
			Description: fmt.Sprintf("%s: %s", name, tool),
			Parameters:  params,
			Forward:     defaultForward[tool],
		})
	}
	// The last step has nobody to forward to.
	if len(specs) > 0 {
		specs[len(specs)-1].Forward = ForwardNone
	}
	return Build(ModeSequential, req, specs, c.registry)
}
