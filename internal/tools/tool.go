package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rahul/whatsmap/internal/apperr"
)

// ToolName is the closed set of capability identifiers a plan may reference.
type ToolName string

const (
	ToolSummary          ToolName = "summary"
	ToolListing          ToolName = "listing"
	ToolFinancialSummary ToolName = "financial_summary"
	ToolBrokerTools      ToolName = "broker_tools"
	ToolLifestyleScore   ToolName = "lifestyle_score"
	ToolInvestigate      ToolName = "investigate"
	ToolEvaluate         ToolName = "evaluate"
	ToolMatch            ToolName = "match"
)

var knownTools = map[ToolName]bool{
	ToolSummary:          true,
	ToolListing:          true,
	ToolFinancialSummary: true,
	ToolBrokerTools:      true,
	ToolLifestyleScore:   true,
	ToolInvestigate:      true,
	ToolEvaluate:         true,
	ToolMatch:            true,
}

// ParseToolName converts an external string (config, model output) into a
// ToolName. Names outside the closed set fail with an UnknownTool error.
func ParseToolName(s string) (ToolName, error) {
	n := ToolName(s)
	if !knownTools[n] {
		return "", apperr.NewUnknownTool(s)
	}
	return n, nil
}

// Tool defines the interface for all briefing capabilities.
// Input and output are JSON documents.
type Tool interface {
	Name() ToolName
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Execute(ctx context.Context, input string) (string, error)
}

var (
	ErrToolAlreadyRegistered = errors.New("tool already registered")
	ErrRegistrySealed        = errors.New("registry is sealed")
)

// Registry maps tool names to capabilities. It is filled once at boot and
// sealed before serving; after Seal it is read-only and safe for concurrent
// lookups without locking.
type Registry struct {
	tools  map[ToolName]Tool
	sealed bool
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[ToolName]Tool),
	}
}

func (r *Registry) Register(t Tool) error {
	if r.sealed {
		return fmt.Errorf("%w: cannot register %s", ErrRegistrySealed, t.Name())
	}
	if !knownTools[t.Name()] {
		return apperr.NewUnknownTool(string(t.Name()))
	}
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// MustRegister registers a tool and panics on error.
// Use this for static tool registration at boot.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", t.Name(), err))
	}
}

// Seal freezes the registry.
func (r *Registry) Seal() {
	r.sealed = true
}

func (r *Registry) Sealed() bool {
	return r.sealed
}

// Resolve returns the capability registered under name.
func (r *Registry) Resolve(name ToolName) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, apperr.NewUnknownTool(string(name))
	}
	return t, nil
}

func (r *Registry) Has(name ToolName) bool {
	_, ok := r.tools[name]
	return ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []ToolName {
	names := make([]ToolName, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
