package governance

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rahul/whatsmap/internal/tools"
)

// Effect is what the engine must do with a capability call.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request is one capability call about to be made for a plan step.
type Request struct {
	Tool   tools.ToolName
	Input  string
	PlanID string
}

// Decision is the outcome of checking a Request.
type Decision struct {
	Effect Effect
	Reason string
}

// PolicyEngine decides whether a capability call may run.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Decision, error)
}

// inputRule blocks any call whose JSON input matches pattern. Scoped rules
// apply only to the listed capabilities.
type inputRule struct {
	pattern *regexp.Regexp
	scope   map[tools.ToolName]struct{}
}

func (r inputRule) covers(name tools.ToolName) bool {
	if len(r.scope) == 0 {
		return true
	}
	_, ok := r.scope[name]
	return ok
}

// CapabilityPolicy switches capabilities off by configuration and keeps
// personal identifiers out of capability inputs. The zero value allows
// everything.
type CapabilityPolicy struct {
	disabled map[tools.ToolName]struct{}
	rules    []inputRule
}

// NewCapabilityPolicy builds a policy from the governance config. Disabled
// names must be known capabilities; blocked inputs are regular expressions.
func NewCapabilityPolicy(disabled, blockedInputs []string) (*CapabilityPolicy, error) {
	p := &CapabilityPolicy{}
	for _, raw := range disabled {
		name, err := tools.ParseToolName(raw)
		if err != nil {
			return nil, fmt.Errorf("governance: cannot disable %q: %w", raw, err)
		}
		p.Disable(name)
	}
	for _, pattern := range blockedInputs {
		if err := p.BlockInput(pattern); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Disable turns a capability off for every plan.
func (p *CapabilityPolicy) Disable(name tools.ToolName) {
	if p.disabled == nil {
		p.disabled = make(map[tools.ToolName]struct{})
	}
	p.disabled[name] = struct{}{}
}

// BlockInput rejects calls whose input matches pattern. With no names the
// rule covers every capability.
func (p *CapabilityPolicy) BlockInput(pattern string, names ...tools.ToolName) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("governance: invalid input pattern %q: %w", pattern, err)
	}
	rule := inputRule{pattern: re}
	if len(names) > 0 {
		rule.scope = make(map[tools.ToolName]struct{}, len(names))
		for _, n := range names {
			rule.scope[n] = struct{}{}
		}
	}
	p.rules = append(p.rules, rule)
	return nil
}

func (p *CapabilityPolicy) Evaluate(ctx context.Context, req Request) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	if _, off := p.disabled[req.Tool]; off {
		return Decision{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("capability %s disabled by configuration", req.Tool),
		}, nil
	}

	for _, rule := range p.rules {
		if rule.covers(req.Tool) && rule.pattern.MatchString(req.Input) {
			return Decision{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("input to %s matches blocked pattern %s", req.Tool, rule.pattern),
			}, nil
		}
	}

	return Decision{Effect: EffectAllow}, nil
}
