package plan

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rahul/whatsmap/internal/tools"
)

// Persona is the inferred audience of a command.
type Persona string

const (
	PersonaInvestor  Persona = "Investor"
	PersonaHomebuyer Persona = "Homebuyer"
	PersonaBroker    Persona = "Broker"
	PersonaUnknown   Persona = "Unknown"
)

// ParsePersona maps free text onto a Persona. Anything unrecognised is
// ambiguous and resolves to Homebuyer.
func ParsePersona(s string) Persona {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "investor":
		return PersonaInvestor
	case "broker", "agent":
		return PersonaBroker
	case "homebuyer", "home buyer", "buyer":
		return PersonaHomebuyer
	case "unknown":
		return PersonaUnknown
	default:
		return PersonaHomebuyer
	}
}

// Effective is the persona used for policy decisions; Unknown behaves as
// Homebuyer.
func (p Persona) Effective() Persona {
	if p == PersonaUnknown || p == "" {
		return PersonaHomebuyer
	}
	return p
}

// Intent is what the user wants done with the command.
type Intent string

const (
	IntentInformational  Intent = "informational"
	IntentComparison     Intent = "comparison"
	IntentTransactional  Intent = "transactional"
	IntentLeadEnrichment Intent = "lead_enrichment"
)

func ParseIntent(s string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentComparison:
		return IntentComparison
	case IntentTransactional:
		return IntentTransactional
	case IntentLeadEnrichment, "lead", "lead_pipeline":
		return IntentLeadEnrichment
	default:
		return IntentInformational
	}
}

// Mode is fixed at compile time and tells the engine how to run the steps.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeFanOut     Mode = "fanout"
)

// Status represents the lifecycle state of a step.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusComplete
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusComplete:
		return "complete"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText renders the status as its name in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Step represents a single step in a plan.
type Step struct {
	ID          int            `json:"id"`
	Description string         `json:"description"`
	Tool        tools.ToolName `json:"tool"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Forward     Forward        `json:"forward,omitempty"`

	Status    Status    `json:"status"`
	Result    string    `json:"result,omitempty"`
	Err       error     `json:"-"`
	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`

	mu sync.Mutex
}

// Start moves the step from Pending to Running.
func (s *Step) Start() error {
	return s.advance(StatusRunning, "", nil)
}

// Complete moves a running step to Complete with its result.
func (s *Step) Complete(result string) error {
	return s.advance(StatusComplete, result, nil)
}

// Fail moves a running step to Error.
func (s *Step) Fail(err error) error {
	return s.advance(StatusError, "", err)
}

func (s *Step) advance(to Status, result string, stepErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	valid := (s.Status == StatusPending && to == StatusRunning) ||
		(s.Status == StatusRunning && to.Terminal())
	if !valid {
		return fmt.Errorf("step %d: invalid transition %s -> %s", s.ID, s.Status, to)
	}

	s.Status = to
	switch to {
	case StatusRunning:
		s.StartTime = time.Now()
	case StatusComplete:
		s.Result = result
		s.EndTime = time.Now()
	case StatusError:
		s.Err = stepErr
		s.EndTime = time.Now()
	}
	return nil
}

// Snapshot returns the step's status, result and error under the step lock.
func (s *Step) Snapshot() (Status, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status, s.Result, s.Err
}

// Duration returns the step execution duration.
func (s *Step) Duration() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Plan is the compiled, ordered set of steps for one command. The step slice
// and its order never change after Build; only step status and results do.
type Plan struct {
	ID      string  `json:"id"`
	Mode    Mode    `json:"mode"`
	Persona Persona `json:"persona"`
	Intent  Intent  `json:"intent"`
	Command string  `json:"command"`
	Steps   []*Step `json:"steps"`
}

// ToolNames lists the step tools in plan order.
func (p *Plan) ToolNames() []tools.ToolName {
	names := make([]tools.ToolName, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Tool
	}
	return names
}

// CountByStatus returns how many steps are in the given status.
func (p *Plan) CountByStatus(status Status) int {
	n := 0
	for _, s := range p.Steps {
		if st, _, _ := s.Snapshot(); st == status {
			n++
		}
	}
	return n
}

func newPlanID() string {
	return "plan_" + uuid.NewString()
}
