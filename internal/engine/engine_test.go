package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rahul/whatsmap/internal/apperr"
	"github.com/rahul/whatsmap/internal/governance"
	"github.com/rahul/whatsmap/internal/plan"
	"github.com/rahul/whatsmap/internal/tools"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTool struct {
	name  tools.ToolName
	calls atomic.Int32
	exec  func(ctx context.Context, input string) (string, error)
}

func (f *fakeTool) Name() tools.ToolName       { return f.name }
func (f *fakeTool) Description() string        { return "fake " + string(f.name) }
func (f *fakeTool) Parameters() map[string]any { return map[string]any{"type": "object"} }

func (f *fakeTool) Execute(ctx context.Context, input string) (string, error) {
	f.calls.Add(1)
	return f.exec(ctx, input)
}

func returns(out string) func(context.Context, string) (string, error) {
	return func(context.Context, string) (string, error) { return out, nil }
}

func newRegistry(t *testing.T, ts ...*fakeTool) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	for _, ft := range ts {
		require.NoError(t, reg.Register(ft))
	}
	reg.Seal()
	return reg
}

func leadPlan(t *testing.T, reg *tools.Registry) *plan.Plan {
	t.Helper()
	p, err := plan.NewCompiler(reg).Compile(plan.Request{
		Persona: plan.PersonaBroker,
		Intent:  plan.IntentLeadEnrichment,
		Command: "enrich lead John Carter",
		Subject: "John Carter",
	})
	require.NoError(t, err)
	return p
}

func statuses(p *plan.Plan) []plan.Status {
	out := make([]plan.Status, len(p.Steps))
	for i, s := range p.Steps {
		out[i], _, _ = s.Snapshot()
	}
	return out
}

func TestSequential_ZeroMatchesHaltsBeforeEvaluate(t *testing.T) {
	investigate := &fakeTool{name: tools.ToolInvestigate, exec: returns(`{"matches":[],"overall_summary":"nothing found"}`)}
	evaluate := &fakeTool{name: tools.ToolEvaluate, exec: returns(`{}`)}
	match := &fakeTool{name: tools.ToolMatch, exec: returns(`{"matches":[]}`)}
	reg := newRegistry(t, investigate, evaluate, match)

	p := leadPlan(t, reg)
	err := New(reg).Run(context.Background(), p)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrPlanHalted))
	assert.True(t, errors.Is(err, plan.ErrNoMatches))
	assert.Equal(t, 0, apperr.StepIndexOf(err))
	assert.Contains(t, err.Error(), "investigate")

	assert.Equal(t, []plan.Status{plan.StatusError, plan.StatusPending, plan.StatusPending}, statuses(p))
	assert.Zero(t, evaluate.calls.Load(), "evaluate must never run on empty input")
	assert.Zero(t, match.calls.Load())
}

func TestSequential_StepsAfterFailureStayPending(t *testing.T) {
	investigate := &fakeTool{name: tools.ToolInvestigate, exec: returns(`{"matches":[{"name":"John Carter"}]}`)}
	evaluate := &fakeTool{name: tools.ToolEvaluate, exec: func(context.Context, string) (string, error) {
		return "", errors.New("model unavailable")
	}}
	match := &fakeTool{name: tools.ToolMatch, exec: returns(`{"matches":[]}`)}
	reg := newRegistry(t, investigate, evaluate, match)

	p := leadPlan(t, reg)
	err := New(reg).Run(context.Background(), p)

	require.Error(t, err)
	assert.Equal(t, apperr.KindPlanHalted, apperr.KindOf(err))
	assert.Equal(t, 1, apperr.StepIndexOf(err))
	assert.True(t, errors.Is(err, apperr.ErrCapability))

	got := statuses(p)
	for i := range got {
		if got[i] == plan.StatusError {
			for j := i + 1; j < len(got); j++ {
				assert.Equal(t, plan.StatusPending, got[j], "step %d after failed step %d", j, i)
			}
		}
	}
	assert.Zero(t, match.calls.Load())
}

func TestSequential_ForwardsOnlyNarrowedSubset(t *testing.T) {
	var evalInput, matchInput string
	investigate := &fakeTool{name: tools.ToolInvestigate, exec: returns(
		`{"matches":[{"name":"John Carter","company":"Acme"},{"name":"Jon Carter"}],"overall_summary":"two people"}`)}
	evaluate := &fakeTool{name: tools.ToolEvaluate, exec: func(_ context.Context, in string) (string, error) {
		evalInput = in
		return `{"estimated_budget":"AED 3M","property_preferences":["villa"],"primary_motivation":"family","profile_summary":"long text"}`, nil
	}}
	match := &fakeTool{name: tools.ToolMatch, exec: func(_ context.Context, in string) (string, error) {
		matchInput = in
		return `{"matches":[]}`, nil
	}}
	reg := newRegistry(t, investigate, evaluate, match)

	p := leadPlan(t, reg)
	require.NoError(t, New(reg).Run(context.Background(), p))

	assert.Contains(t, evalInput, `"lead":{"name":"John Carter","company":"Acme"}`)
	assert.NotContains(t, evalInput, "Jon Carter")
	assert.NotContains(t, evalInput, "overall_summary")

	assert.Contains(t, matchInput, `"estimated_budget":"AED 3M"`)
	assert.Contains(t, matchInput, `"limit":3`)
	assert.NotContains(t, matchInput, "profile_summary")
	assert.NotContains(t, matchInput, "John Carter")

	assert.Equal(t, []plan.Status{plan.StatusComplete, plan.StatusComplete, plan.StatusComplete}, statuses(p))
}

func TestFanOut_FailureIsIsolated(t *testing.T) {
	summary := &fakeTool{name: tools.ToolSummary, exec: returns(`{"text":"ok"}`)}
	listing := &fakeTool{name: tools.ToolListing, exec: func(context.Context, string) (string, error) {
		return "", errors.New("catalog offline")
	}}
	financial := &fakeTool{name: tools.ToolFinancialSummary, exec: returns(`{"roi":"7%"}`)}
	reg := newRegistry(t, summary, listing, financial)

	p, err := plan.NewCompiler(reg).Compile(plan.Request{
		Persona:  plan.PersonaInvestor,
		Intent:   plan.IntentInformational,
		Command:  "Emaar Beachfront price",
		Listings: []string{"p-1"},
	})
	require.NoError(t, err)

	require.NoError(t, New(reg).Run(context.Background(), p))
	assert.Equal(t, []plan.Status{plan.StatusComplete, plan.StatusError, plan.StatusComplete}, statuses(p))

	_, _, stepErr := p.Steps[1].Snapshot()
	assert.True(t, errors.Is(stepErr, apperr.ErrCapability))
	assert.Equal(t, int32(1), financial.calls.Load())
}

func TestFanOut_RunsStepsConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(3)
	barrier := func(ctx context.Context, _ string) (string, error) {
		started.Done()
		done := make(chan struct{})
		go func() { started.Wait(); close(done) }()
		select {
		case <-done:
			return `{}`, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	a := &fakeTool{name: tools.ToolSummary, exec: barrier}
	b := &fakeTool{name: tools.ToolListing, exec: barrier}
	c := &fakeTool{name: tools.ToolLifestyleScore, exec: barrier}
	reg := newRegistry(t, a, b, c)

	p, err := plan.Build(plan.ModeFanOut, plan.Request{}, []plan.StepSpec{
		{Tool: tools.ToolSummary}, {Tool: tools.ToolListing}, {Tool: tools.ToolLifestyleScore},
	}, reg)
	require.NoError(t, err)

	require.NoError(t, New(reg, WithStepTimeout(2*time.Second)).Run(context.Background(), p))
	assert.Equal(t, 3, p.CountByStatus(plan.StatusComplete))
}

func TestFanOut_RespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	exec := func(context.Context, string) (string, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return `{}`, nil
	}
	summary := &fakeTool{name: tools.ToolSummary, exec: exec}
	reg := newRegistry(t, summary)

	specs := make([]plan.StepSpec, 4)
	for i := range specs {
		specs[i] = plan.StepSpec{Tool: tools.ToolSummary}
	}
	p, err := plan.Build(plan.ModeFanOut, plan.Request{}, specs, reg)
	require.NoError(t, err)

	require.NoError(t, New(reg, WithFanOutLimit(1)).Run(context.Background(), p))
	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, 4, p.CountByStatus(plan.StatusComplete))
}

func TestInvoke_FailureShapes(t *testing.T) {
	tests := []struct {
		name    string
		exec    func(context.Context, string) (string, error)
		policy  governance.PolicyEngine
		wantErr error
	}{
		{
			name:    "invalid json",
			exec:    returns("not json"),
			wantErr: ErrInvalidOutput,
		},
		{
			name: "timeout",
			exec: func(ctx context.Context, _ string) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			},
			wantErr: context.DeadlineExceeded,
		},
		{
			name: "denied",
			exec: returns(`{}`),
			policy: func() governance.PolicyEngine {
				p := &governance.CapabilityPolicy{}
				p.Disable(tools.ToolSummary)
				return p
			}(),
			wantErr: ErrPolicyDenied,
		},
		{
			name: "panic",
			exec: func(context.Context, string) (string, error) {
				panic("boom")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary := &fakeTool{name: tools.ToolSummary, exec: tt.exec}
			reg := newRegistry(t, summary)
			p, err := plan.Build(plan.ModeFanOut, plan.Request{}, []plan.StepSpec{{Tool: tools.ToolSummary}}, reg)
			require.NoError(t, err)

			opts := []Option{WithStepTimeout(20 * time.Millisecond)}
			if tt.policy != nil {
				opts = append(opts, WithPolicy(tt.policy))
			}
			require.NoError(t, New(reg, opts...).Run(context.Background(), p))

			status, result, stepErr := p.Steps[0].Snapshot()
			assert.Equal(t, plan.StatusError, status)
			assert.Empty(t, result)
			require.Error(t, stepErr)
			assert.True(t, errors.Is(stepErr, apperr.ErrCapability))
			if tt.wantErr != nil {
				assert.True(t, errors.Is(stepErr, tt.wantErr), "got %v", stepErr)
			} else {
				assert.True(t, strings.Contains(stepErr.Error(), "panicked"))
			}
		})
	}
}
