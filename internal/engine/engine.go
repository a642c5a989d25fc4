package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rahul/whatsmap/internal/apperr"
	"github.com/rahul/whatsmap/internal/governance"
	"github.com/rahul/whatsmap/internal/observability"
	"github.com/rahul/whatsmap/internal/plan"
	"github.com/rahul/whatsmap/internal/tools"
)

const (
	DefaultFanOutLimit = 8
	DefaultStepTimeout = 20 * time.Second
)

var (
	ErrInvalidOutput = errors.New("capability returned invalid JSON")
	ErrPolicyDenied  = errors.New("denied by policy")
)

// Engine runs compiled plans against the tool registry. It holds no
// per-request state and may be shared across concurrent requests.
type Engine struct {
	registry    *tools.Registry
	policy      governance.PolicyEngine
	logger      *observability.Logger
	metrics     *observability.Metrics
	fanOutLimit int
	stepTimeout time.Duration
}

type Option func(*Engine)

func WithPolicy(p governance.PolicyEngine) Option {
	return func(e *Engine) { e.policy = p }
}

func WithLogger(l *observability.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithFanOutLimit caps concurrent capability calls in a fan-out plan.
// Values below 1 keep the default.
func WithFanOutLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.fanOutLimit = n
		}
	}
}

// WithStepTimeout bounds each capability call. Zero keeps the default.
func WithStepTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.stepTimeout = d
		}
	}
}

func New(registry *tools.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:    registry,
		policy:      &governance.CapabilityPolicy{},
		logger:      observability.NewNopLogger(),
		metrics:     observability.NewNopMetrics(),
		fanOutLimit: DefaultFanOutLimit,
		stepTimeout: DefaultStepTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes p in the mode it was compiled with.
//
// Sequential plans stop at the first failing step and return a PlanHalted
// error carrying that step's index; later steps stay Pending. Fan-out plans
// run every step and always return nil once all have settled; failures are
// recorded on the steps themselves.
func (e *Engine) Run(ctx context.Context, p *plan.Plan) error {
	var err error
	switch p.Mode {
	case plan.ModeSequential:
		err = e.runSequential(ctx, p)
	case plan.ModeFanOut:
		e.runFanOut(ctx, p)
	default:
		err = fmt.Errorf("plan %s: unsupported mode %q", p.ID, p.Mode)
	}

	complete := p.CountByStatus(plan.StatusComplete) == len(p.Steps)
	e.metrics.PlanRuns.WithLabelValues(string(p.Mode), strconv.FormatBool(complete)).Inc()
	return err
}

func (e *Engine) runSequential(ctx context.Context, p *plan.Plan) error {
	var forwarded map[string]any

	for i, step := range p.Steps {
		input, err := step.Input(forwarded)
		if err != nil {
			return apperr.NewPlanHalted(i, string(step.Tool), err)
		}
		if err := step.Start(); err != nil {
			return apperr.NewPlanHalted(i, string(step.Tool), err)
		}
		e.logger.LogStep(p.ID, step.ID, string(step.Tool), plan.StatusRunning.String(), nil)

		result, err := e.invoke(ctx, p.ID, step, input)
		if err == nil {
			// Narrow before completing so an empty hand-off fails the
			// producing step and the consumer never starts.
			forwarded, err = step.Forward.Apply(result)
			if err != nil {
				err = fmt.Errorf("%s produced nothing to hand on: %w", step.Tool, err)
			}
		}
		if err != nil {
			capErr := apperr.NewCapabilityError(string(step.Tool), err)
			e.settle(p.ID, step, "", capErr)
			return apperr.NewPlanHalted(i, string(step.Tool), capErr)
		}
		e.settle(p.ID, step, result, nil)
	}
	return nil
}

func (e *Engine) runFanOut(ctx context.Context, p *plan.Plan) {
	limit := min(len(p.Steps), e.fanOutLimit)

	var g errgroup.Group
	g.SetLimit(max(limit, 1))

	for _, step := range p.Steps {
		g.Go(func() error {
			input, err := step.Input(nil)
			if err == nil {
				err = step.Start()
			}
			if err != nil {
				e.logger.Zap().Error("step could not start", zap.String("plan_id", p.ID), zap.Int("step", step.ID), zap.Error(err))
				return nil
			}
			e.logger.LogStep(p.ID, step.ID, string(step.Tool), plan.StatusRunning.String(), nil)

			result, err := e.invoke(ctx, p.ID, step, input)
			if err != nil {
				e.settle(p.ID, step, "", apperr.NewCapabilityError(string(step.Tool), err))
				return nil
			}
			e.settle(p.ID, step, result, nil)
			return nil
		})
	}
	// Goroutines never return an error; siblings are isolated.
	_ = g.Wait()
}

// invoke makes one capability call under the policy check and step timeout.
func (e *Engine) invoke(ctx context.Context, planID string, step *plan.Step, input string) (result string, err error) {
	tool, err := e.registry.Resolve(step.Tool)
	if err != nil {
		return "", err
	}

	decision, err := e.policy.Evaluate(ctx, governance.Request{
		Tool:   step.Tool,
		Input:  input,
		PlanID: planID,
	})
	if err != nil {
		return "", fmt.Errorf("policy evaluation failed: %w", err)
	}
	e.logger.LogPolicyCheck(planID, string(step.Tool), string(decision.Effect), decision.Reason)
	if decision.Effect == governance.EffectDeny {
		return "", fmt.Errorf("%w: %s", ErrPolicyDenied, decision.Reason)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()

	e.metrics.InFlightSteps.Inc()
	defer e.metrics.InFlightSteps.Dec()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("capability panicked: %v", r)
		}
	}()

	e.logger.LogToolCall(planID, string(step.Tool), input)
	start := time.Now()
	out, err := tool.Execute(callCtx, input)
	e.logger.LogToolResult(planID, string(step.Tool), time.Since(start), out)
	if err != nil {
		return "", err
	}
	if !json.Valid([]byte(out)) {
		return "", ErrInvalidOutput
	}
	return out, nil
}

// settle moves a running step to its terminal state and records it.
func (e *Engine) settle(planID string, step *plan.Step, result string, stepErr error) {
	var err error
	if stepErr != nil {
		err = step.Fail(stepErr)
	} else {
		err = step.Complete(result)
	}
	if err != nil {
		e.logger.Zap().Error("step transition rejected", zap.String("plan_id", planID), zap.Int("step", step.ID), zap.Error(err))
		return
	}

	status, _, _ := step.Snapshot()
	e.logger.LogStep(planID, step.ID, string(step.Tool), status.String(), stepErr)
	e.metrics.ObserveStep(string(step.Tool), status.String(), step.Duration())
}
