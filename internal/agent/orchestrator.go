package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rahul/whatsmap/internal/apperr"
	"github.com/rahul/whatsmap/internal/briefing"
	"github.com/rahul/whatsmap/internal/classify"
	"github.com/rahul/whatsmap/internal/engine"
	"github.com/rahul/whatsmap/internal/observability"
	"github.com/rahul/whatsmap/internal/plan"
	"github.com/rahul/whatsmap/internal/store"
)

const (
	DefaultRequestTimeout = 60 * time.Second
	listingSearchLimit    = 3
)

// Submitter turns a command into a briefing or a failure report.
// Gateways depend on this rather than on the orchestrator.
type Submitter interface {
	Submit(ctx context.Context, chatID, text string) *Response
}

// Classifier infers persona and intent. *classify.Classifier satisfies it.
type Classifier interface {
	Classify(ctx context.Context, chatID, text string) (classify.Result, error)
}

// ListingSearch finds catalog projects a command refers to.
type ListingSearch interface {
	Search(ctx context.Context, query string, limit int) ([]store.Project, error)
}

// FailureReport is what the caller gets when no complete briefing exists.
// FailedStepIndex is the zero-based plan position, or -1 when the request
// failed before any step ran. PartialBriefing is set for fan-out plans only.
type FailureReport struct {
	Kind            apperr.Kind        `json:"kind"`
	FailedStepIndex int                `json:"failedStepIndex"`
	Error           string             `json:"error"`
	PartialBriefing *briefing.Briefing `json:"partialBriefing,omitempty"`
}

// Response carries exactly one of Briefing or Failure.
type Response struct {
	Briefing *briefing.Briefing
	Failure  *FailureReport
	Plan     *plan.Plan
}

func (r *Response) OK() bool {
	return r.Failure == nil && r.Briefing != nil
}

func (r *Response) MarshalJSON() ([]byte, error) {
	if r.OK() {
		return json.Marshal(struct {
			OK       bool               `json:"ok"`
			Briefing *briefing.Briefing `json:"briefing"`
		}{true, r.Briefing})
	}
	return json.Marshal(struct {
		OK bool `json:"ok"`
		*FailureReport
	}{false, r.Failure})
}

// Orchestrator runs one command end to end: classify, find listings,
// compile, execute, assemble.
type Orchestrator struct {
	classifier     Classifier
	listings       ListingSearch
	compiler       *plan.Compiler
	engine         *engine.Engine
	logger         *observability.Logger
	metrics        *observability.Metrics
	requestTimeout time.Duration
}

type Option func(*Orchestrator)

func WithLogger(l *observability.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

func NewOrchestrator(classifier Classifier, listings ListingSearch, compiler *plan.Compiler, eng *engine.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		classifier:     classifier,
		listings:       listings,
		compiler:       compiler,
		engine:         eng,
		logger:         observability.NewNopLogger(),
		metrics:        observability.NewNopMetrics(),
		requestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit classifies text and runs the plan it compiles to.
func (o *Orchestrator) Submit(ctx context.Context, chatID, text string) *Response {
	ctx, cancel := context.WithTimeout(ctx, o.requestTimeout)
	defer cancel()

	res, err := o.classifier.Classify(ctx, chatID, text)
	if err != nil {
		return o.fail(chatID, nil, err, nil)
	}
	o.metrics.Classification.WithLabelValues(string(res.Persona), string(res.Intent)).Inc()

	req := plan.Request{
		Persona: res.Persona,
		Intent:  res.Intent,
		Command: text,
		Subject: res.Subject,
	}
	if req.Intent != plan.IntentLeadEnrichment {
		req.Listings = o.findListings(ctx, chatID, req)
	}

	p, err := o.compiler.Compile(req)
	if err != nil {
		return o.fail(chatID, nil, err, nil)
	}
	return o.execute(ctx, chatID, p)
}

// Enrich runs the lead pipeline for a named person without classification.
func (o *Orchestrator) Enrich(ctx context.Context, chatID, name string) *Response {
	ctx, cancel := context.WithTimeout(ctx, o.requestTimeout)
	defer cancel()

	p, err := o.compiler.Compile(plan.Request{
		Persona: plan.PersonaBroker,
		Intent:  plan.IntentLeadEnrichment,
		Command: "enrich lead " + name,
		Subject: name,
	})
	if err != nil {
		return o.fail(chatID, nil, err, nil)
	}
	return o.execute(ctx, chatID, p)
}

// RunPipeline runs a configured named pipeline on subject.
func (o *Orchestrator) RunPipeline(ctx context.Context, chatID, pipeline, subject string) *Response {
	ctx, cancel := context.WithTimeout(ctx, o.requestTimeout)
	defer cancel()

	p, err := o.compiler.CompilePipeline(pipeline, plan.Request{
		Persona: plan.PersonaBroker,
		Intent:  plan.IntentLeadEnrichment,
		Command: pipeline + " " + subject,
		Subject: subject,
	})
	if err != nil {
		return o.fail(chatID, nil, err, nil)
	}
	return o.execute(ctx, chatID, p)
}

// findListings looks the command up in the catalog. A failed lookup means no
// listing block, not a failed request.
func (o *Orchestrator) findListings(ctx context.Context, chatID string, req plan.Request) []string {
	query := req.Subject
	if strings.TrimSpace(query) == "" {
		query = req.Command
	}
	projects, err := o.listings.Search(ctx, query, listingSearchLimit)
	if err != nil {
		o.logger.Zap().Warn("listing search failed", zap.String("chat_id", chatID), zap.Error(err))
		return nil
	}
	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	return ids
}

func (o *Orchestrator) execute(ctx context.Context, chatID string, p *plan.Plan) *Response {
	names := make([]string, len(p.Steps))
	for i, n := range p.ToolNames() {
		names[i] = string(n)
	}
	o.logger.LogPlan(chatID, p.ID, string(p.Mode), names)

	if err := o.engine.Run(ctx, p); err != nil {
		return o.fail(chatID, p, err, nil)
	}

	b := briefing.Assemble(p.Persona.Effective(), p.Steps)
	if p.Mode == plan.ModeFanOut && !b.Complete() {
		for i, step := range p.Steps {
			status, _, stepErr := step.Snapshot()
			if status != plan.StatusError {
				continue
			}
			var ae *apperr.Error
			if !errors.As(stepErr, &ae) {
				ae = apperr.NewCapabilityError(string(step.Tool), stepErr)
			}
			return o.fail(chatID, p, ae.AtStep(i), b)
		}
	}

	o.metrics.Submissions.WithLabelValues("ok").Inc()
	return &Response{Briefing: b, Plan: p}
}

func (o *Orchestrator) fail(chatID string, p *plan.Plan, err error, partial *briefing.Briefing) *Response {
	kind := apperr.KindOf(err)
	if kind == "" {
		kind = apperr.KindInternal
	}
	o.metrics.Submissions.WithLabelValues(string(kind)).Inc()

	planID := ""
	if p != nil {
		planID = p.ID
	}
	o.logger.Zap().Warn("command failed",
		zap.String("chat_id", chatID),
		zap.String("plan_id", planID),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)

	return &Response{
		Plan: p,
		Failure: &FailureReport{
			Kind:            kind,
			FailedStepIndex: apperr.StepIndexOf(err),
			Error:           err.Error(),
			PartialBriefing: partial,
		},
	}
}

// String summarises a response for logs.
func (r *Response) String() string {
	if r.OK() {
		return fmt.Sprintf("briefing for %s with %d blocks", r.Briefing.InferredPersona, len(r.Briefing.ContentBlocks))
	}
	return fmt.Sprintf("failed (%s) at step %d: %s", r.Failure.Kind, r.Failure.FailedStepIndex, r.Failure.Error)
}
