// Package supervisor routes a query to one or more agent units and merges
// their answers.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/KamdynS/payroll-agents/agent/aggregate"
	"github.com/KamdynS/payroll-agents/agent/catalog"
	core "github.com/KamdynS/payroll-agents/agent/core"
	"github.com/KamdynS/payroll-agents/agent/reasoning"
	"github.com/KamdynS/payroll-agents/agent/relevance"
	"github.com/KamdynS/payroll-agents/llm"
	"github.com/KamdynS/payroll-agents/logging"
	"github.com/KamdynS/payroll-agents/memory"
	obs "github.com/KamdynS/payroll-agents/observability"
)

// AggregatorName names the assistant messages written for multi-agent turns.
const AggregatorName = "aggregator"

// ConversationPrompt leads conversations persisted by multi-agent turns.
const ConversationPrompt = "You are a payroll assistant coordinating tax, compliance, research, " +
	"data and general reasoning specialists."

// Request is one user turn.
type Request struct {
	Query        string
	Conversation Conversation
	// Force names an agent to answer directly, skipping analysis and
	// aggregation. Empty means route normally.
	Force     catalog.Type
	UserID    string
	CompanyID string
}

// Response is the orchestrator's answer.
type Response struct {
	Text           string
	AgentType      catalog.Type
	AgentName      string
	ConversationID string
	// Contributions holds one entry per unit invoked, in display order.
	Contributions []aggregate.Contribution
	// Plan is nil on the forced path.
	Plan        *relevance.Plan
	Degraded    bool
	Synthesized bool
}

// Options configures an Orchestrator.
type Options struct {
	Catalog    *catalog.Catalog
	Analyzer   relevance.Analyzer
	Aggregator *aggregate.Aggregator
	// Deps are handed to every unit the orchestrator builds.
	Deps core.Deps
	// Policy supplies the fallback plan used when analysis chooses nothing
	// runnable. The zero value means relevance.DefaultPolicy.
	Policy relevance.Policy
	// UnitTimeout bounds each unit's Answer call.
	UnitTimeout time.Duration
	// AnalyzerTimeout bounds relevance analysis. Zero means no bound beyond
	// the request context.
	AnalyzerTimeout time.Duration
}

// Orchestrator is safe for concurrent use. Units are built per request and
// never shared between requests.
type Orchestrator struct {
	catalog    *catalog.Catalog
	analyzer   relevance.Analyzer
	aggregator *aggregate.Aggregator
	deps       core.Deps
	policy     relevance.Policy
	timeout    time.Duration
	atimeout   time.Duration
	log        *zap.Logger

	active atomic.Int64
}

// New builds an orchestrator. A nil Catalog means the built-in catalog; a nil
// Analyzer means keyword analysis with opts.Policy. A policy whose default
// agent is missing from the catalog falls back to relevance.DefaultPolicy.
func New(opts Options) *Orchestrator {
	cat := opts.Catalog
	if cat == nil {
		cat = catalog.New()
	}
	policy := opts.Policy
	if policy == (relevance.Policy{}) {
		policy = relevance.DefaultPolicy()
	}
	if _, ok := cat.Get(policy.FallbackPlan().Chosen[0]); !ok {
		policy.Default = catalog.Default
	}
	analyzer := opts.Analyzer
	if analyzer == nil {
		analyzer = relevance.NewKeywordAnalyzer(cat, policy)
	}
	agg := opts.Aggregator
	if agg == nil {
		agg = &aggregate.Aggregator{Logger: opts.Deps.Logger}
	}
	return &Orchestrator{
		catalog:    cat,
		analyzer:   analyzer,
		aggregator: agg,
		deps:       opts.Deps,
		policy:     policy,
		timeout:    opts.UnitTimeout,
		atimeout:   opts.AnalyzerTimeout,
		log:        logging.OrNop(opts.Deps.Logger),
	}
}

// Catalog returns the agent descriptors in catalog order.
func (o *Orchestrator) Catalog() []catalog.Descriptor { return o.catalog.Descriptors() }

// Process answers one turn. It never fails: every internal error becomes a
// failed contribution, a fallback plan or the degraded answer.
func (o *Orchestrator) Process(ctx context.Context, req Request) Response {
	span, ctx := obs.TracerImpl.StartSpan(ctx, "orchestrator.process")
	defer span.End()

	log := o.log.With(zap.Stringer("conversation", req.Conversation))
	if id, ok := obs.RequestIDFromContext(ctx); ok {
		log = log.With(zap.String(logging.FieldRequestID, id))
	}

	var resp Response
	entry, forced := o.catalog.Get(req.Force)
	switch {
	case forced:
		obs.MetricsImpl.IncrementRequests(map[string]string{"path": "forced"})
		resp = o.forced(ctx, req, entry)
	default:
		if req.Force != "" {
			log.Warn("ignoring unknown forced agent", zap.String(logging.FieldAgent, string(req.Force)))
		}
		obs.MetricsImpl.IncrementRequests(map[string]string{"path": "planned"})
		resp = o.planned(ctx, req, log)
	}

	span.SetAttribute(obs.AttrConversationID, resp.ConversationID)
	span.SetAttribute(obs.AttrAgentType, string(resp.AgentType))
	if resp.Degraded {
		span.SetStatus(obs.StatusCodeError, "all agents failed")
	} else {
		span.SetStatus(obs.StatusCodeOk, "")
	}
	log.Info("query processed",
		zap.String(logging.FieldConversationID, resp.ConversationID),
		zap.String(logging.FieldAgent, string(resp.AgentType)),
		zap.Int("contributions", len(resp.Contributions)),
		zap.Bool("degraded", resp.Degraded))
	return resp
}

func (o *Orchestrator) forced(ctx context.Context, req Request, entry catalog.Entry) Response {
	unit := o.unit(ctx, entry, core.Config{Memory: true, ConversationID: req.Conversation.ID(), UserID: req.UserID})
	reply := o.answer(ctx, unit, req.Query)

	confidence := 1.0
	if !reply.OK() {
		confidence = 0
	}
	c := contribution(entry, reply, confidence)
	resp := Response{
		Text:           reply.Text,
		AgentType:      entry.Type,
		AgentName:      entry.DisplayName,
		ConversationID: o.conversationID(req, reply),
		Contributions:  []aggregate.Contribution{c},
	}
	if !reply.OK() {
		resp.Text = aggregate.DegradedText
		resp.Degraded = true
	}
	return resp
}

func (o *Orchestrator) planned(ctx context.Context, req Request, log *zap.Logger) Response {
	actx := ctx
	if o.atimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, o.atimeout)
		defer cancel()
	}
	plan := o.analyzer.Analyze(actx, req.Query)
	if len(plan.Chosen) == 0 {
		plan = o.policy.FallbackPlan()
	}
	if plan.Fallback {
		log.Warn("relevance analysis unavailable, routing to default agent")
	}
	obs.MetricsImpl.ObservePlan(len(plan.Chosen), plan.Fallback)

	entries := make([]catalog.Entry, 0, len(plan.Chosen))
	for _, t := range plan.Chosen {
		if e, ok := o.catalog.Get(t); ok {
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		plan = o.policy.FallbackPlan()
		entries = append(entries, o.catalog.MustGet(plan.Chosen[0]))
	}

	if len(entries) == 1 {
		return o.single(ctx, req, entries[0], plan)
	}
	return o.multi(ctx, req, entries, plan, log)
}

// single runs the only chosen unit with its own memory.
func (o *Orchestrator) single(ctx context.Context, req Request, entry catalog.Entry, plan relevance.Plan) Response {
	unit := o.unit(ctx, entry, core.Config{Memory: true, ConversationID: req.Conversation.ID(), UserID: req.UserID})
	reply := o.answer(ctx, unit, req.Query)
	c := contribution(entry, reply, plan.Scores[entry.Type].Score)

	res := o.aggregator.Aggregate(ctx, req.Query, []aggregate.Contribution{c})
	return Response{
		Text:           res.FinalText,
		AgentType:      entry.Type,
		AgentName:      entry.DisplayName,
		ConversationID: o.conversationID(req, reply),
		Contributions:  res.Contributions,
		Plan:           &plan,
		Degraded:       res.Degraded,
	}
}

// multi fans out to every chosen unit. Units share a seed history and run
// without memory; the orchestrator persists the turn once.
func (o *Orchestrator) multi(ctx context.Context, req Request, entries []catalog.Entry, plan relevance.Plan, log *zap.Logger) Response {
	history, convID := o.loadHistory(ctx, req.Conversation, log)

	units := make([]core.Answerer, len(entries))
	for i, e := range entries {
		units[i] = o.unit(ctx, e, core.Config{UserID: req.UserID, History: history})
	}

	o.active.Add(int64(len(units)))
	obs.MetricsImpl.SetActiveAgents(int(o.active.Load()))
	replies := fanOut(ctx, req.Query, units)
	obs.MetricsImpl.SetActiveAgents(int(o.active.Add(-int64(len(units)))))

	contributions := make([]aggregate.Contribution, len(entries))
	for i, e := range entries {
		contributions[i] = contribution(e, replies[i], plan.Scores[e.Type].Score)
	}
	res := o.aggregator.Aggregate(ctx, req.Query, contributions)

	resp := Response{
		Text:          res.FinalText,
		Contributions: res.Contributions,
		Plan:          &plan,
		Degraded:      res.Degraded,
		Synthesized:   res.Synthesized,
	}
	if top, ok := firstSucceeded(res.Contributions); ok {
		resp.AgentType, resp.AgentName = top.AgentType, top.AgentName
	} else {
		resp.AgentType, resp.AgentName = res.Contributions[0].AgentType, res.Contributions[0].AgentName
	}

	resp.ConversationID = convID
	if !res.Degraded {
		resp.ConversationID = o.saveTurn(ctx, req, convID, history, res, log)
	}
	return resp
}

func (o *Orchestrator) unit(ctx context.Context, e catalog.Entry, cfg core.Config) *core.Unit {
	cfg.Name = string(e.Type)
	cfg.SystemPrompt = e.SystemPrompt
	cfg.Model = e.Model
	cfg.Temperature = e.Temperature
	cfg.MaxTokens = e.MaxTokens
	cfg.Tools = e.Tools
	cfg.Timeout = o.timeout
	return core.New(ctx, cfg, o.deps)
}

func (o *Orchestrator) answer(ctx context.Context, u core.Answerer, query string) core.Reply {
	obs.MetricsImpl.SetActiveAgents(int(o.active.Add(1)))
	defer func() { obs.MetricsImpl.SetActiveAgents(int(o.active.Add(-1))) }()
	return u.Answer(ctx, query)
}

// conversationID prefers the id the unit saved under. A failed turn on an
// existing conversation keeps the caller's id.
func (o *Orchestrator) conversationID(req Request, reply core.Reply) string {
	if reply.ConversationID != "" {
		return reply.ConversationID
	}
	return req.Conversation.ID()
}

// loadHistory returns the stored turns without the system message, and the
// id they were loaded from. Missing or unreadable conversations start fresh.
func (o *Orchestrator) loadHistory(ctx context.Context, conv Conversation, log *zap.Logger) ([]memory.Message, string) {
	if conv.IsNew() || o.deps.Store == nil {
		return nil, ""
	}
	msgs, err := o.deps.Store.Load(ctx, conv.ID())
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			log.Info("conversation not found, starting fresh")
		} else {
			log.Warn("failed to load conversation, starting fresh", zap.Error(err))
		}
		return nil, ""
	}
	out := msgs[:0:0]
	for _, m := range msgs {
		if m.Role != llm.RoleSystem {
			out = append(out, m)
		}
	}
	return out, conv.ID()
}

// saveTurn persists system + prior turns + this turn and returns the id the
// conversation is stored under. Save errors are logged only.
func (o *Orchestrator) saveTurn(ctx context.Context, req Request, convID string, history []memory.Message, res aggregate.Result, log *zap.Logger) string {
	if o.deps.Store == nil {
		return convID
	}
	now := time.Now().Unix()
	msgs := make([]memory.Message, 0, len(history)+3)
	msgs = append(msgs, memory.Message{Role: llm.RoleSystem, Content: ConversationPrompt, Timestamp: now})
	msgs = append(msgs, history...)
	msgs = append(msgs,
		memory.Message{Role: llm.RoleUser, Content: req.Query, Timestamp: now},
		memory.Message{
			Role:      llm.RoleAssistant,
			Content:   res.FinalText,
			Name:      AggregatorName,
			Timestamp: now,
			Meta:      map[string]string{"agents": agentList(res.Contributions)},
		},
	)

	if convID != "" {
		err := o.deps.Store.Update(ctx, convID, msgs)
		if err == nil {
			return convID
		}
		if !errors.Is(err, memory.ErrNotFound) {
			log.Warn("failed to update conversation", zap.String(logging.FieldConversationID, convID), zap.Error(err))
			return convID
		}
	}
	meta := map[string]string{"agent": AggregatorName}
	if req.CompanyID != "" {
		meta["company_id"] = req.CompanyID
	}
	id, err := o.deps.Store.Create(ctx, req.UserID, msgs, meta)
	if err != nil {
		log.Warn("failed to create conversation", zap.Error(err))
		return convID
	}
	return id
}

func contribution(e catalog.Entry, reply core.Reply, confidence float64) aggregate.Contribution {
	c := aggregate.Contribution{
		AgentType:  e.Type,
		AgentName:  e.DisplayName,
		Confidence: relevance.Clamp(confidence),
	}
	if !reply.OK() {
		c.Failed = true
		c.Confidence = 0
		c.Error = reply.Err.Error()
		c.Response = fmt.Sprintf("%s was unable to answer this question.", e.DisplayName)
		return c
	}
	c.Response = reply.Text
	if steps := reasoning.Steps(reply.Text); len(steps) > 1 {
		c.ReasoningSteps = steps
	}
	return c
}

func firstSucceeded(cs []aggregate.Contribution) (aggregate.Contribution, bool) {
	for _, c := range cs {
		if !c.Failed {
			return c, true
		}
	}
	return aggregate.Contribution{}, false
}

func agentList(cs []aggregate.Contribution) string {
	names := make([]string, 0, len(cs))
	for _, c := range cs {
		if !c.Failed {
			names = append(names, string(c.AgentType))
		}
	}
	return strings.Join(names, ",")
}
