// Package supervisor implements the Supervisor ("Queen", C10): the
// component that owns every other component and exposes the single
// outer-facing request pipeline described in spec.md §4.10.
//
// Grounded on the teacher's cmd/octoreflex/main.go for component
// ownership and wiring order, and internal/operator/server.go for the
// command-dispatch shape (a typed Request routed through a switch,
// reused here as the seven-step pipeline rather than a socket
// protocol).
package supervisor

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/omakh-hive/queen/internal/board"
	"github.com/omakh-hive/queen/internal/bus"
	"github.com/omakh-hive/queen/internal/consensus"
	"github.com/omakh-hive/queen/internal/dispatcher"
	"github.com/omakh-hive/queen/internal/lifecycle"
	"github.com/omakh-hive/queen/internal/metrics"
	"github.com/omakh-hive/queen/internal/proposal"
	"github.com/omakh-hive/queen/internal/push"
	"github.com/omakh-hive/queen/internal/registry"
	"github.com/omakh-hive/queen/internal/security"
)

// Request is one inbound operation handed to the Supervisor.
type Request struct {
	// UserIDHash identifies the origin; authentication itself happens
	// upstream of the Supervisor (spec.md §1's out-of-scope list).
	UserIDHash string

	// SessionID groups this request into a bounded conversation
	// history. Empty means no history is tracked for this call.
	SessionID string

	// Text is the natural-language payload, if any, run through
	// Security Pipeline Gates 1-3 before dispatch.
	Text string

	Endpoint security.EndpointClass

	// Workers names the worker(s) to invoke. Empty means no dispatch
	// step — useful for calls that only touch the Board or Proposal
	// Engine.
	Workers  []string
	TaskType string
	Payload  map[string]any
	Parallel bool
}

// Response is the Supervisor's typed result for a Request.
type Response struct {
	SanitizedText string
	WorkerResults []registry.Result
	Decision      *consensus.Decision
	ResponseText  string
	Redactions    []string
}

// Supervisor owns the Registry, Bus, Board, Proposal Engine, Security
// Pipeline, Dispatcher, Consensus Engine, Instance Lifecycle, and
// Push Channel, and drives the seven-step request pipeline over them.
type Supervisor struct {
	bus       bus.Bus
	board     *board.Board
	security  *security.Pipeline
	reg       *registry.Registry
	dispatch  *dispatcher.Dispatcher
	consensus *consensus.Engine
	proposals *proposal.Engine
	lifecycle *lifecycle.Manager
	pushHub   *push.Hub
	decisions *DecisionLog
	sessions  *sessionStore
	metrics *metrics.Metrics
	log     *zap.Logger
}

// Components bundles every dependency New needs. Nil fields disable
// the corresponding pipeline step (e.g. a nil Proposals is valid for
// a deployment that never handles proposal requests).
type Components struct {
	Bus        bus.Bus
	Board      *board.Board
	Security   *security.Pipeline
	Registry   *registry.Registry
	Dispatcher *dispatcher.Dispatcher
	Consensus  *consensus.Engine
	Proposals  *proposal.Engine
	Lifecycle  *lifecycle.Manager
	PushHub    *push.Hub
	Decisions  *DecisionLog
	Metrics    *metrics.Metrics
	Log        *zap.Logger
}

// New assembles a Supervisor from c.
func New(c Components) *Supervisor {
	return &Supervisor{
		bus:       c.Bus,
		board:     c.Board,
		security:  c.Security,
		reg:       c.Registry,
		dispatch:  c.Dispatcher,
		consensus: c.Consensus,
		proposals: c.Proposals,
		lifecycle: c.Lifecycle,
		pushHub:   c.PushHub,
		decisions: c.Decisions,
		sessions:  newSessionStore(),
		metrics:   c.Metrics,
		log:       c.Log,
	}
}

// Boot runs the Instance Lifecycle boot sequence and rehydrates the
// in-memory session store from whatever the recovery scan found.
func (s *Supervisor) Boot(ctx context.Context) error {
	if s.lifecycle == nil {
		return nil
	}
	result, err := s.lifecycle.Boot(ctx)
	if err != nil {
		return err
	}
	s.sessions.Restore(result.Sessions)
	return nil
}

// Shutdown runs the Instance Lifecycle graceful shutdown sequence,
// flushing this Supervisor's own session store as its SessionSource.
func (s *Supervisor) Shutdown(ctx context.Context, markUnhealthy func(), flushLogs lifecycle.LogFlusher) lifecycle.ShutdownReport {
	if s.lifecycle == nil {
		return lifecycle.ShutdownReport{}
	}
	return s.lifecycle.Shutdown(ctx, markUnhealthy,
		func() []lifecycle.PendingOp { return nil },
		s.sessions.Snapshot,
		flushLogs,
	)
}

// Handle runs the seven-step pipeline from spec.md §4.10 over req.
func (s *Supervisor) Handle(ctx context.Context, req Request) (Response, error) {
	var resp Response

	sanitized := req.Text
	if req.Text != "" && s.security != nil {
		gate, err := s.security.Inspect(req.UserIDHash, req.Text, req.Endpoint)
		if err != nil {
			// Gates 1-3 already return a typed *queenerr.Error (Blocked
			// or Quarantined) describing the decision; propagate as-is.
			return resp, err
		}
		sanitized = gate.SanitizedText
		resp.SanitizedText = sanitized
	}

	if req.SessionID != "" && sanitized != "" {
		s.sessions.Append(req.SessionID, req.UserIDHash, "user", sanitized)
	}

	if len(req.Workers) > 0 && s.dispatch != nil {
		task := registry.Task{
			ID:       req.SessionID,
			Type:     req.TaskType,
			Payload:  req.Payload,
			Origin:   req.UserIDHash,
			Parallel: req.Parallel,
		}
		if len(req.Workers) == 1 {
			resp.WorkerResults = []registry.Result{s.dispatch.Route(ctx, req.Workers[0], task)}
		} else {
			resp.WorkerResults = s.dispatch.RouteMulti(ctx, req.Workers, task)
		}
	}

	if len(resp.WorkerResults) > 1 && s.consensus != nil {
		inputs := make(map[string]registry.Result, len(resp.WorkerResults))
		for _, r := range resp.WorkerResults {
			inputs[r.WorkerName] = r
		}
		decision := s.consensus.Decide(inputs)
		resp.Decision = &decision
	}

	resp.ResponseText = responseText(resp)
	if s.security != nil && resp.ResponseText != "" {
		filtered := s.security.FilterResponse(resp.ResponseText)
		resp.ResponseText = filtered.FilteredText
		resp.Redactions = filtered.Redactions
	}

	if req.SessionID != "" && resp.ResponseText != "" {
		s.sessions.Append(req.SessionID, req.UserIDHash, "assistant", resp.ResponseText)
	}

	if resp.Decision != nil {
		s.recordDecision(*resp.Decision)
	}

	return resp, nil
}

func responseText(resp Response) string {
	if resp.Decision == nil {
		return ""
	}
	return strings.Join(resp.Decision.Factors, "; ")
}

func (s *Supervisor) recordDecision(d consensus.Decision) {
	requiresApproval := d.Action == consensus.ActionReview
	if s.decisions != nil {
		if err := s.decisions.Record(d, requiresApproval); err != nil && s.log != nil {
			s.log.Warn("failed to record decision", zap.Error(err))
		}
	}
	if s.metrics != nil {
		s.metrics.ConsensusDecisionsTotal.WithLabelValues(string(d.Action)).Inc()
		s.metrics.ConsensusScore.Observe(d.Score)
	}
	if s.pushHub != nil {
		s.pushHub.Broadcast(push.TopicDecisions, decisionPushPayload{
			Action:     string(d.Action),
			Score:      d.Score,
			Confidence: string(d.Confidence),
			Factors:    d.Factors,
			At:         time.Now(),
		})
	}
}

type decisionPushPayload struct {
	Action     string    `json:"action"`
	Score      float64   `json:"score"`
	Confidence string    `json:"confidence"`
	Factors    []string  `json:"factors"`
	At         time.Time `json:"at"`
}

// Proposals exposes the Proposal Engine for callers that need the
// full draft/advance/approve/deploy surface directly.
func (s *Supervisor) Proposals() *proposal.Engine { return s.proposals }

// Board exposes the Knowledge Board for direct post/query/search use.
func (s *Supervisor) Board() *board.Board { return s.board }

// Registry exposes worker health/statistics snapshots for the
// registry push topic's Source function.
func (s *Supervisor) Registry() *registry.Registry { return s.reg }
