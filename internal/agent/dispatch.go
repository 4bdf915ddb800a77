package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Service answers the six capabilities against one snapshot.
type Service interface {
	ConceptDiscovery(ctx context.Context, req ConceptDiscoveryRequest) Response[ConceptDiscoveryResult]
	EntityBriefing(ctx context.Context, req EntityBriefingRequest) Response[EntityBriefingResult]
	BlastRadius(ctx context.Context, req BlastRadiusRequest) Response[BlastRadiusResult]
	DeltaImpactScan(ctx context.Context, req DeltaImpactScanRequest) Response[DeltaImpactScanResult]
	RenamePlanning(ctx context.Context, req RenamePlanningRequest) Response[RenamePlanningResult]
	StructuralQuery(ctx context.Context, req StructuralQueryRequest) Response[StructuralQueryResult]
}

// Source returns the service for the current snapshot, or the protocol
// error to report when no usable snapshot exists.
type Source func(ctx context.Context) (Service, *Error)

type budgetKey struct{}

// WithBudget bounds ctx by budget and records the budget so capabilities
// can report it in a timeout envelope. A non-positive budget only adds
// cancellation.
func WithBudget(ctx context.Context, budget time.Duration) (context.Context, context.CancelFunc) {
	if budget <= 0 {
		return context.WithCancel(ctx)
	}
	ctx = context.WithValue(ctx, budgetKey{}, budget)
	return context.WithTimeout(ctx, budget)
}

// BudgetFrom returns the budget recorded by WithBudget.
func BudgetFrom(ctx context.Context) (time.Duration, bool) {
	b, ok := ctx.Value(budgetKey{}).(time.Duration)
	return b, ok
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchBudget sets the per-request execution budget.
func WithDispatchBudget(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) { disp.budget = d }
}

// WithDispatchLogger sets the logger for request-level events.
func WithDispatchLogger(l *slog.Logger) DispatcherOption {
	return func(disp *Dispatcher) { disp.logger = l }
}

// Dispatcher decodes requests, applies the execution budget and routes each
// request to the service.
type Dispatcher struct {
	source Source
	budget time.Duration
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher over source.
func NewDispatcher(source Source, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		source: source,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch answers one request. Every outcome, including malformed params
// and a missing snapshot, is reported inside the reply envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Reply {
	start := time.Now()
	var resp any
	switch req.Capability {
	case CapabilityConceptDiscovery:
		resp = invoke(ctx, d, req, Service.ConceptDiscovery)
	case CapabilityEntityBriefing:
		resp = invoke(ctx, d, req, Service.EntityBriefing)
	case CapabilityBlastRadius:
		resp = invoke(ctx, d, req, Service.BlastRadius)
	case CapabilityDeltaImpactScan:
		resp = invoke(ctx, d, req, Service.DeltaImpactScan)
	case CapabilityRenamePlanning:
		resp = invoke(ctx, d, req, Service.RenamePlanning)
	case CapabilityStructuralQuery:
		resp = invoke(ctx, d, req, Service.StructuralQuery)
	default:
		resp = Failure[struct{}](CodeInvalidRequest, fmt.Sprintf("unknown capability %q", req.Capability), false)
	}
	d.logger.Debug("dispatched capability",
		"capability", req.Capability,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Reply{Capability: req.Capability, Response: resp}
}

func invoke[P, T any](ctx context.Context, d *Dispatcher, req Request, call func(Service, context.Context, P) Response[T]) Response[T] {
	var params P
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return Failure[T](CodeInvalidRequest, fmt.Sprintf("invalid %s params: %v", req.Capability, err), false)
		}
	}

	svc, perr := d.source(ctx)
	if perr != nil {
		return FailureFrom[T](*perr)
	}

	ctx, cancel := WithBudget(ctx, d.budget)
	defer cancel()
	start := time.Now()
	resp := call(svc, ctx, params)

	// Capabilities that never observe ctx still report an exceeded budget.
	if resp.Status == StatusSuccess && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		d.logger.Warn("capability exceeded budget", "capability", req.Capability, "budget", d.budget)
		return TimedOut(NewTimeout(d.budget, time.Since(start)), resp.Result)
	}
	return resp
}

// Serve reads one JSON request per line from r and writes one JSON reply
// per line to w until r is exhausted or ctx is done.
func (d *Dispatcher) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var reply Reply
		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			reply = Reply{Response: Failure[struct{}](CodeInvalidRequest, fmt.Sprintf("invalid request: %v", err), false)}
		} else {
			reply = d.Dispatch(ctx, req)
		}
		if err := enc.Encode(reply); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read requests: %w", err)
	}
	return nil
}
