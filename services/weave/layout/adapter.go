// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package layout drives a force-directed simulation over the live graph
// model and publishes per-tick frames to renderers.
//
// A run is started by Restart after every structural change:
//
//	Restart ─▶ cancel old run ─▶ Solver.Relink ─▶ coarse ×10 ─▶ medium ×15 ─▶ fine ×20
//	                                                                   │
//	                                  fine … until converged or MaxTicks
//	                                                                   ▼
//	                                                             final frame
//
// Every iteration produces a Frame that goes to the OnTick callback and,
// throttled, to subscribers. Positions live on the nodes themselves, so a
// restart continues from where the previous run left off.
package layout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianWeave/services/weave/graph"
)

const subscriberBuffer = 16

// Config tunes the run schedule and frame delivery.
type Config struct {
	// Passes is the warm-up schedule. Default: 10/15/20.
	Passes Passes

	// MaxTicks caps the total iterations of one run, warm-up included.
	// Warm-up always completes even if it exceeds MaxTicks.
	MaxTicks int

	// Convergence ends the fine phase once total displacement per tick
	// drops below it.
	Convergence float64

	// TickInterval paces iterations. Zero runs them back to back.
	TickInterval time.Duration

	// FrameRate limits frames per second delivered to subscribers. Zero
	// delivers every frame. OnTick is never throttled.
	FrameRate float64
}

// DefaultConfig returns a 10/15/20 warm-up, at most 300 ticks, ~60 Hz
// pacing and 30 frames per second to subscribers.
func DefaultConfig() Config {
	return Config{
		Passes:       DefaultPasses,
		MaxTicks:     300,
		Convergence:  0.5,
		TickInterval: 16 * time.Millisecond,
		FrameRate:    30,
	}
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithSolver replaces the built-in ForceSolver.
func WithSolver(s Solver) Option {
	return func(a *Adapter) { a.solver = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithOnTick registers a callback invoked synchronously after every
// iteration. It must return quickly.
func WithOnTick(fn func(Frame)) Option {
	return func(a *Adapter) { a.onTick = fn }
}

// Adapter bridges a graph.Model to a Solver.
//
// Thread Safety: Safe for concurrent use. At most one run is active.
type Adapter struct {
	model   *graph.Model
	solver  Solver
	cfg     Config
	logger  *slog.Logger
	onTick  func(Frame)
	limiter *rate.Limiter

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	runID     uint64
	runCancel context.CancelFunc
	runDone   chan struct{}

	seq atomic.Uint64

	subMu   sync.Mutex
	subs    map[int]chan Frame
	nextSub int
	last    *Frame
}

// NewAdapter builds an adapter over model.
//
// Description:
//
//	Uses a ForceSolver with DefaultOptions unless WithSolver is given.
//	A solver that reports HandleDisconnected is rejected: packing
//	disconnected components moves them between runs.
//
// Outputs:
//
//	*Adapter - Idle until the first Restart.
//	error - ErrNilModel or ErrDisconnectedPacking.
func NewAdapter(model *graph.Model, cfg Config, opts ...Option) (*Adapter, error) {
	if model == nil {
		return nil, ErrNilModel
	}
	if cfg.Passes == (Passes{}) {
		cfg.Passes = DefaultPasses
	}

	a := &Adapter{
		model:  model,
		cfg:    cfg,
		logger: slog.Default(),
		subs:   make(map[int]chan Frame),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.solver == nil {
		a.solver = NewForceSolver(DefaultOptions())
	}
	if a.solver.Options().HandleDisconnected {
		return nil, ErrDisconnectedPacking
	}

	limit := rate.Inf
	if cfg.FrameRate > 0 {
		limit = rate.Limit(cfg.FrameRate)
	}
	a.limiter = rate.NewLimiter(limit, 1)
	a.logger = a.logger.With(slog.String("component", "layout"))
	a.baseCtx, a.baseCancel = context.WithCancel(context.Background())
	return a, nil
}

// Restart rebinds the solver to the current links and starts a new run,
// cancelling any run in progress.
//
// Description:
//
//	Blocks only until the previous run has stopped and the solver has been
//	relinked; the run itself proceeds in the background. ctx is used for
//	tracing only: the run outlives the caller's request.
//
// Outputs:
//
//	error - ErrClosed after Close.
func (a *Adapter) Restart(ctx context.Context) error {
	_, span := tracer.Start(ctx, "LayoutAdapter.Restart")
	defer span.End()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	a.stopLocked()

	colors := a.model.Colors()
	var nodes, links int
	a.model.Layout(func(n []*graph.Node, l []*graph.Edge) {
		a.solver.Relink(n, l)
		nodes, links = len(n), len(l)
	})

	a.runID++
	runCtx, cancel := context.WithCancel(a.baseCtx)
	done := make(chan struct{})
	a.runCancel, a.runDone = cancel, done

	span.SetAttributes(
		attribute.Int64("layout.run", int64(a.runID)),
		attribute.Int("layout.nodes", nodes),
		attribute.Int("layout.links", links),
	)
	a.logger.Debug("layout restarted",
		slog.Uint64("run", a.runID),
		slog.Int("nodes", nodes),
		slog.Int("links", links))

	go a.run(runCtx, a.runID, colors, done)
	return nil
}

// stopLocked cancels the active run and waits for it. Caller holds a.mu.
func (a *Adapter) stopLocked() {
	if a.runCancel == nil {
		return
	}
	a.runCancel()
	<-a.runDone
	a.runCancel = nil
}

func (a *Adapter) run(ctx context.Context, runID uint64, colors map[string]string, done chan struct{}) {
	defer close(done)

	ctx, span := tracer.Start(ctx, "LayoutAdapter.Run",
		trace.WithAttributes(attribute.Int64("layout.run", int64(runID))))
	defer span.End()

	var ticker *time.Ticker
	if a.cfg.TickInterval > 0 {
		ticker = time.NewTicker(a.cfg.TickInterval)
		defer ticker.Stop()
	}

	ticks := 0
	step := func(phase Phase) (float64, bool) {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return 0, false
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return 0, false
		}

		var displacement float64
		var frame Frame
		a.model.Layout(func(nodes []*graph.Node, links []*graph.Edge) {
			displacement = a.solver.Step(phase, nodes, links)
			frame = buildFrame(nodes, links, colors)
		})
		frame.Seq = a.seq.Add(1)
		frame.Run = runID
		frame.Phase = phase
		ticks++
		a.emit(ctx, frame)
		return displacement, true
	}

	finish := func(outcome string) {
		span.SetAttributes(attribute.Int("layout.ticks", ticks), attribute.String("layout.outcome", outcome))
		recordRun(ctx, outcome, ticks)
		a.logger.Debug("layout run finished",
			slog.Uint64("run", runID),
			slog.Int("ticks", ticks),
			slog.String("outcome", outcome))
	}

	schedule := []struct {
		phase Phase
		n     int
	}{
		{PhaseCoarse, a.cfg.Passes.Coarse},
		{PhaseMedium, a.cfg.Passes.Medium},
		{PhaseFine, a.cfg.Passes.Fine},
	}
	for _, stage := range schedule {
		for i := 0; i < stage.n; i++ {
			if _, ok := step(stage.phase); !ok {
				finish("cancelled")
				return
			}
		}
	}

	outcome := "max_ticks"
	for ticks < a.cfg.MaxTicks {
		displacement, ok := step(PhaseFine)
		if !ok {
			finish("cancelled")
			return
		}
		if displacement < a.cfg.Convergence {
			outcome = "converged"
			break
		}
	}

	var final Frame
	a.model.Layout(func(nodes []*graph.Node, links []*graph.Edge) {
		final = buildFrame(nodes, links, colors)
	})
	final.Seq = a.seq.Add(1)
	final.Run = runID
	final.Phase = PhaseFine
	final.Final = true
	a.publish(ctx, final, true)
	finish(outcome)
}

func (a *Adapter) emit(ctx context.Context, f Frame) {
	if a.onTick != nil {
		a.onTick(f)
	}
	a.publish(ctx, f, false)
}

// publish records f as the latest frame and offers it to every subscriber
// without blocking. Non-final frames are subject to the rate limiter and
// are dropped for a full subscriber; a forced frame is always delivered.
func (a *Adapter) publish(ctx context.Context, f Frame, force bool) {
	a.subMu.Lock()
	defer a.subMu.Unlock()

	a.last = &f
	if !force && !a.limiter.Allow() {
		return
	}
	for _, ch := range a.subs {
		select {
		case ch <- f:
		default:
			recordDrop(ctx)
			if !force {
				continue
			}
			// A forced frame supersedes the oldest queued one. publish is
			// the only sender, so the second send always has room.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- f:
			default:
			}
		}
	}
}

// Subscribe returns a channel of frames and a function that unsubscribes
// and closes it. The most recent frame, if any, is delivered first. Slow
// subscribers miss frames rather than stall the simulation.
func (a *Adapter) Subscribe() (<-chan Frame, func()) {
	ch := make(chan Frame, subscriberBuffer)

	a.subMu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = ch
	if a.last != nil {
		ch <- *a.last
	}
	a.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.subMu.Lock()
			defer a.subMu.Unlock()
			if c, ok := a.subs[id]; ok {
				delete(a.subs, id)
				close(c)
			}
		})
	}
}

// LastFrame returns the most recent frame.
func (a *Adapter) LastFrame() (Frame, bool) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	if a.last == nil {
		return Frame{}, false
	}
	return *a.last, true
}

// Wait blocks until the current run, if any, has finished.
func (a *Adapter) Wait(ctx context.Context) error {
	a.mu.Lock()
	done := a.runDone
	a.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for layout run: %w", ctx.Err())
	}
}

// Close stops the active run and closes every subscriber channel. Safe to
// call more than once.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.stopLocked()
	a.baseCancel()
	a.mu.Unlock()

	a.subMu.Lock()
	for id, ch := range a.subs {
		delete(a.subs, id)
		close(ch)
	}
	a.subMu.Unlock()
	return nil
}
