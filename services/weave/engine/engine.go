// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine keeps the graph model consistent with the triplet store.
//
// Every mutation follows the same shape:
//
//	validate ─▶ write through to the store ─▶ update the node index
//	        ─▶ resync (rebuild every link from the store) ─▶ restart layout
//
// Links are never patched incrementally: after each mutation they are the
// projection of the whole store through the node index, so rendered state
// cannot drift from persisted state.
//
// Mutations run one at a time on a single worker goroutine fed by a FIFO
// queue. Callers block until their operation has finished (or their
// context ends). Store calls run with a context that is never cancelled,
// so an operation that has started always completes.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianWeave/services/weave/graph"
	"github.com/AleutianAI/AleutianWeave/services/weave/palette"
	"github.com/AleutianAI/AleutianWeave/services/weave/triplestore"
)

const defaultQueueSize = 64

// Restarter restarts the layout simulation after the links change.
type Restarter interface {
	Restart(ctx context.Context) error
}

// MarkerRegistrar creates one arrowhead marker per distinct edge color.
// RegisterMarker must be idempotent.
type MarkerRegistrar interface {
	RegisterMarker(color string) bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLayout sets the layout to restart after every resync.
func WithLayout(r Restarter) Option {
	return func(e *Engine) { e.layout = r }
}

// WithMarkers sets the marker registry notified of new predicate colors.
func WithMarkers(m MarkerRegistrar) Option {
	return func(e *Engine) { e.markers = m }
}

// WithPalette sets the policy that colors new predicate types submitted
// without a color. Without one such triplets are rejected.
func WithPalette(p palette.Policy) Option {
	return func(e *Engine) { e.palette = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithQueueSize sets how many operations may wait for the worker.
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

// op is one queued mutation.
type op struct {
	name     string
	ctx      context.Context
	fn       func(ctx context.Context) error
	done     chan error
	enqueued time.Time
}

// Engine is the synchronization engine for one graph instance.
//
// Thread Safety: Safe for concurrent use. Mutations are serialized.
type Engine struct {
	model     *graph.Model
	store     triplestore.Store
	layout    Restarter
	markers   MarkerRegistrar
	logger    *slog.Logger
	queueSize int

	paletteMu sync.RWMutex
	palette   palette.Policy

	mu     sync.RWMutex
	closed bool
	queue  chan *op
	done   chan struct{}
}

// New creates an engine over model and store and starts its worker.
//
// Description:
//
//	The engine does not own model or store: Close stops the worker but
//	leaves both open.
//
// Inputs:
//
//	model - The graph instance to keep in sync. Must not be nil.
//	store - The triplet store. Must not be nil.
//	opts - Optional collaborators and tuning.
//
// Outputs:
//
//	*Engine - Running engine. Call Close when done.
func New(model *graph.Model, store triplestore.Store, opts ...Option) *Engine {
	e := &Engine{
		model:     model,
		store:     store,
		logger:    slog.Default(),
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "engine"))
	e.queue = make(chan *op, e.queueSize)
	e.done = make(chan struct{})

	go e.work()
	return e
}

// Model returns the graph instance the engine writes to.
func (e *Engine) Model() *graph.Model { return e.model }

// SetPalette swaps the color policy used for predicate types seen from
// now on. Colors already bound are unaffected.
func (e *Engine) SetPalette(p palette.Policy) {
	e.paletteMu.Lock()
	defer e.paletteMu.Unlock()
	e.palette = p
}

func (e *Engine) currentPalette() palette.Policy {
	e.paletteMu.RLock()
	defer e.paletteMu.RUnlock()
	return e.palette
}

// AddTriplet validates and persists (subject, predicate, object), adds
// both nodes, and resyncs.
//
// Description:
//
//	On the first sighting of predicate.Type its color is bound (the
//	caller's color, else the palette's) and a marker is registered for
//	that color. Both happen before the store write. The bound color is
//	written with the triplet and the store keeps the first one, so it
//	survives a reopen. Later colors for the same type are ignored.
//
// Inputs:
//
//	ctx - Bounds the wait for the worker. Store calls are not cancelled.
//	subject, object - Nodes identified by Hash. The first pointer seen for
//	    a hash becomes the model's node; later ones are ignored.
//	predicate - Type is required; Color is required for a new type unless
//	    a palette is configured.
//
// Outputs:
//
//	error - Wraps ErrValidation (nothing changed), ErrStoreWrite,
//	    ErrStoreRead, ErrClosed, or a context error.
func (e *Engine) AddTriplet(ctx context.Context, subject *graph.Node, predicate *graph.Predicate, object *graph.Node) error {
	return e.submit(ctx, "AddTriplet", func(ctx context.Context) error {
		return e.addTriplet(ctx, subject, predicate, object)
	})
}

// Apply maps a flat request onto AddTriplet after tag validation.
func (e *Engine) Apply(ctx context.Context, req TripletRequest) error {
	if err := req.Validate(); err != nil {
		e.logger.Error("triplet request rejected", slog.String("error", err.Error()))
		return err
	}
	return e.AddTriplet(ctx,
		&graph.Node{Hash: req.Subject},
		&graph.Predicate{Type: req.Predicate, Color: req.Color},
		&graph.Node{Hash: req.Object},
	)
}

// AddNode inserts node without writing to the store, then resyncs.
//
// Outputs:
//
//	error - Wraps ErrValidation if node is nil or has no hash.
func (e *Engine) AddNode(ctx context.Context, node *graph.Node) error {
	return e.submit(ctx, "AddNode", func(ctx context.Context) error {
		if node == nil || node.Hash == "" {
			return e.rejected(invalid(ErrMissingHash, "node"))
		}
		if strings.IndexByte(node.Hash, 0) >= 0 {
			return e.rejected(invalid(ErrInvalidField, "node hash"))
		}
		if e.model.UpsertNode(node) {
			e.logger.Debug("node added", slog.String("hash", node.Hash))
		}
		return e.resync(ctx)
	})
}

// RemoveNode deletes every triplet referencing hash, removes the node,
// and resyncs.
//
// Description:
//
//	Queries triplets with hash as subject and as object concurrently. If
//	both are empty nothing changes and ErrNothingToRemove is returned.
//	Otherwise each triplet is deleted; a failed delete is logged and the
//	rest continue. If the node was not in the model the resync still
//	happens and ErrNodeNotFound is returned afterwards.
//
// Outputs:
//
//	error - nil, ErrNothingToRemove, ErrNodeNotFound (both informational,
//	    see IsNotFound), ErrStoreRead, a validation error, or ErrClosed.
func (e *Engine) RemoveNode(ctx context.Context, hash string) error {
	return e.submit(ctx, "RemoveNode", func(ctx context.Context) error {
		return e.removeNode(ctx, hash)
	})
}

// Load hydrates the model from the store: every subject and object becomes
// a node (first-seen order), every predicate type gets its recorded color,
// or the palette's when none was recorded, plus a marker, then links are
// rebuilt.
func (e *Engine) Load(ctx context.Context) error {
	return e.submit(ctx, "Load", e.load)
}

// Query returns the stored triplets matching p. Reads bypass the queue.
func (e *Engine) Query(ctx context.Context, p triplestore.Pattern) ([]triplestore.Triplet, error) {
	out, err := e.store.Get(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreRead, err)
	}
	return out, nil
}

// Close stops accepting operations, finishes the queued ones, and stops
// the worker. Safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	<-e.done
	return nil
}

// submit enqueues fn and waits for its result.
func (e *Engine) submit(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	o := &op{name: name, ctx: ctx, fn: fn, done: make(chan error, 1), enqueued: time.Now()}

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return ErrClosed
	}
	select {
	case e.queue <- o:
		e.mu.RUnlock()
	case <-ctx.Done():
		e.mu.RUnlock()
		return fmt.Errorf("enqueue %s: %w", name, ctx.Err())
	}

	select {
	case err := <-o.done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("wait for %s: %w", name, ctx.Err())
	}
}

func (e *Engine) work() {
	defer close(e.done)
	for o := range e.queue {
		e.run(o)
	}
}

// run executes one op. An op whose caller gave up before it started is
// skipped; once started it runs to completion.
func (e *Engine) run(o *op) {
	waited := time.Since(o.enqueued)
	if err := o.ctx.Err(); err != nil {
		o.done <- fmt.Errorf("%s abandoned before start: %w", o.name, err)
		return
	}

	ctx, span := startOpSpan(context.WithoutCancel(o.ctx), o.name)
	defer span.End()

	start := time.Now()
	err := o.fn(ctx)
	ran := time.Since(start)

	if err != nil && !IsNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	recordOp(ctx, o.name, waited, ran, err)
	o.done <- err
}

func (e *Engine) rejected(err error) error {
	e.logger.Error("operation rejected", slog.String("error", err.Error()))
	return err
}

func validateTriplet(subject *graph.Node, predicate *graph.Predicate, object *graph.Node) error {
	if subject == nil && predicate == nil && object == nil {
		return invalid(ErrNilTriplet, "")
	}
	if subject == nil || predicate == nil || object == nil {
		return invalid(ErrIncompleteTriplet, "")
	}
	if subject.Hash == "" {
		return invalid(ErrMissingHash, "subject")
	}
	if object.Hash == "" {
		return invalid(ErrMissingHash, "object")
	}
	if predicate.Type == "" {
		return invalid(ErrMissingPredicateType, "")
	}
	for _, f := range []struct{ name, v string }{
		{"subject hash", subject.Hash},
		{"predicate type", predicate.Type},
		{"object hash", object.Hash},
	} {
		if strings.IndexByte(f.v, 0) >= 0 {
			return invalid(ErrInvalidField, f.name)
		}
	}
	return nil
}

func (e *Engine) addTriplet(ctx context.Context, subject *graph.Node, predicate *graph.Predicate, object *graph.Node) error {
	if err := validateTriplet(subject, predicate, object); err != nil {
		return e.rejected(err)
	}

	if _, bound := e.model.ColorFor(predicate.Type); !bound {
		color := predicate.Color
		if color == "" {
			p := e.currentPalette()
			if p == nil {
				return e.rejected(invalid(ErrMissingColor, predicate.Type))
			}
			color = p.Color(predicate.Type)
		}
		if e.model.BindColor(predicate.Type, color) {
			e.logger.Info("predicate color bound",
				slog.String("predicate", predicate.Type),
				slog.String("color", color))
		}
		if e.markers != nil {
			e.markers.RegisterMarker(color)
		}
	}

	// The bound color goes with every write; the store keeps the first one
	// it sees, which also covers a color whose first write failed.
	color, _ := e.model.ColorFor(predicate.Type)
	t := triplestore.Triplet{Subject: subject.Hash, Predicate: predicate.Type, Object: object.Hash}
	if err := e.store.PutColored(ctx, t, color); err != nil {
		err = fmt.Errorf("%w: %w", ErrStoreWrite, err)
		e.logger.Error("triplet write failed", slog.String("triplet", t.String()), slog.String("error", err.Error()))
		return err
	}

	e.model.UpsertNode(subject)
	e.model.UpsertNode(object)
	e.logger.Info("triplet added", slog.String("triplet", t.String()))
	return e.resync(ctx)
}

func (e *Engine) removeNode(ctx context.Context, hash string) error {
	if hash == "" {
		return e.rejected(invalid(ErrMissingHash, "remove"))
	}
	if strings.IndexByte(hash, 0) >= 0 {
		return e.rejected(invalid(ErrInvalidField, "remove"))
	}

	var asSubject, asObject []triplestore.Triplet
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		asSubject, err = e.store.Get(gctx, triplestore.Pattern{Subject: hash})
		return err
	})
	g.Go(func() error {
		var err error
		asObject, err = e.store.Get(gctx, triplestore.Pattern{Object: hash})
		return err
	})
	if err := g.Wait(); err != nil {
		err = fmt.Errorf("%w: %w", ErrStoreRead, err)
		e.logger.Error("remove query failed", slog.String("hash", hash), slog.String("error", err.Error()))
		return err
	}

	if len(asSubject) == 0 && len(asObject) == 0 {
		e.logger.Info("there was nothing to remove", slog.String("hash", hash))
		return ErrNothingToRemove
	}

	seen := make(map[triplestore.Triplet]struct{}, len(asSubject)+len(asObject))
	deleted, failed := 0, 0
	for _, t := range append(asSubject, asObject...) {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if err := e.store.Del(ctx, t); err != nil {
			failed++
			e.logger.Error("triplet delete failed",
				slog.String("triplet", t.String()),
				slog.String("error", err.Error()))
			continue
		}
		deleted++
	}

	var notFound error
	if err := e.model.RemoveNodeByHash(hash); err != nil {
		e.logger.Warn("there is no node", slog.String("hash", hash))
		notFound = err
	}

	e.logger.Info("node removed",
		slog.String("hash", hash),
		slog.Int("deleted", deleted),
		slog.Int("failed", failed))

	if err := e.resync(ctx); err != nil {
		return err
	}
	return notFound
}

func (e *Engine) load(ctx context.Context) error {
	triplets, err := e.store.Get(ctx, triplestore.Pattern{})
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrStoreRead, err)
		e.logger.Error("load failed", slog.String("error", err.Error()))
		return err
	}

	stored, err := e.store.Colors(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrStoreRead, err)
		e.logger.Error("load failed", slog.String("error", err.Error()))
		return err
	}

	bind := func(predicateType, color string) bool {
		if !e.model.BindColor(predicateType, color) {
			return false
		}
		if e.markers != nil {
			e.markers.RegisterMarker(color)
		}
		return true
	}

	p := e.currentPalette()
	nodes, colors, fromPalette := 0, 0, 0
	for _, t := range triplets {
		if e.model.UpsertNode(&graph.Node{Hash: t.Subject}) {
			nodes++
		}
		if e.model.UpsertNode(&graph.Node{Hash: t.Object}) {
			nodes++
		}
		if _, bound := e.model.ColorFor(t.Predicate); bound {
			continue
		}
		if color, ok := stored[t.Predicate]; ok {
			if bind(t.Predicate, color) {
				colors++
			}
			continue
		}
		if p == nil {
			continue
		}
		// Triplets written without a recorded color get the palette's,
		// recorded now so the next load agrees with this one.
		color := p.Color(t.Predicate)
		if bind(t.Predicate, color) {
			colors++
			fromPalette++
			if err := e.store.PutColored(ctx, t, color); err != nil {
				e.logger.Warn("palette color not persisted",
					slog.String("predicate", t.Predicate),
					slog.String("error", err.Error()))
			}
		}
	}

	// Colors outlive the triplets that introduced them.
	rest := make([]string, 0, len(stored))
	for typ := range stored {
		if _, bound := e.model.ColorFor(typ); !bound {
			rest = append(rest, typ)
		}
	}
	sort.Strings(rest)
	for _, typ := range rest {
		if bind(typ, stored[typ]) {
			colors++
		}
	}

	e.logger.Info("graph loaded from store",
		slog.Int("triplets", len(triplets)),
		slog.Int("nodes", nodes),
		slog.Int("colors", colors),
		slog.Int("palette_colors", fromPalette))
	return e.resync(ctx)
}

// resync rebuilds every link from the store and restarts the layout.
// Triplets whose endpoints are not in the node index produce no link.
func (e *Engine) resync(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Engine.resync")
	defer span.End()
	start := time.Now()

	triplets, err := e.store.Get(ctx, triplestore.Pattern{})
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrStoreRead, err)
		span.RecordError(err)
		e.logger.Error("resync failed", slog.String("error", err.Error()))
		return err
	}

	links := make([]*graph.Edge, 0, len(triplets))
	dropped := 0
	for _, t := range triplets {
		source, okS := e.model.GetNode(t.Subject)
		target, okT := e.model.GetNode(t.Object)
		if !okS || !okT {
			dropped++
			e.logger.Warn("triplet endpoint not in node index",
				slog.String("triplet", t.String()),
				slog.Bool("subject_known", okS),
				slog.Bool("object_known", okT))
			continue
		}
		links = append(links, &graph.Edge{Source: source, Target: target, Predicate: t.Predicate})
	}
	e.model.ReplaceLinks(links)

	setResyncAttributes(span, len(triplets), len(links), dropped)
	recordResync(ctx, time.Since(start), dropped)

	if e.layout != nil {
		if err := e.layout.Restart(ctx); err != nil {
			e.logger.Warn("layout restart failed", slog.String("error", err.Error()))
		}
	}
	return nil
}
