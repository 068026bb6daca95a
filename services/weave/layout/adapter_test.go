// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package layout

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/AleutianAI/AleutianWeave/services/weave/graph"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fastConfig runs iterations back to back with no frame throttling.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.TickInterval = 0
	cfg.FrameRate = 0
	return cfg
}

// triangle builds a -> b -> c -> a with all colors bound.
func triangle() (*graph.Model, map[string]*graph.Node) {
	m := graph.NewModel()
	nodes := map[string]*graph.Node{}
	for _, h := range []string{"a", "b", "c"} {
		n := &graph.Node{Hash: h}
		nodes[h] = n
		m.UpsertNode(n)
	}
	m.BindColor("knows", "#f00")
	m.ReplaceLinks([]*graph.Edge{
		{Source: nodes["a"], Target: nodes["b"], Predicate: "knows"},
		{Source: nodes["b"], Target: nodes["c"], Predicate: "knows"},
		{Source: nodes["c"], Target: nodes["a"], Predicate: "unbound"},
	})
	return m, nodes
}

type frameRecorder struct {
	mu     sync.Mutex
	frames []Frame
}

func (r *frameRecorder) record(f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *frameRecorder) all() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...)
}

func waitIdle(t *testing.T, a *Adapter) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Wait(ctx))
}

func TestNewAdapter_Validation(t *testing.T) {
	_, err := NewAdapter(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilModel)

	opts := DefaultOptions()
	opts.HandleDisconnected = true
	_, err = NewAdapter(graph.NewModel(), DefaultConfig(), WithSolver(NewForceSolver(opts)))
	assert.ErrorIs(t, err, ErrDisconnectedPacking)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.True(t, opts.AvoidOverlaps)
	assert.Equal(t, 50.0, opts.JaccardLinkLengths)
	assert.False(t, opts.HandleDisconnected)
	assert.Equal(t, 600.0, opts.Width)
	assert.Equal(t, 400.0, opts.Height)
	assert.Equal(t, Passes{10, 15, 20}, DefaultPasses)
}

func TestAdapter_WarmupSchedule(t *testing.T) {
	m, nodes := triangle()
	rec := &frameRecorder{}

	a, err := NewAdapter(m, fastConfig(), WithOnTick(rec.record))
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Restart(context.Background()))
	waitIdle(t, a)

	frames := rec.all()
	require.GreaterOrEqual(t, len(frames), 45)
	require.LessOrEqual(t, len(frames), 300)

	for i, f := range frames {
		switch {
		case i < 10:
			assert.Equal(t, PhaseCoarse, f.Phase, "tick %d", i)
		case i < 25:
			assert.Equal(t, PhaseMedium, f.Phase, "tick %d", i)
		default:
			assert.Equal(t, PhaseFine, f.Phase, "tick %d", i)
		}
		if i > 0 {
			assert.Greater(t, f.Seq, frames[i-1].Seq)
		}
		assert.False(t, f.Final, "OnTick only sees iterations")
	}

	for _, n := range nodes {
		assert.True(t, n.Placed)
		assert.False(t, math.IsNaN(n.X) || math.IsNaN(n.Y))
	}
}

func TestAdapter_FrameContents(t *testing.T) {
	m, nodes := triangle()
	a, err := NewAdapter(m, fastConfig())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Restart(context.Background()))
	waitIdle(t, a)

	f, ok := a.LastFrame()
	require.True(t, ok)
	assert.True(t, f.Final)
	require.Len(t, f.Nodes, 3)
	require.Len(t, f.Edges, 3)

	ab := f.Edges[0]
	assert.Equal(t, "a", ab.Source)
	assert.Equal(t, "b", ab.Target)
	assert.Equal(t, "#f00", ab.Color)
	assert.Equal(t, "arrow-#f00", ab.Marker)
	assert.Equal(t, nodes["a"].X, ab.SourceX)
	assert.Equal(t, nodes["b"].Y, ab.TargetY)
	wantPath, wantRadius := ArcPath(ab.SourceX, ab.SourceY, ab.TargetX, ab.TargetY)
	assert.Equal(t, wantPath, ab.Path)
	assert.Equal(t, wantRadius, ab.Radius)

	assert.Equal(t, graph.DefaultEdgeColor, f.Edges[2].Color)
	assert.Equal(t, "arrow-black", f.Edges[2].Marker)
}

func TestAdapter_RestartPreservesPositions(t *testing.T) {
	m, nodes := triangle()
	a, err := NewAdapter(m, fastConfig())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Restart(context.Background()))
	waitIdle(t, a)

	before := *nodes["a"]

	d := &graph.Node{Hash: "d"}
	m.UpsertNode(d)
	links := m.Links()
	links = append(links, &graph.Edge{Source: nodes["a"], Target: d, Predicate: "knows"})
	m.ReplaceLinks(links)

	rec := &frameRecorder{}
	a2, err := NewAdapter(m, fastConfig(), WithOnTick(rec.record))
	require.NoError(t, err)
	defer a2.Close()
	require.NoError(t, a2.Restart(context.Background()))
	waitIdle(t, a2)

	frames := rec.all()
	require.NotEmpty(t, frames)
	var first NodeFrame
	for _, nf := range frames[0].Nodes {
		if nf.Hash == "a" {
			first = nf
		}
	}
	jump := math.Hypot(first.X-before.X, first.Y-before.Y)
	assert.Less(t, jump, 75.0, "existing node must not jump on restart")
	assert.Same(t, nodes["a"], m.Nodes()[0])
	assert.True(t, d.Placed)
}

func TestAdapter_RestartCancelsRunningSimulation(t *testing.T) {
	m, _ := triangle()
	cfg := fastConfig()
	cfg.TickInterval = 5 * time.Millisecond

	a, err := NewAdapter(m, cfg)
	require.NoError(t, err)
	defer a.Close()

	frames, unsubscribe := a.Subscribe()
	defer unsubscribe()

	require.NoError(t, a.Restart(context.Background()))
	require.NoError(t, a.Restart(context.Background()))
	waitIdle(t, a)

	last, ok := a.LastFrame()
	require.True(t, ok)
	assert.Equal(t, uint64(2), last.Run)
	assert.True(t, last.Final)

	// Drain what was buffered; only run 2 may have produced a final frame.
	for {
		select {
		case f := <-frames:
			if f.Final {
				assert.Equal(t, uint64(2), f.Run)
			}
		default:
			return
		}
	}
}

func TestAdapter_SubscribeThrottled(t *testing.T) {
	m, _ := triangle()
	cfg := fastConfig()
	cfg.FrameRate = 0.001

	a, err := NewAdapter(m, cfg)
	require.NoError(t, err)
	defer a.Close()

	frames, unsubscribe := a.Subscribe()
	defer unsubscribe()

	require.NoError(t, a.Restart(context.Background()))
	waitIdle(t, a)

	var got []Frame
	for len(frames) > 0 {
		got = append(got, <-frames)
	}
	require.Len(t, got, 2, "one frame from the initial burst plus the final frame")
	assert.False(t, got[0].Final)
	assert.True(t, got[1].Final)
}

func TestAdapter_FinalFrameReachesFullSubscriber(t *testing.T) {
	m, _ := triangle()
	a, err := NewAdapter(m, fastConfig())
	require.NoError(t, err)
	defer a.Close()

	frames, unsubscribe := a.Subscribe()
	defer unsubscribe()

	// Nobody reads while the run emits far more frames than the buffer holds.
	require.NoError(t, a.Restart(context.Background()))
	waitIdle(t, a)

	require.Equal(t, subscriberBuffer, len(frames))
	var last Frame
	for len(frames) > 0 {
		last = <-frames
	}
	assert.True(t, last.Final)
}

func TestAdapter_SubscribeReplaysLastFrame(t *testing.T) {
	m, _ := triangle()
	a, err := NewAdapter(m, fastConfig())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Restart(context.Background()))
	waitIdle(t, a)

	frames, unsubscribe := a.Subscribe()
	f := <-frames
	assert.True(t, f.Final)

	unsubscribe()
	unsubscribe()
	_, open := <-frames
	assert.False(t, open)
}

func TestAdapter_Close(t *testing.T) {
	m, _ := triangle()
	cfg := fastConfig()
	cfg.TickInterval = time.Millisecond

	a, err := NewAdapter(m, cfg)
	require.NoError(t, err)

	frames, unsubscribe := a.Subscribe()
	require.NoError(t, a.Restart(context.Background()))
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	unsubscribe()

	for range frames {
	}
	assert.ErrorIs(t, a.Restart(context.Background()), ErrClosed)
}

func TestAdapter_EmptyGraph(t *testing.T) {
	a, err := NewAdapter(graph.NewModel(), fastConfig())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Restart(context.Background()))
	waitIdle(t, a)

	f, ok := a.LastFrame()
	require.True(t, ok)
	assert.Empty(t, f.Nodes)
	assert.Empty(t, f.Edges)
}
