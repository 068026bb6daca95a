// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/AleutianAI/AleutianWeave/services/weave/graph"
	"github.com/AleutianAI/AleutianWeave/services/weave/layout"
	"github.com/AleutianAI/AleutianWeave/services/weave/palette"
	"github.com/AleutianAI/AleutianWeave/services/weave/triplestore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// Test helpers
// =============================================================================

type restartCounter struct {
	n atomic.Int64
}

func (r *restartCounter) Restart(ctx context.Context) error {
	r.n.Add(1)
	return nil
}

func (r *restartCounter) count() int64 { return r.n.Load() }

// faultyStore injects failures into a real store.
type faultyStore struct {
	triplestore.Store

	mu     sync.Mutex
	putErr error
	getErr error
	delErr map[triplestore.Triplet]error
	dels   []triplestore.Triplet
}

func (s *faultyStore) Put(ctx context.Context, t triplestore.Triplet) error {
	s.mu.Lock()
	err := s.putErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Put(ctx, t)
}

func (s *faultyStore) PutColored(ctx context.Context, t triplestore.Triplet, color string) error {
	s.mu.Lock()
	err := s.putErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.PutColored(ctx, t, color)
}

func (s *faultyStore) Get(ctx context.Context, p triplestore.Pattern) ([]triplestore.Triplet, error) {
	s.mu.Lock()
	err := s.getErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.Store.Get(ctx, p)
}

func (s *faultyStore) Del(ctx context.Context, t triplestore.Triplet) error {
	s.mu.Lock()
	s.dels = append(s.dels, t)
	err := s.delErr[t]
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Del(ctx, t)
}

func (s *faultyStore) deletes() []triplestore.Triplet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]triplestore.Triplet(nil), s.dels...)
}

type fixture struct {
	engine   *Engine
	model    *graph.Model
	store    *faultyStore
	markers  *layout.MarkerRegistry
	restarts *restartCounter
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	raw, err := triplestore.Open(triplestore.Options{Backend: triplestore.BackendBadger, InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	f := &fixture{
		model:    graph.NewModel(),
		store:    &faultyStore{Store: raw},
		markers:  layout.NewMarkerRegistry(),
		restarts: &restartCounter{},
	}
	base := []Option{
		WithLayout(f.restarts),
		WithMarkers(f.markers),
		WithLogger(quietLogger()),
	}
	f.engine = New(f.model, f.store, append(base, opts...)...)
	t.Cleanup(func() { f.engine.Close() })
	return f
}

func (f *fixture) stored(t *testing.T) []triplestore.Triplet {
	t.Helper()
	out, err := f.store.Store.Get(context.Background(), triplestore.Pattern{})
	require.NoError(t, err)
	return out
}

func hashes(nodes []*graph.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Hash)
	}
	return out
}

type edgeKey struct {
	Source, Predicate, Target string
}

func sortKeys(keys []edgeKey) []edgeKey {
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
	})
	return keys
}

func linkKeys(m *graph.Model) []edgeKey {
	keys := []edgeKey{}
	for _, e := range m.Links() {
		keys = append(keys, edgeKey{e.Source.Hash, e.Predicate, e.Target.Hash})
	}
	return sortKeys(keys)
}

// projection maps the store through the node index, which is what the
// links must equal after every successful mutation.
func (f *fixture) projection(t *testing.T) []edgeKey {
	keys := []edgeKey{}
	for _, tr := range f.stored(t) {
		if f.model.HasNode(tr.Subject) && f.model.HasNode(tr.Object) {
			keys = append(keys, edgeKey{tr.Subject, tr.Predicate, tr.Object})
		}
	}
	return sortKeys(keys)
}

func node(h string) *graph.Node { return &graph.Node{Hash: h} }

func pred(typ, color string) *graph.Predicate { return &graph.Predicate{Type: typ, Color: color} }

// =============================================================================
// Idempotent node insertion
// =============================================================================

func TestAddNode_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := &graph.Node{Hash: "n", Attrs: map[string]any{"label": "first"}}
	require.NoError(t, f.engine.AddNode(ctx, first))
	require.NoError(t, f.engine.AddNode(ctx, &graph.Node{Hash: "n"}))

	nodes := f.model.Nodes()
	require.Len(t, nodes, 1)
	assert.Same(t, first, nodes[0])
	assert.Empty(t, f.stored(t), "AddNode never writes to the store")
	assert.Equal(t, int64(2), f.restarts.count())
}

func TestAddTriplet_ReusesExistingNodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := node("a")
	require.NoError(t, f.engine.AddTriplet(ctx, a, pred("knows", "red"), node("b")))
	require.NoError(t, f.engine.AddTriplet(ctx, node("a"), pred("knows", "red"), node("b")))

	assert.Equal(t, []string{"a", "b"}, hashes(f.model.Nodes()))
	got, _ := f.model.GetNode("a")
	assert.Same(t, a, got)
	assert.Len(t, f.stored(t), 1, "duplicate triplet is stored once")
	assert.Len(t, f.model.Links(), 1)
}

func TestAddNode_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.engine.AddNode(ctx, nil)
	assert.ErrorIs(t, err, ErrMissingHash)
	assert.True(t, IsValidation(err))

	assert.ErrorIs(t, f.engine.AddNode(ctx, &graph.Node{}), ErrMissingHash)
	assert.ErrorIs(t, f.engine.AddNode(ctx, node("a\x00")), ErrInvalidField)

	assert.Empty(t, f.model.Nodes())
	assert.Zero(t, f.restarts.count())
}

// =============================================================================
// Color stability and markers
// =============================================================================

func TestAddTriplet_ColorFirstWriteWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.AddTriplet(ctx, node("a"), pred("knows", "#f00"), node("b")))
	for _, c := range []string{"#00f", "#0f0", ""} {
		require.NoError(t, f.engine.AddTriplet(ctx, node("a"), pred("knows", c), node("c")))
		got, ok := f.model.ColorFor("knows")
		require.True(t, ok)
		assert.Equal(t, "#f00", got)
	}
}

func TestAddTriplet_MarkerPerDistinctColor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.AddTriplet(ctx, node("a"), pred("knows", "red"), node("b")))
	require.NoError(t, f.engine.AddTriplet(ctx, node("a"), pred("likes", "red"), node("c")))
	require.NoError(t, f.engine.AddTriplet(ctx, node("a"), pred("hates", "blue"), node("d")))
	require.NoError(t, f.engine.AddTriplet(ctx, node("a"), pred("knows", "green"), node("d")))

	var ids []string
	for _, m := range f.markers.Markers() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"arrow-red", "arrow-blue"}, ids)
}

func TestAddTriplet_PaletteColorsNewTypes(t *testing.T) {
	p, err := palette.New(palette.DefaultConfig())
	require.NoError(t, err)
	f := newFixture(t, WithPalette(p))

	require.NoError(t, f.engine.AddTriplet(context.Background(), node("a"), pred("knows", ""), node("b")))

	got, ok := f.model.ColorFor("knows")
	require.True(t, ok)
	assert.Equal(t, p.Color("knows"), got)
	assert.True(t, f.markers.Has(got))
}

func TestAddTriplet_MissingColorWithoutPalette(t *testing.T) {
	f := newFixture(t)

	err := f.engine.AddTriplet(context.Background(), node("a"), pred("knows", ""), node("b"))
	assert.ErrorIs(t, err, ErrMissingColor)
	assert.True(t, IsValidation(err))
	assert.Empty(t, f.stored(t))
	assert.Empty(t, f.model.Nodes())
	assert.Empty(t, f.model.Colors())
}

func TestSetPalette_AffectsOnlyUnseenTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.AddTriplet(ctx, node("a"), pred("knows", "#f00"), node("b")))

	fixed, err := palette.NewFixed([]string{"#123456"})
	require.NoError(t, err)
	f.engine.SetPalette(fixed)

	require.NoError(t, f.engine.AddTriplet(ctx, node("a"), pred("knows", ""), node("c")))
	require.NoError(t, f.engine.AddTriplet(ctx, node("a"), pred("likes", ""), node("c")))

	assert.Equal(t, map[string]string{"knows": "#f00", "likes": "#123456"}, f.model.Colors())
}

// =============================================================================
// Validation rejects malformed triplets
// =============================================================================

func TestAddTriplet_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name      string
		subject   *graph.Node
		predicate *graph.Predicate
		object    *graph.Node
		want      error
	}{
		{"undefined triplet", nil, nil, nil, ErrNilTriplet},
		{"missing predicate", node("a"), nil, node("b"), ErrIncompleteTriplet},
		{"missing object", node("a"), pred("knows", "red"), nil, ErrIncompleteTriplet},
		{"missing predicate type", node("a"), &graph.Predicate{}, node("b"), ErrMissingPredicateType},
		{"missing subject hash", &graph.Node{}, pred("knows", "red"), node("b"), ErrMissingHash},
		{"missing object hash", node("a"), pred("knows", "red"), &graph.Node{}, ErrMissingHash},
		{"NUL in predicate", node("a"), pred("kn\x00ows", "red"), node("b"), ErrInvalidField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			err := f.engine.AddTriplet(context.Background(), tt.subject, tt.predicate, tt.object)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrValidation)

			assert.Empty(t, f.stored(t), "nothing persisted")
			assert.Empty(t, f.model.Nodes(), "nodes unchanged")
			assert.Empty(t, f.model.Links(), "links unchanged")
			assert.Empty(t, f.model.Colors(), "no color bound")
			assert.Empty(t, f.markers.Markers(), "no marker registered")
			assert.Zero(t, f.restarts.count(), "no layout restart")
		})
	}
}

func TestAddTriplet_RejectionLeavesExistingGraphIntact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.AddTriplet(ctx, node("a"), pred("knows", "red"), node("b")))

	nodesBefore := f.model.Nodes()
	linksBefore := f.model.Links()

	require.Error(t, f.engine.AddTriplet(ctx, &graph.Node{}, pred("knows", "red"), node("b")))

	assert.Equal(t, nodesBefore, f.model.Nodes())
	assert.Equal(t, linksBefore, f.model.Links())
	assert.Len(t, f.stored(t), 1)
}

// =============================================================================
// Resync correctness
// =============================================================================

func TestResync_LinksAreStoreProjection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	steps := []func() error{
		func() error { return f.engine.AddTriplet(ctx, node("a"), pred("knows", "red"), node("b")) },
		func() error { return f.engine.AddTriplet(ctx, node("b"), pred("likes", "blue"), node("c")) },
		func() error { return f.engine.AddNode(ctx, node("lonely")) },
		func() error { return f.engine.AddTriplet(ctx, node("c"), pred("knows", ""), node("a")) },
		func() error { return f.engine.AddTriplet(ctx, node("a"), pred("knows", "red"), node("a")) },
		func() error { return f.engine.RemoveNode(ctx, "b") },
		func() error { return f.engine.AddTriplet(ctx, node("d"), pred("likes", ""), node("c")) },
		func() error { return f.engine.RemoveNode(ctx, "a") },
	}

	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		if diff := cmp.Diff(f.projection(t), linkKeys(f.model)); diff != "" {
			t.Fatalf("step %d: links differ from store projection (-store +links):\n%s", i, diff)
		}
	}
	assert.Equal(t, []edgeKey{{"d", "likes", "c"}}, linkKeys(f.model))
}

func TestResync_LinksReferenceLiveNodes(t *testing.T) {
	f := newFixture(t)
	a, b := node("a"), node("b")
	require.NoError(t, f.engine.AddTriplet(context.Background(), a, pred("knows", "red"), b))

	links := f.model.Links()
	require.Len(t, links, 1)
	assert.Same(t, a, links[0].Source)
	assert.Same(t, b, links[0].Target)
}

func TestResync_DropsUnresolvedTriplets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A triplet written behind the engine's back has no nodes in the index.
	require.NoError(t, f.store.Store.Put(ctx, triplestore.Triplet{Subject: "ghost", Predicate: "knows", Object: "x"}))
	require.NoError(t, f.engine.AddTriplet(ctx, node("a"), pred("knows", "red"), node("b")))

	assert.Equal(t, []edgeKey{{"a", "knows", "b"}}, linkKeys(f.model))
}

// =============================================================================
// Removal
// =============================================================================

func TestRemoveNode_DeletesDependentTriplets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.AddTriplet(ctx, node("a"), pred("knows", "red"), node("b")))
	require.NoError(t, f.engine.AddTriplet(ctx, node("c"), pred("likes", "blue"), node("a")))
	restarts := f.restarts.count()

	require.NoError(t, f.engine.RemoveNode(ctx, "a"))

	assert.Empty(t, f.stored(t))
	assert.False(t, f.model.HasNode("a"))
	assert.ElementsMatch(t, []string{"b", "c"}, hashes(f.model.Nodes()))
	assert.Empty(t, f.model.Links())
	assert.Equal(t, restarts+1, f.restarts.count())
	assert.Equal(t, map[string]string{"knows": "red", "likes": "blue"}, f.model.Colors(),
		"colors outlive their triplets")
}

func TestRemoveNode_NothingToRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.AddTriplet(ctx, node("a"), pred("knows", "red"), node("b")))
	nodesBefore, linksBefore, restarts := f.model.Nodes(), f.model.Links(), f.restarts.count()

	err := f.engine.RemoveNode(ctx, "nonexistent")

	assert.ErrorIs(t, err, ErrNothingToRemove)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsValidation(err))
	assert.Empty(t, f.store.deletes(), "no store mutation")
	assert.Equal(t, nodesBefore, f.model.Nodes())
	assert.Equal(t, linksBefore, f.model.Links())
	assert.Equal(t, restarts, f.restarts.count(), "no resync")
}

func TestRemoveNode_NodeWithoutTriplets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.AddNode(ctx, node("solo")))

	err := f.engine.RemoveNode(ctx, "solo")

	assert.ErrorIs(t, err, ErrNothingToRemove)
	assert.True(t, f.model.HasNode("solo"), "removal is driven by stored triplets")
}

func TestRemoveNode_UnknownNodeStillResyncs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Store.Put(ctx, triplestore.Triplet{Subject: "x", Predicate: "knows", Object: "y"}))

	err := f.engine.RemoveNode(ctx, "x")

	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.True(t, IsNotFound(err))
	assert.Empty(t, f.stored(t), "triplets are deleted even without a node")
	assert.Equal(t, int64(1), f.restarts.count(), "resync still happens")
}

func TestRemoveNode_SelfLoopDeletedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.AddTriplet(ctx, node("a"), pred("knows", "red"), node("a")))

	require.NoError(t, f.engine.RemoveNode(ctx, "a"))

	assert.Equal(t, []triplestore.Triplet{{Subject: "a", Predicate: "knows", Object: "a"}}, f.store.deletes())
}

func TestRemoveNode_PartialDeleteContinues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.AddTriplet(ctx, node("a"), pred("knows", "red"), node("b")))
	require.NoError(t, f.engine.AddTriplet(ctx, node("a"), pred("knows", "red"), node("c")))

	stuck := triplestore.Triplet{Subject: "a", Predicate: "knows", Object: "b"}
	f.store.delErr = map[triplestore.Triplet]error{stuck: errors.New("disk full")}

	require.NoError(t, f.engine.RemoveNode(ctx, "a"))

	assert.Len(t, f.store.deletes(), 2, "every delete is attempted")
	assert.Equal(t, []triplestore.Triplet{stuck}, f.stored(t))
	assert.False(t, f.model.HasNode("a"))
	assert.Empty(t, f.model.Links(), "leftover triplet no longer resolves")
}

func TestRemoveNode_Validation(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.engine.RemoveNode(context.Background(), ""), ErrMissingHash)
}

// =============================================================================
// Store failures
// =============================================================================

func TestAddTriplet_StoreWriteFailure(t *testing.T) {
	f := newFixture(t)
	f.store.putErr = errors.New("io error")

	err := f.engine.AddTriplet(context.Background(), node("a"), pred("knows", "red"), node("b"))

	assert.ErrorIs(t, err, ErrStoreWrite)
	assert.True(t, IsStoreFailure(err))
	assert.Empty(t, f.model.Nodes())
	assert.Empty(t, f.model.Links())
	assert.Zero(t, f.restarts.count())

	// The color is bound before the write.
	c, ok := f.model.ColorFor("knows")
	assert.True(t, ok)
	assert.Equal(t, "red", c)
}

func TestAddTriplet_StoreReadFailureDuringResync(t *testing.T) {
	f := newFixture(t)
	f.store.getErr = errors.New("io error")

	err := f.engine.AddTriplet(context.Background(), node("a"), pred("knows", "red"), node("b"))

	assert.ErrorIs(t, err, ErrStoreRead)
	assert.Zero(t, f.restarts.count())
}

func TestRemoveNode_StoreReadFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.AddTriplet(ctx, node("a"), pred("knows", "red"), node("b")))
	f.store.getErr = errors.New("io error")

	err := f.engine.RemoveNode(ctx, "a")

	assert.ErrorIs(t, err, ErrStoreRead)
	assert.True(t, f.model.HasNode("a"))
	assert.Empty(t, f.store.deletes())
}

// =============================================================================
// End-to-end scenario
// =============================================================================

func TestEndToEnd_KnowsScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.AddTriplet(ctx, node("A"), pred("knows", "#f00"), node("B")))

	assert.Equal(t, []string{"A", "B"}, hashes(f.model.Nodes()))
	links := f.model.Links()
	require.Len(t, links, 1)
	assert.Equal(t, "A", links[0].Source.Hash)
	assert.Equal(t, "B", links[0].Target.Hash)
	assert.Equal(t, "knows", links[0].Predicate)
	c, _ := f.model.ColorFor("knows")
	assert.Equal(t, "#f00", c)

	require.NoError(t, f.engine.AddTriplet(ctx, node("A"), pred("knows", "#00f"), node("C")))

	c, _ = f.model.ColorFor("knows")
	assert.Equal(t, "#f00", c)
	assert.Equal(t, []string{"A", "B", "C"}, hashes(f.model.Nodes()))
	assert.Len(t, f.model.Links(), 2)
}

// =============================================================================
// Apply, Load, Query
// =============================================================================

func TestApply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.Apply(ctx, TripletRequest{Subject: "a", Predicate: "knows", Object: "b", Color: "red"}))
	assert.Equal(t, []edgeKey{{"a", "knows", "b"}}, linkKeys(f.model))

	tests := []struct {
		name string
		req  TripletRequest
		want error
	}{
		{"missing subject", TripletRequest{Predicate: "knows", Object: "b"}, ErrMissingHash},
		{"missing predicate", TripletRequest{Subject: "a", Object: "b"}, ErrMissingPredicateType},
		{"NUL in object", TripletRequest{Subject: "a", Predicate: "knows", Object: "b\x00"}, ErrInvalidField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.engine.Apply(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Len(t, f.stored(t), 1)
}

func TestLoad_HydratesFromStore(t *testing.T) {
	p, err := palette.New(palette.DefaultConfig())
	require.NoError(t, err)
	f := newFixture(t, WithPalette(p))
	ctx := context.Background()

	for _, tr := range []triplestore.Triplet{
		{Subject: "a", Predicate: "knows", Object: "b"},
		{Subject: "b", Predicate: "likes", Object: "c"},
	} {
		require.NoError(t, f.store.Store.Put(ctx, tr))
	}

	require.NoError(t, f.engine.Load(ctx))

	assert.ElementsMatch(t, []string{"a", "b", "c"}, hashes(f.model.Nodes()))
	assert.Equal(t, []edgeKey{{"a", "knows", "b"}, {"b", "likes", "c"}}, linkKeys(f.model))
	assert.Equal(t, p.Color("knows"), f.model.EdgeColor("knows"))
	assert.Len(t, f.markers.Markers(), 2)
}

func TestLoad_WithoutPaletteLeavesColorsUnbound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Store.Put(ctx, triplestore.Triplet{Subject: "a", Predicate: "knows", Object: "b"}))

	require.NoError(t, f.engine.Load(ctx))

	assert.Empty(t, f.model.Colors())
	assert.Equal(t, graph.DefaultEdgeColor, f.model.EdgeColor("knows"))
	assert.Len(t, f.model.Links(), 1)
}

func TestLoad_RestoresRecordedColorsAfterReopen(t *testing.T) {
	for _, backend := range []string{triplestore.BackendBadger, triplestore.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			opts := triplestore.Options{Backend: backend, Dir: t.TempDir(), Logger: quietLogger()}
			p, err := palette.New(palette.DefaultConfig())
			require.NoError(t, err)
			require.NotEqual(t, "#f00", p.Color("knows"))

			store, err := triplestore.Open(opts)
			require.NoError(t, err)
			first := New(graph.NewModel(), store, WithPalette(p), WithLogger(quietLogger()))
			require.NoError(t, first.AddTriplet(ctx, node("a"), pred("knows", "#f00"), node("b")))
			require.NoError(t, first.Close())
			require.NoError(t, store.Close())

			store, err = triplestore.Open(opts)
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			model := graph.NewModel()
			markers := layout.NewMarkerRegistry()
			second := New(model, store, WithPalette(p), WithMarkers(markers), WithLogger(quietLogger()))
			t.Cleanup(func() { second.Close() })

			require.NoError(t, second.Load(ctx))
			c, ok := model.ColorFor("knows")
			require.True(t, ok)
			assert.Equal(t, "#f00", c)
			assert.True(t, markers.Has("#f00"))

			require.NoError(t, second.AddTriplet(ctx, node("a"), pred("knows", "#0f0"), node("c")))
			assert.Equal(t, "#f00", model.EdgeColor("knows"))
			assert.False(t, markers.Has("#0f0"))
		})
	}
}

func TestLoad_RecordsPaletteColorForUncoloredTriplets(t *testing.T) {
	p, err := palette.New(palette.DefaultConfig())
	require.NoError(t, err)
	f := newFixture(t, WithPalette(p))
	ctx := context.Background()
	require.NoError(t, f.store.Store.Put(ctx, triplestore.Triplet{Subject: "a", Predicate: "knows", Object: "b"}))

	require.NoError(t, f.engine.Load(ctx))

	colors, err := f.store.Store.Colors(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"knows": p.Color("knows")}, colors)
}

func TestLoad_KeepsColorOfPredicateWithoutTriplets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.AddTriplet(ctx, node("a"), pred("knows", "red"), node("b")))
	require.NoError(t, f.engine.RemoveNode(ctx, "a"))
	require.Empty(t, f.stored(t))

	model := graph.NewModel()
	reloaded := New(model, f.store.Store, WithLogger(quietLogger()))
	t.Cleanup(func() { reloaded.Close() })
	require.NoError(t, reloaded.Load(ctx))

	c, ok := model.ColorFor("knows")
	assert.True(t, ok)
	assert.Equal(t, "red", c)
}

func TestAddTriplet_ColorRecordedAfterFailedFirstWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.putErr = errors.New("io error")
	require.ErrorIs(t, f.engine.AddTriplet(ctx, node("a"), pred("knows", "red"), node("b")), ErrStoreWrite)
	f.store.putErr = nil

	require.NoError(t, f.engine.AddTriplet(ctx, node("a"), pred("knows", "blue"), node("b")))

	colors, err := f.store.Store.Colors(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"knows": "red"}, colors)
}

func TestLoad_ClosedStore(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Store.Close())

	err := f.engine.Load(context.Background())

	assert.ErrorIs(t, err, ErrStoreRead)
	assert.ErrorIs(t, err, triplestore.ErrClosed)
}

func TestQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.AddTriplet(ctx, node("a"), pred("knows", "red"), node("b")))
	require.NoError(t, f.engine.AddTriplet(ctx, node("c"), pred("likes", "red"), node("b")))

	got, err := f.engine.Query(ctx, triplestore.Pattern{Predicate: "likes"})
	require.NoError(t, err)
	assert.Equal(t, []triplestore.Triplet{{Subject: "c", Predicate: "likes", Object: "b"}}, got)

	f.store.getErr = errors.New("io error")
	_, err = f.engine.Query(ctx, triplestore.Pattern{})
	assert.ErrorIs(t, err, ErrStoreRead)
}

// =============================================================================
// Queue behavior
// =============================================================================

func TestEngine_SerializesConcurrentCallers(t *testing.T) {
	p, err := palette.New(palette.DefaultConfig())
	require.NoError(t, err)
	f := newFixture(t, WithPalette(p), WithQueueSize(4))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			subject := fmt.Sprintf("s%d", i%5)
			object := fmt.Sprintf("o%d", i)
			assert.NoError(t, f.engine.AddTriplet(ctx, node(subject), pred("rel", ""), node(object)))
		}(i)
	}
	wg.Wait()

	assert.Len(t, f.stored(t), 20)
	assert.Len(t, f.model.Nodes(), 25)
	if diff := cmp.Diff(f.projection(t), linkKeys(f.model)); diff != "" {
		t.Fatalf("links differ from store projection:\n%s", diff)
	}
}

func TestEngine_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.engine.AddTriplet(ctx, node("a"), pred("knows", "red"), node("b"))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.stored(t))
}

func TestEngine_Close(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.AddNode(ctx, node("a")))

	require.NoError(t, f.engine.Close())
	require.NoError(t, f.engine.Close())

	assert.ErrorIs(t, f.engine.AddNode(ctx, node("b")), ErrClosed)
	assert.ErrorIs(t, f.engine.RemoveNode(ctx, "a"), ErrClosed)
	assert.ErrorIs(t, f.engine.Load(ctx), ErrClosed)
}

// =============================================================================
// Layout integration
// =============================================================================

func TestEngine_DrivesLayoutAdapter(t *testing.T) {
	model := graph.NewModel()
	store, err := triplestore.Open(triplestore.Options{InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	cfg := layout.DefaultConfig()
	cfg.TickInterval = 0
	cfg.FrameRate = 0
	adapter, err := layout.NewAdapter(model, cfg, layout.WithLogger(quietLogger()))
	require.NoError(t, err)
	defer adapter.Close()

	markers := layout.NewMarkerRegistry()
	eng := New(model, store, WithLayout(adapter), WithMarkers(markers), WithLogger(quietLogger()))
	defer eng.Close()

	ctx := context.Background()
	require.NoError(t, eng.AddTriplet(ctx, node("A"), pred("knows", "#f00"), node("B")))
	require.NoError(t, eng.AddTriplet(ctx, node("A"), pred("knows", "#00f"), node("C")))

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, adapter.Wait(waitCtx))

	frame, ok := adapter.LastFrame()
	require.True(t, ok)
	assert.True(t, frame.Final)
	assert.Len(t, frame.Nodes, 3)
	require.Len(t, frame.Edges, 2)
	for _, e := range frame.Edges {
		assert.Equal(t, "#f00", e.Color)
		assert.Equal(t, "arrow-#f00", e.Marker)
	}
	assert.Len(t, markers.Markers(), 1)
	for _, n := range model.Nodes() {
		assert.True(t, n.Placed)
	}
}
