// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModel_UpsertNode(t *testing.T) {
	m := NewModel()

	first := &Node{Hash: "a", Attrs: map[string]any{"label": "first"}}
	assert.True(t, m.UpsertNode(first))

	second := &Node{Hash: "a", Attrs: map[string]any{"label": "second"}}
	assert.False(t, m.UpsertNode(second), "existing hash is a no-op")

	got, ok := m.GetNode("a")
	require.True(t, ok)
	assert.Same(t, first, got, "identity of the first insertion is preserved")
	assert.Len(t, m.Nodes(), 1)

	assert.False(t, m.UpsertNode(nil))
	assert.False(t, m.UpsertNode(&Node{}))
	assert.Len(t, m.Nodes(), 1)
}

func TestModel_RemoveNodeByHash(t *testing.T) {
	m := NewModel()
	for _, h := range []string{"a", "b", "c"} {
		m.UpsertNode(&Node{Hash: h})
	}

	require.NoError(t, m.RemoveNodeByHash("b"))
	assert.False(t, m.HasNode("b"))

	var order []string
	for _, n := range m.Nodes() {
		order = append(order, n.Hash)
	}
	assert.Equal(t, []string{"a", "c"}, order)

	assert.ErrorIs(t, m.RemoveNodeByHash("b"), ErrNodeNotFound)
	assert.ErrorIs(t, m.RemoveNodeByHash("never"), ErrNodeNotFound)
}

func TestModel_BindColor_FirstWriteWins(t *testing.T) {
	m := NewModel()

	_, ok := m.ColorFor("knows")
	assert.False(t, ok)

	assert.True(t, m.BindColor("knows", "#f00"))
	assert.False(t, m.BindColor("knows", "#00f"))
	assert.True(t, m.BindColor("likes", "#0f0"))

	c, ok := m.ColorFor("knows")
	require.True(t, ok)
	assert.Equal(t, "#f00", c)
	assert.Equal(t, []string{"knows", "likes"}, m.Predicates())
	assert.Equal(t, map[string]string{"knows": "#f00", "likes": "#0f0"}, m.Colors())
}

func TestModel_EdgeColorFallback(t *testing.T) {
	m := NewModel()
	m.BindColor("knows", "#f00")

	assert.Equal(t, "#f00", m.EdgeColor("knows"))
	assert.Equal(t, DefaultEdgeColor, m.EdgeColor("unbound"))
}

func TestModel_SnapshotIsCopy(t *testing.T) {
	m := NewModel()
	a := &Node{Hash: "a", Attrs: map[string]any{"k": "v"}}
	b := &Node{Hash: "b"}
	m.UpsertNode(a)
	m.UpsertNode(b)
	m.BindColor("knows", "#f00")
	m.ReplaceLinks([]*Edge{{Source: a, Target: b, Predicate: "knows"}, {Source: b, Target: a, Predicate: "other"}})

	snap := m.Snapshot()
	require.Len(t, snap.Nodes, 2)
	require.Len(t, snap.Links, 2)
	assert.Equal(t, EdgeView{Source: "a", Target: "b", Predicate: "knows", Color: "#f00"}, snap.Links[0])
	assert.Equal(t, DefaultEdgeColor, snap.Links[1].Color)

	snap.Nodes[0].Attrs["k"] = "changed"
	snap.Colors["knows"] = "#000"
	assert.Equal(t, "v", a.Attrs["k"])
	c, _ := m.ColorFor("knows")
	assert.Equal(t, "#f00", c)

	assert.Equal(t, Stats{Nodes: 2, Links: 2, Predicates: 1}, m.Stats())
}

func TestModel_LayoutSeesLiveSlices(t *testing.T) {
	m := NewModel()
	a := &Node{Hash: "a"}
	m.UpsertNode(a)

	m.Layout(func(nodes []*Node, links []*Edge) {
		require.Len(t, nodes, 1)
		nodes[0].X, nodes[0].Y, nodes[0].Placed = 10, 20, true
	})

	assert.Equal(t, 10.0, a.X)
	assert.True(t, a.Placed)
}

func TestModel_ConcurrentAccess(t *testing.T) {
	m := NewModel()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.UpsertNode(&Node{Hash: "shared"})
				m.BindColor("knows", "#f00")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.Snapshot()
				m.Layout(func(nodes []*Node, links []*Edge) {
					for _, n := range nodes {
						n.X++
					}
				})
			}
		}()
	}
	wg.Wait()

	assert.Len(t, m.Nodes(), 1)
}
