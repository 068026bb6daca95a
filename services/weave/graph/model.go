// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph holds the canonical in-memory graph: the node list, the
// hash index, the derived edge list, and the predicate color map.
//
// The Model performs no I/O. The synchronization engine is its only
// structural writer; the layout solver reaches the live slices through
// Model.Layout and may only touch layout-injected node fields.
//
//	engine ──UpsertNode/RemoveNodeByHash/ReplaceLinks──▶ Model ◀──Layout(fn)── layout
//	                                                      │
//	                                   Snapshot/Nodes/Links/Colors (copies)
//	                                                      ▼
//	                                                 HTTP, CLI
//
// # Thread Safety
//
// Model is safe for concurrent use. All methods take the internal lock;
// callbacks passed to Layout run under the exclusive lock and must not
// call back into the Model.
package graph

import (
	"sync"
)

// Model is one graph instance. Construct with NewModel; there is no
// process-wide state.
type Model struct {
	mu sync.RWMutex

	nodes []*Node
	index map[string]*Node
	links []*Edge

	colors     map[string]string
	colorOrder []string
}

// NewModel returns an empty graph.
func NewModel() *Model {
	return &Model{
		index:  make(map[string]*Node),
		colors: make(map[string]string),
	}
}

// HasNode reports whether hash is in the index.
func (m *Model) HasNode(hash string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.index[hash]
	return ok
}

// GetNode returns the live node for hash.
func (m *Model) GetNode(hash string) (*Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.index[hash]
	return n, ok
}

// UpsertNode inserts n if its hash is unseen.
//
// Description:
//
//	Re-adding an existing hash is a no-op: the pointer already in the
//	model is kept so an in-progress layout never loses its node. A nil
//	node or an empty hash is never inserted.
//
// Outputs:
//
//	bool - True if n was inserted.
func (m *Model) UpsertNode(n *Node) bool {
	if n == nil || n.Hash == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.index[n.Hash]; ok {
		return false
	}
	m.nodes = append(m.nodes, n)
	m.index[n.Hash] = n
	return true
}

// RemoveNodeByHash removes the node from both the list and the index,
// preserving the order of the remaining nodes.
//
// Outputs:
//
//	error - ErrNodeNotFound if hash is unknown.
func (m *Model) RemoveNodeByHash(hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.index[hash]
	if !ok {
		return ErrNodeNotFound
	}
	delete(m.index, hash)
	for i, cur := range m.nodes {
		if cur == n {
			copy(m.nodes[i:], m.nodes[i+1:])
			m.nodes[len(m.nodes)-1] = nil
			m.nodes = m.nodes[:len(m.nodes)-1]
			break
		}
	}
	return nil
}

// ColorFor returns the color bound to a predicate type.
func (m *Model) ColorFor(predicateType string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.colors[predicateType]
	return c, ok
}

// BindColor binds color to predicateType if no color is bound yet.
// The first binding wins for the lifetime of the model.
//
// Outputs:
//
//	bool - True if this call created the binding.
func (m *Model) BindColor(predicateType, color string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.colors[predicateType]; ok {
		return false
	}
	m.colors[predicateType] = color
	m.colorOrder = append(m.colorOrder, predicateType)
	return true
}

// ReplaceLinks swaps in a freshly derived edge list. The slice is owned by
// the model after the call.
func (m *Model) ReplaceLinks(links []*Edge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = links
}

// Layout hands the live node and edge slices to fn under the exclusive
// lock. fn may write layout-injected node fields only.
func (m *Model) Layout(fn func(nodes []*Node, links []*Edge)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.nodes, m.links)
}

// Nodes returns the live node pointers in insertion order. The returned
// slice is a copy; the nodes are not.
func (m *Model) Nodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Node(nil), m.nodes...)
}

// Links returns a copy of the current edge list.
func (m *Model) Links() []*Edge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Edge(nil), m.links...)
}

// Colors returns a copy of the predicate color map.
func (m *Model) Colors() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.colors))
	for k, v := range m.colors {
		out[k] = v
	}
	return out
}

// Predicates returns predicate types in the order their colors were bound.
func (m *Model) Predicates() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.colorOrder...)
}

// EdgeColor resolves the color for an edge's predicate, DefaultEdgeColor
// when none is bound.
func (m *Model) EdgeColor(predicateType string) string {
	if c, ok := m.ColorFor(predicateType); ok && c != "" {
		return c
	}
	return DefaultEdgeColor
}

// Snapshot copies the whole model under one read lock.
func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		Nodes:  make([]NodeView, 0, len(m.nodes)),
		Links:  make([]EdgeView, 0, len(m.links)),
		Colors: make(map[string]string, len(m.colors)),
	}
	for _, n := range m.nodes {
		s.Nodes = append(s.Nodes, n.view())
	}
	for _, e := range m.links {
		color := m.colors[e.Predicate]
		if color == "" {
			color = DefaultEdgeColor
		}
		s.Links = append(s.Links, EdgeView{
			Source:    e.Source.Hash,
			Target:    e.Target.Hash,
			Predicate: e.Predicate,
			Color:     color,
		})
	}
	for k, v := range m.colors {
		s.Colors[k] = v
	}
	return s
}

// Stats returns current counts.
func (m *Model) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{Nodes: len(m.nodes), Links: len(m.links), Predicates: len(m.colors)}
}
