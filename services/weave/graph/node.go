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

// DefaultEdgeColor is used for edges whose predicate has no bound color.
const DefaultEdgeColor = "black"

// Node is a vertex of the rendered graph.
//
// Hash is the sole identity key. Attrs belong to the application and are
// never interpreted here. The remaining fields are written by the layout
// solver once the node takes part in a layout pass; nothing else may
// write them while the node is in a Model.
type Node struct {
	Hash  string         `json:"hash"`
	Attrs map[string]any `json:"attrs,omitempty"`

	// Layout-injected fields.
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	VX     float64 `json:"vx"`
	VY     float64 `json:"vy"`
	Index  int     `json:"index"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Placed bool    `json:"placed"`
}

// Predicate labels an edge type. Type is the identity key used for
// matching and color lookup; Color is only consulted the first time Type
// is seen.
type Predicate struct {
	Type  string `json:"type"`
	Color string `json:"color,omitempty"`
}

// Edge is a derived link between two live nodes. Edges are rebuilt from
// the triplet store on every resync and never persisted.
type Edge struct {
	Source    *Node
	Target    *Node
	Predicate string
}

// NodeView is a copied, JSON-ready view of a Node.
type NodeView struct {
	Hash   string         `json:"hash"`
	Attrs  map[string]any `json:"attrs,omitempty"`
	X      float64        `json:"x"`
	Y      float64        `json:"y"`
	Placed bool           `json:"placed"`
}

// EdgeView is a copied, JSON-ready view of an Edge with its color resolved.
type EdgeView struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Predicate string `json:"predicate"`
	Color     string `json:"color"`
}

// Snapshot is a consistent copy of the whole model.
type Snapshot struct {
	Nodes  []NodeView        `json:"nodes"`
	Links  []EdgeView        `json:"links"`
	Colors map[string]string `json:"colors"`
}

// Stats summarizes model size.
type Stats struct {
	Nodes      int `json:"nodes"`
	Links      int `json:"links"`
	Predicates int `json:"predicates"`
}

func (n *Node) view() NodeView {
	v := NodeView{Hash: n.Hash, X: n.X, Y: n.Y, Placed: n.Placed}
	if len(n.Attrs) > 0 {
		v.Attrs = make(map[string]any, len(n.Attrs))
		for k, a := range n.Attrs {
			v.Attrs[k] = a
		}
	}
	return v
}
