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
	"math"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianWeave/services/weave/graph"
)

// NodeFrame is a node's position at one tick.
type NodeFrame struct {
	Hash   string  `json:"hash"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// EdgeFrame is an edge's path descriptor at one tick. Path is an SVG arc
// from source to target whose radius equals the straight-line distance.
type EdgeFrame struct {
	Source    string  `json:"source"`
	Target    string  `json:"target"`
	Predicate string  `json:"predicate"`
	Color     string  `json:"color"`
	Marker    string  `json:"marker"`
	SourceX   float64 `json:"sourceX"`
	SourceY   float64 `json:"sourceY"`
	TargetX   float64 `json:"targetX"`
	TargetY   float64 `json:"targetY"`
	Radius    float64 `json:"radius"`
	Path      string  `json:"path"`
}

// Frame is everything a renderer needs to draw one tick.
type Frame struct {
	Seq   uint64      `json:"seq"`
	Run   uint64      `json:"run"`
	Phase Phase       `json:"phase"`
	Final bool        `json:"final"`
	Nodes []NodeFrame `json:"nodes"`
	Edges []EdgeFrame `json:"edges"`
}

// ArcPath renders "M sx,sy A dr,dr 0 0,1 tx,ty".
func ArcPath(sx, sy, tx, ty float64) (path string, radius float64) {
	radius = math.Hypot(tx-sx, ty-sy)
	var b strings.Builder
	b.WriteString("M")
	b.WriteString(num(sx))
	b.WriteString(",")
	b.WriteString(num(sy))
	b.WriteString("A")
	b.WriteString(num(radius))
	b.WriteString(",")
	b.WriteString(num(radius))
	b.WriteString(" 0 0,1 ")
	b.WriteString(num(tx))
	b.WriteString(",")
	b.WriteString(num(ty))
	return b.String(), radius
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// buildFrame copies positions out of the live slices. It runs under the
// model lock, so it must not call back into the model; colors is a copy
// taken before the run started.
func buildFrame(nodes []*graph.Node, links []*graph.Edge, colors map[string]string) Frame {
	f := Frame{
		Nodes: make([]NodeFrame, 0, len(nodes)),
		Edges: make([]EdgeFrame, 0, len(links)),
	}
	for _, n := range nodes {
		f.Nodes = append(f.Nodes, NodeFrame{Hash: n.Hash, X: n.X, Y: n.Y, Width: n.Width, Height: n.Height})
	}
	for _, e := range links {
		color := colors[e.Predicate]
		if color == "" {
			color = graph.DefaultEdgeColor
		}
		path, radius := ArcPath(e.Source.X, e.Source.Y, e.Target.X, e.Target.Y)
		f.Edges = append(f.Edges, EdgeFrame{
			Source:    e.Source.Hash,
			Target:    e.Target.Hash,
			Predicate: e.Predicate,
			Color:     color,
			Marker:    MarkerID(color),
			SourceX:   e.Source.X,
			SourceY:   e.Source.Y,
			TargetX:   e.Target.X,
			TargetY:   e.Target.Y,
			Radius:    radius,
			Path:      path,
		})
	}
	return f
}
