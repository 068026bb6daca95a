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
	"hash/fnv"
	"math"

	"github.com/AleutianAI/AleutianWeave/services/weave/graph"
)

const (
	defaultNodeSize = 20.0
	overlapPadding  = 2.0

	springStrength = 0.1
	centerStrength = 0.02
	velocityDamp   = 0.6
	alphaDecay     = 0.97
	alphaMin       = 0.001
)

// ForceSolver is a small force-directed solver: pairwise repulsion,
// springs whose rest length grows with the Jaccard similarity of the
// endpoints' neighborhoods, a centering pull after the coarse phase, and
// overlap removal in the fine phase.
//
// New nodes are seeded deterministically next to an already placed
// neighbor when one exists, otherwise on a ring around the canvas center,
// so a restart never moves existing nodes to fresh random positions.
type ForceSolver struct {
	opts    Options
	alpha   float64
	lengths []float64
}

// NewForceSolver returns a solver using opts. Non-positive dimensions and
// link lengths fall back to DefaultOptions.
func NewForceSolver(opts Options) *ForceSolver {
	def := DefaultOptions()
	if opts.JaccardLinkLengths <= 0 {
		opts.JaccardLinkLengths = def.JaccardLinkLengths
	}
	if opts.Width <= 0 {
		opts.Width = def.Width
	}
	if opts.Height <= 0 {
		opts.Height = def.Height
	}
	return &ForceSolver{opts: opts, alpha: 1}
}

// Options implements Solver.
func (s *ForceSolver) Options() Options { return s.opts }

// Relink implements Solver. It recomputes the per-link rest lengths.
func (s *ForceSolver) Relink(nodes []*graph.Node, links []*graph.Edge) {
	s.alpha = 1
	s.lengths = jaccardLengths(links, s.opts.JaccardLinkLengths)
}

// Step implements Solver.
func (s *ForceSolver) Step(phase Phase, nodes []*graph.Node, links []*graph.Edge) float64 {
	if len(s.lengths) != len(links) {
		s.lengths = jaccardLengths(links, s.opts.JaccardLinkLengths)
	}
	s.seed(nodes, links)

	n := len(nodes)
	fx := make([]float64, n)
	fy := make([]float64, n)
	pos := make(map[*graph.Node]int, n)
	for i, node := range nodes {
		pos[node] = i
	}

	base := s.opts.JaccardLinkLengths
	charge := 30 * base * s.alpha
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := nodes[j].X - nodes[i].X
			dy := nodes[j].Y - nodes[i].Y
			if dx == 0 && dy == 0 {
				dx = float64(j-i) * 0.1
			}
			d2 := math.Max(dx*dx+dy*dy, 1)
			f := charge / d2
			fx[i] -= dx * f
			fy[i] -= dy * f
			fx[j] += dx * f
			fy[j] += dy * f
		}
	}

	for k, e := range links {
		a, okA := pos[e.Source]
		b, okB := pos[e.Target]
		if !okA || !okB || a == b {
			continue
		}
		dx := nodes[b].X - nodes[a].X
		dy := nodes[b].Y - nodes[a].Y
		d := math.Hypot(dx, dy)
		if d == 0 {
			d = 1
		}
		f := (d - s.lengths[k]) * springStrength * s.alpha
		fx[a] += dx / d * f
		fy[a] += dy / d * f
		fx[b] -= dx / d * f
		fy[b] -= dy / d * f
	}

	if phase != PhaseCoarse {
		cx, cy := s.opts.Width/2, s.opts.Height/2
		for i, node := range nodes {
			fx[i] += (cx - node.X) * centerStrength * s.alpha
			fy[i] += (cy - node.Y) * centerStrength * s.alpha
		}
	}

	var displacement float64
	for i, node := range nodes {
		node.VX = clamp((node.VX+fx[i])*velocityDamp, base)
		node.VY = clamp((node.VY+fy[i])*velocityDamp, base)
		node.X += node.VX
		node.Y += node.VY
		displacement += math.Hypot(node.VX, node.VY)
	}

	if phase == PhaseFine && s.opts.AvoidOverlaps {
		displacement += removeOverlaps(nodes)
	}

	s.alpha = math.Max(s.alpha*alphaDecay, alphaMin)
	return displacement
}

// seed assigns index and size to every node and a starting position to
// nodes that have never been placed.
func (s *ForceSolver) seed(nodes []*graph.Node, links []*graph.Edge) {
	cx, cy := s.opts.Width/2, s.opts.Height/2
	base := s.opts.JaccardLinkLengths

	for i, node := range nodes {
		node.Index = i
		if node.Width == 0 {
			node.Width = defaultNodeSize
		}
		if node.Height == 0 {
			node.Height = defaultNodeSize
		}
		if node.Placed {
			continue
		}

		angle := hashAngle(node.Hash)
		ox, oy, r := cx, cy, base/2
		if nb := placedNeighbor(node, links); nb != nil {
			ox, oy, r = nb.X, nb.Y, base
		}
		node.X = ox + r*math.Cos(angle)
		node.Y = oy + r*math.Sin(angle)
		node.VX, node.VY = 0, 0
		node.Placed = true
	}
}

func placedNeighbor(node *graph.Node, links []*graph.Edge) *graph.Node {
	for _, e := range links {
		if e.Source == node && e.Target.Placed {
			return e.Target
		}
		if e.Target == node && e.Source.Placed {
			return e.Source
		}
	}
	return nil
}

func hashAngle(hash string) float64 {
	h := fnv.New32a()
	h.Write([]byte(hash))
	return float64(h.Sum32()%3600) / 3600 * 2 * math.Pi
}

// jaccardLengths gives each link a rest length of base*(1+J), where J is
// the Jaccard similarity of the endpoints' neighbor sets. Endpoints with a
// single neighbor get J = 0.
func jaccardLengths(links []*graph.Edge, base float64) []float64 {
	neighbors := make(map[*graph.Node]map[*graph.Node]struct{})
	add := func(a, b *graph.Node) {
		set, ok := neighbors[a]
		if !ok {
			set = make(map[*graph.Node]struct{})
			neighbors[a] = set
		}
		set[b] = struct{}{}
	}
	for _, e := range links {
		add(e.Source, e.Target)
		add(e.Target, e.Source)
	}

	lengths := make([]float64, len(links))
	for i, e := range links {
		a, b := neighbors[e.Source], neighbors[e.Target]
		sim := 0.0
		if len(a) > 1 && len(b) > 1 {
			inter := 0
			for n := range a {
				if _, ok := b[n]; ok {
					inter++
				}
			}
			union := len(a) + len(b) - inter
			sim = float64(inter) / float64(union)
		}
		lengths[i] = base * (1 + sim)
	}
	return lengths
}

// removeOverlaps pushes apart every pair of nodes whose bounding circles
// intersect and returns the total distance moved.
func removeOverlaps(nodes []*graph.Node) float64 {
	var moved float64
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			a, b := nodes[i], nodes[j]
			minDist := (math.Max(a.Width, a.Height)+math.Max(b.Width, b.Height))/2 + overlapPadding
			dx, dy := b.X-a.X, b.Y-a.Y
			d := math.Hypot(dx, dy)
			if d >= minDist {
				continue
			}
			// Coincident nodes separate along the x axis.
			ux, uy := 1.0, 0.0
			if d > 0 {
				ux, uy = dx/d, dy/d
			}
			push := (minDist - d) / 2
			a.X -= ux * push
			a.Y -= uy * push
			b.X += ux * push
			b.Y += uy * push
			moved += 2 * push
		}
	}
	return moved
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}
