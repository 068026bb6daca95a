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
	"errors"

	"github.com/AleutianAI/AleutianWeave/services/weave/graph"
)

var (
	// ErrDisconnectedPacking is returned by NewAdapter when the solver packs
	// disconnected components. Packing re-positions whole components between
	// restarts, which makes the drawing jump.
	ErrDisconnectedPacking = errors.New("solver must not pack disconnected components")

	// ErrNilModel is returned by NewAdapter without a model.
	ErrNilModel = errors.New("layout adapter requires a graph model")

	// ErrClosed is returned by Restart after Close.
	ErrClosed = errors.New("layout adapter is closed")
)

// Phase is the warm-up stage of a simulation run.
type Phase string

const (
	// PhaseCoarse applies only repulsion and springs.
	PhaseCoarse Phase = "coarse"

	// PhaseMedium adds a centering force.
	PhaseMedium Phase = "medium"

	// PhaseFine adds overlap removal and runs until convergence.
	PhaseFine Phase = "fine"
)

// Passes is the iteration budget for each warm-up phase.
type Passes struct {
	Coarse int `yaml:"coarse" validate:"gte=0"`
	Medium int `yaml:"medium" validate:"gte=0"`
	Fine   int `yaml:"fine" validate:"gte=0"`
}

// DefaultPasses is the 10/15/20 warm-up schedule.
var DefaultPasses = Passes{Coarse: 10, Medium: 15, Fine: 20}

// Options are the solver settings visible to the adapter.
type Options struct {
	AvoidOverlaps      bool    `yaml:"avoid_overlaps"`
	JaccardLinkLengths float64 `yaml:"jaccard_link_lengths" validate:"gt=0"`
	HandleDisconnected bool    `yaml:"handle_disconnected"`
	Width              float64 `yaml:"width" validate:"gt=0"`
	Height             float64 `yaml:"height" validate:"gt=0"`
}

// DefaultOptions returns overlap avoidance on, Jaccard link length 50,
// no disconnected-component packing, and a 600x400 canvas.
func DefaultOptions() Options {
	return Options{
		AvoidOverlaps:      true,
		JaccardLinkLengths: 50,
		HandleDisconnected: false,
		Width:              600,
		Height:             400,
	}
}

// Solver is the force/constraint simulation driven by the Adapter.
//
// Every method is called with the model's exclusive lock held and receives
// the model's live slices. Implementations may write only the
// layout-injected node fields (X, Y, VX, VY, Index, Width, Height, Placed).
type Solver interface {
	// Options reports the solver configuration.
	Options() Options

	// Relink rebinds the solver to a new edge list and resets its cooling.
	Relink(nodes []*graph.Node, links []*graph.Edge)

	// Step advances one iteration and returns the total node displacement.
	Step(phase Phase, nodes []*graph.Node, links []*graph.Edge) float64
}
