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

import "sync"

// Arrowhead geometry shared by every marker.
const (
	markerViewBox = "0 -5 10 10"
	markerRefX    = 16
	markerRefY    = -1.5
	markerSize    = 6
	markerOrient  = "auto"
	markerPath    = "M0,-5L10,0L0,5"
)

// Marker describes an SVG arrowhead definition for one edge color.
type Marker struct {
	ID      string  `json:"id"`
	Color   string  `json:"color"`
	ViewBox string  `json:"viewBox"`
	RefX    float64 `json:"refX"`
	RefY    float64 `json:"refY"`
	Width   float64 `json:"markerWidth"`
	Height  float64 `json:"markerHeight"`
	Orient  string  `json:"orient"`
	Path    string  `json:"path"`
}

// MarkerID returns the element id edges of the given color reference.
func MarkerID(color string) string {
	return "arrow-" + color
}

// MarkerRegistry holds one marker per distinct color, in registration order.
type MarkerRegistry struct {
	mu      sync.RWMutex
	seen    map[string]struct{}
	markers []Marker
}

// NewMarkerRegistry returns an empty registry.
func NewMarkerRegistry() *MarkerRegistry {
	return &MarkerRegistry{seen: make(map[string]struct{})}
}

// RegisterMarker adds a marker for color. Registering a color twice is a
// no-op and returns false.
func (r *MarkerRegistry) RegisterMarker(color string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[color]; ok {
		return false
	}
	r.seen[color] = struct{}{}
	r.markers = append(r.markers, Marker{
		ID:      MarkerID(color),
		Color:   color,
		ViewBox: markerViewBox,
		RefX:    markerRefX,
		RefY:    markerRefY,
		Width:   markerSize,
		Height:  markerSize,
		Orient:  markerOrient,
		Path:    markerPath,
	})
	return true
}

// Has reports whether color has a marker.
func (r *MarkerRegistry) Has(color string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.seen[color]
	return ok
}

// Markers returns a copy of every registered marker.
func (r *MarkerRegistry) Markers() []Marker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Marker(nil), r.markers...)
}
