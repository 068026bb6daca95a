// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package palette chooses colors for predicate types that arrive without one.
//
// Two policies exist:
//
//   - Hash derives a hue from the FNV-1a hash of the type name, so the same
//     type gets the same color on every run and every machine.
//   - Fixed picks from a configured list, indexed by the same hash.
//
// A caller-supplied color always wins over the policy; the policy is only
// consulted on the first sighting of a type that has no color.
package palette

import (
	"errors"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Modes accepted by New.
const (
	ModeHash  = "hash"
	ModeFixed = "fixed"
	ModeNone  = "none"
)

var (
	// ErrUnknownMode is returned for an unrecognized Config.Mode.
	ErrUnknownMode = errors.New("unknown palette mode")

	// ErrEmptyPalette is returned when fixed mode has no colors.
	ErrEmptyPalette = errors.New("fixed palette has no colors")

	// ErrInvalidColor is returned when a fixed palette entry is not a hex color.
	ErrInvalidColor = errors.New("invalid palette color")
)

// Policy supplies a color for a predicate type.
type Policy interface {
	Color(predicateType string) string
}

// Config describes a Policy.
type Config struct {
	Mode       string   `yaml:"mode" validate:"omitempty,oneof=hash fixed none"`
	Colors     []string `yaml:"colors,omitempty"`
	Saturation float64  `yaml:"saturation" validate:"gte=0,lte=1"`
	Value      float64  `yaml:"value" validate:"gte=0,lte=1"`
}

// DefaultConfig returns the hash policy with mid saturation and high value,
// which keeps arrowheads readable on a white background.
func DefaultConfig() Config {
	return Config{Mode: ModeHash, Saturation: 0.65, Value: 0.85}
}

// New builds the Policy for cfg. ModeNone yields a nil Policy, meaning
// callers must always supply a color for new predicate types.
func New(cfg Config) (Policy, error) {
	switch strings.ToLower(cfg.Mode) {
	case ModeHash, "":
		s, v := cfg.Saturation, cfg.Value
		if s == 0 && v == 0 {
			d := DefaultConfig()
			s, v = d.Saturation, d.Value
		}
		return Hash{Saturation: s, Value: v}, nil
	case ModeFixed:
		p, err := NewFixed(cfg.Colors)
		if err != nil {
			return nil, err
		}
		return p, nil
	case ModeNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}
}

func sum32(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// Hash maps a type name to an HSV color with a hashed hue.
type Hash struct {
	Saturation float64
	Value      float64
}

// Color returns a "#rrggbb" color for predicateType.
func (p Hash) Color(predicateType string) string {
	hue := float64(sum32(predicateType) % 360)
	return colorful.Hsv(hue, p.Saturation, p.Value).Clamped().Hex()
}

// Fixed cycles through a validated color list.
type Fixed struct {
	colors []string
}

// NewFixed validates every entry as a hex color and normalizes it to
// lowercase "#rrggbb".
func NewFixed(colors []string) (*Fixed, error) {
	if len(colors) == 0 {
		return nil, ErrEmptyPalette
	}
	out := make([]string, len(colors))
	for i, c := range colors {
		parsed, err := colorful.Hex(strings.TrimSpace(c))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidColor, c, err)
		}
		out[i] = parsed.Hex()
	}
	return &Fixed{colors: out}, nil
}

// Color returns the list entry selected by the type's hash.
func (p *Fixed) Color(predicateType string) string {
	return p.colors[sum32(predicateType)%uint32(len(p.colors))]
}
