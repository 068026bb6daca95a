// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianWeave/pkg/ux"
	"github.com/AleutianAI/AleutianWeave/services/weave/engine"
	"github.com/AleutianAI/AleutianWeave/services/weave/triplestore"
)

func newAddCmd(o *rootOptions) *cobra.Command {
	var color string
	cmd := &cobra.Command{
		Use:   "add SUBJECT PREDICATE OBJECT",
		Short: "Persist a triplet",
		Long: `Persist a triplet. The first triplet of a predicate type fixes its
color: --color if given, otherwise the configured palette.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			req := engine.TripletRequest{Subject: args[0], Predicate: args[1], Object: args[2], Color: color}
			if err := s.engine.Apply(cmd.Context(), req); err != nil {
				return err
			}

			out := output(cmd)
			out.Success(fmt.Sprintf("added (%s %s %s)", req.Subject, req.Predicate, req.Object))
			if c, ok := s.engine.Model().ColorFor(req.Predicate); ok && color != "" && c != color {
				out.Warning(fmt.Sprintf("%s keeps its color %s", req.Predicate, c))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&color, "color", "", "color for a new predicate type")
	return cmd
}

func newListCmd(o *rootOptions) *cobra.Command {
	var p triplestore.Pattern
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored triplets, optionally filtered by exact match",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := p.Validate(); err != nil {
				return err
			}
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			triplets, err := s.engine.Query(cmd.Context(), p)
			if err != nil {
				return err
			}

			out := output(cmd)
			if len(triplets) == 0 {
				out.Info("no triplets")
				return nil
			}
			model := s.engine.Model()
			rows := make([]ux.TripletRow, 0, len(triplets))
			for _, t := range triplets {
				rows = append(rows, ux.TripletRow{
					Subject:   t.Subject,
					Predicate: t.Predicate,
					Object:    t.Object,
					Color:     model.EdgeColor(t.Predicate),
				})
			}
			sort.SliceStable(rows, func(i, j int) bool { return rows[i].Subject < rows[j].Subject })

			out.Title(fmt.Sprintf("%d triplets", len(rows)))
			out.Triplets(rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&p.Subject, "subject", "", "match this subject")
	cmd.Flags().StringVar(&p.Predicate, "predicate", "", "match this predicate")
	cmd.Flags().StringVar(&p.Object, "object", "", "match this object")
	return cmd
}

func newRemoveCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove HASH",
		Short: "Delete a node and every triplet referencing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			out := output(cmd)
			err = s.engine.RemoveNode(cmd.Context(), args[0])
			switch {
			case err == nil:
				out.Success("removed " + args[0])
				return nil
			case errors.Is(err, engine.ErrNodeNotFound):
				out.Warning(fmt.Sprintf("removed triplets of %s, but %v", args[0], err))
				return nil
			default:
				return err
			}
		},
	}
}
