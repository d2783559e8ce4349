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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianAsk/services/ask/bootstrap"
	"github.com/AleutianAI/AleutianAsk/services/ask/config"
	"github.com/AleutianAI/AleutianAsk/services/ask/orchestrator"
)

// rootOptions hold the persistent flag values.
type rootOptions struct {
	configPath string
	logLevel   string
}

type queryOptions struct {
	mode      string
	tools     []string
	showTrace bool
	asJSON    bool
}

func newRootCmd() *cobra.Command {
	ro := &rootOptions{}
	root := &cobra.Command{
		Use:          "ask",
		Short:        "Answer questions from Slack, docs, community, metrics and meetings",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&ro.configPath, "config", "", "Overlay config file (defaults to $ASK_CONFIG)")
	root.PersistentFlags().StringVar(&ro.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	root.AddCommand(newQueryCmd(ro), newPlanCmd(ro), newToolsCmd(ro))
	return root
}

func newQueryCmd(ro *rootOptions) *cobra.Command {
	qo := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query <question...>",
		Short: "Answer a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ro.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			resp, err := app.Orchestrator.Run(cmd.Context(), orchestrator.Request{
				Query: strings.Join(args, " "),
				Mode:  qo.mode,
				Tools: qo.tools,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if qo.asJSON {
				return writeJSON(out, resp)
			}
			renderResponse(out, resp, qo.showTrace, newStyles(colorEnabled(out)))
			return nil
		},
	}
	cmd.Flags().StringVar(&qo.mode, "mode", "planned", "Orchestration mode: direct or planned")
	cmd.Flags().StringSliceVar(&qo.tools, "tools", nil, "Restrict to these tool ids (comma separated)")
	cmd.Flags().BoolVar(&qo.showTrace, "show-trace", false, "Print the execution trace")
	cmd.Flags().BoolVar(&qo.asJSON, "json", false, "Print the full response as JSON")
	return cmd
}

func newPlanCmd(ro *rootOptions) *cobra.Command {
	var tools []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "plan <question...>",
		Short: "Show the plan for a question without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ro.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Orchestrator.Plan(cmd.Context(), strings.Join(args, " "), tools)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, res)
			}
			renderPlan(out, res, newStyles(colorEnabled(out)))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&tools, "tools", nil, "Restrict to these tool ids (comma separated)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the plan as JSON")
	return cmd
}

func newToolsCmd(ro *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools configured in this environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ro.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			renderTools(out, app.Catalog.Specs(), app.Skipped, newStyles(colorEnabled(out)))
			return nil
		},
	}
}

// open loads configuration and secrets and wires the app. Logs go to
// errOut.
func (ro *rootOptions) open(errOut io.Writer) (*bootstrap.App, error) {
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: parseLevel(ro.logLevel)}))

	cfg, err := config.Load(ro.configPath)
	if err != nil {
		return nil, err
	}
	return bootstrap.New(bootstrap.Options{
		Source:  config.NewSource(cfg),
		Secrets: config.LoadSecrets(os.LookupEnv),
		Logger:  logger,
	})
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelWarn
	}
	return lvl
}

// colorEnabled reports whether w is a terminal.
func colorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
