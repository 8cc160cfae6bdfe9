package main

import (
	"encoding/json"
	"fmt"

	"github.com/mohammad-safakhou/lessonplanner/internal/agent/core"
	"github.com/mohammad-safakhou/lessonplanner/internal/app"
	"github.com/spf13/cobra"
)

func stepCMD(load loader) *cobra.Command {
	var in core.WorkflowInput
	var sessionData string

	var step = &cobra.Command{
		Use:   "step",
		Short: "Run one wizard step through the workflow and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionData != "" {
				if err := json.Unmarshal([]byte(sessionData), &in.SessionData); err != nil {
					return fmt.Errorf("--session-data must be a JSON object: %w", err)
				}
			}
			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer log.Sync()

			a, err := app.Build(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.Orchestrator.Run(cmd.Context(), in)
			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	step.Flags().StringVar(&in.StepType, "step", "1", "wizard step type (1-9)")
	step.Flags().StringVar(&in.Task, "task", "", "the teacher's request")
	step.Flags().StringVar(&in.Context, "context", "", "additional context")
	step.Flags().StringVar(&sessionData, "session-data", "", "session data as a JSON object")
	_ = step.MarkFlagRequired("task")

	return step
}
