package main

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/lessonplanner/internal/app"
	"github.com/spf13/cobra"
)

func indexCMD(load loader) *cobra.Command {
	var source, column string

	var index = &cobra.Command{
		Use:   "index",
		Short: "Build the retrieval index for configured sources",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Retrieval.WarmTimeout)
			defer cancel()
			if source == "" {
				return a.Warm(ctx)
			}
			n, err := a.Retriever.Warm(ctx, source, column)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks\n", source, n)
			return nil
		},
	}
	index.Flags().StringVar(&source, "source", "", "only index this source")
	index.Flags().StringVar(&column, "column", "", "CSV column to index (default from config)")

	return index
}
