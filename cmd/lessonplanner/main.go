package main

import (
	"fmt"
	"os"

	"github.com/mohammad-safakhou/lessonplanner/config"
	"github.com/mohammad-safakhou/lessonplanner/internal/logger"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCMD().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCMD() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:          "lessonplanner",
		Short:        "Lesson planning assistant for inclusive classrooms",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")

	load := func() (*config.Config, *logger.Logger, error) {
		cfg, err := config.LoadConfig(cfgPath)
		if err != nil {
			return nil, nil, err
		}
		log, err := logger.New(cfg.General.LogMode, cfg.General.LogLevel)
		if err != nil {
			return nil, nil, fmt.Errorf("init logger: %w", err)
		}
		return cfg, log, nil
	}

	root.AddCommand(serveCMD(load), migrateCMD(load), stepCMD(load), indexCMD(load))
	return root
}

type loader func() (*config.Config, *logger.Logger, error)
