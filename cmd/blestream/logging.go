package main

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blestream/internal/config"
	"github.com/srg/blestream/internal/logging"
)

// configureLogger builds the logger from cfg.Log, with --log-level taking precedence.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, io.Closer, error) {
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	return logging.New(cfg.Log)
}

// readConfig loads configuration from --config and the environment.
// When validate is false, problems are left for the caller.
func readConfig(cmd *cobra.Command, validate bool) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if validate {
		return config.Load(path)
	}
	return config.Read(path)
}
