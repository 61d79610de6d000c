package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hed1ad/fraudshield/pkg/config"
)

// globalParams are set by the persistent flags and the config file.
type globalParams struct {
	configPath string
	logLevel   string
	modelsDir  string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	g := &globalParams{}

	cmd := &cobra.Command{
		Use:           "fraudshield",
		Short:         "Hybrid credit card fraud detection",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	cmd.PersistentFlags().StringVar(&g.modelsDir, "models", "", "Directory holding the model artifacts (overrides config)")

	cmd.AddCommand(
		newServeCmd(g),
		newScoreCmd(g),
		newVersionCmd(),
	)
	return cmd
}

func (g *globalParams) load(cmd *cobra.Command) error {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if cmd.Flags().Changed("models") {
		cfg.Models.Dir = g.modelsDir
	}
	if err := applyLogging(cfg.Log); err != nil {
		return err
	}

	g.cfg = cfg
	log.WithField("config", g.configPath).Debug("configuration loaded")
	return nil
}

func initLogging() {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)
	log.SetReportCaller(false)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:          true,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
}

func applyLogging(c config.Log) error {
	if c.Level != "" {
		level, err := log.ParseLevel(c.Level)
		if err != nil {
			return errors.Wrapf(err, "invalid log level %q", c.Level)
		}
		log.SetLevel(level)
	}

	if strings.EqualFold(c.Format, config.FormatJSON) {
		log.SetFormatter(&log.JSONFormatter{})
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := version
			if commit != "" {
				v = fmt.Sprintf("%s (commit: %s)", version, commit)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), v)
			return err
		},
	}
}
