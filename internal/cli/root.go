// Package cli wires the truthvision command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/truthvision/truthvision-go/internal/config"
	"github.com/truthvision/truthvision-go/internal/logger"
)

// app carries state shared by every subcommand.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
}

// RootCommand creates and returns the root command
func RootCommand() *cobra.Command {
	a := &app{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:          "truthvision",
		Short:        "TruthVision AI-content detection client",
		SilenceUsage: true,
	}

	// Set up the global flags for the root command.
	if err := a.setupFlags(rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		analyzeCommand(a),
		serveCommand(a),
		healthCommand(a),
		versionCommand(),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Skip setup for the version command
		if cmd.Name() == "version" {
			return nil
		}
		return a.initialize(cmd)
	}

	return rootCmd
}

func (a *app) setupFlags(fs *pflag.FlagSet) error {
	fs.StringVar(&a.configFile, "config", "", "Path to a config file (yaml, toml or json)")
	fs.String("api-url", config.DefaultAPIURL, "Base URL of the detection service")
	fs.Duration("timeout", 0, "Timeout for one analysis call, 0 for none")
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
	fs.String("log-format", "json", "Log format: json, text")

	return bindFlags(a.v, fs, map[string]string{
		config.KeyAPIURL:         "api-url",
		config.KeyRequestTimeout: "timeout",
		config.KeyLogLevel:       "log-level",
		config.KeyLogFormat:      "log-format",
	})
}

// bindFlags maps config keys to flag names so flags take precedence over
// the environment and the config file.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}

// initialize runs before any subcommand, once flags are parsed.
func (a *app) initialize(cmd *cobra.Command) error {
	if a.configFile != "" {
		a.v.SetConfigFile(a.configFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}
	// Reports own stdout
	logger.Logger.SetOutput(cmd.ErrOrStderr())

	a.cfg = cfg
	return nil
}
