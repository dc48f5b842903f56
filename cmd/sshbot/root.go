package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/m3rciful/sshbot/core/buildinfo"
	corecmd "github.com/m3rciful/sshbot/core/cmd"
	coreconfig "github.com/m3rciful/sshbot/core/config"
	"github.com/m3rciful/sshbot/core/logger"
	"github.com/m3rciful/sshbot/internal/app"
)

const (
	configEnvVar      = "CONFIG_PATH"
	defaultConfigPath = "config.yaml"
)

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "sshbot",
		Short:         "Telegram bot that runs commands on your servers over SSH",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadEnvFile(opts.envFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $"+configEnvVar+" or "+defaultConfigPath+")")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the bot until interrupted",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return runBot(opts)
			},
		},
		newSessionsCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadEnvFile fills the environment from path. A missing file is fine;
// variables already set win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func runBot(opts *rootOptions) error {
	return corecmd.Run(corecmd.Options{
		ConfigPath:        opts.configPath,
		ConfigEnvVar:      configEnvVar,
		DefaultConfigPath: defaultConfigPath,
		LoadConfig: func(path string) (coreconfig.Carrier, error) {
			return app.LoadConfig(path)
		},
		Bootstrap: app.Bootstrap,
	})
}

// loadConfig resolves and loads the config and starts the logger for the
// one-shot commands.
func loadConfig(ctx context.Context, opts *rootOptions) (*app.Config, func(), error) {
	path, err := corecmd.ResolveConfigPath(opts.configPath, configEnvVar, defaultConfigPath)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := app.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	if err := logger.InitLogger(cfg.CoreConfig()); err != nil {
		return nil, nil, err
	}
	logger.Debug(ctx, logger.ComponentApp, "config_loaded")
	return cfg, func() { _ = logger.Shutdown() }, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sshbot %s (commit %s", buildinfo.Version, buildinfo.Commit)
			if buildinfo.Date != "" {
				fmt.Fprintf(cmd.OutOrStdout(), ", built %s", buildinfo.Date)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ")")
		},
	}
}
