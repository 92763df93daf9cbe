package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/natserract/raclients/pkg/auth"
	"github.com/natserract/raclients/pkg/config"
)

type globals struct {
	debug    bool
	settings config.Settings
	logger   *zap.Logger
}

func newRootCommand() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "raclient",
		Short:         "Upload objects to MO and LoRa and query MO's GraphQL API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if g.logger != nil {
				_ = g.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "log at debug level")

	cmd.AddCommand(
		newUploadCommand(g),
		newQueryCommand(g),
		newTokenEndpointCommand(g),
	)
	return cmd
}

func (g *globals) init() error {
	var err error
	if g.debug {
		g.logger, err = zap.NewDevelopment()
	} else {
		g.logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	g.settings, err = config.Load()
	if err != nil {
		g.logger.Error("Failed to load config", zap.Error(err))
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

func newTokenEndpointCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "token-endpoint",
		Short: "Print the token endpoint derived from the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := auth.NewClient(g.settings, auth.WithLogger(g.logger))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), client.TokenEndpoint())
			return err
		},
	}
}
