// Package cmd implements connectorctl, an operator tool for the credentials kept by
// the connector.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pilab-dev/googleconnector/config"
	"github.com/pilab-dev/googleconnector/internal/connector"
	"github.com/pilab-dev/googleconnector/internal/federation"
	"github.com/pilab-dev/googleconnector/internal/oauthsession"
	"github.com/pilab-dev/googleconnector/internal/stores"
	"github.com/pilab-dev/googleconnector/log"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const appName = "connectorctl"

// app carries what the subcommands share. Stores and service are opened lazily from
// configuration unless already set.
type app struct {
	cfgFile string
	verbose bool

	stores    *stores.Stores
	service   *federation.Service
	connector *connector.Connector
	logger    log.Logger
	out       io.Writer
}

func (a *app) open(ctx context.Context) error {
	level := zerolog.WarnLevel
	if a.verbose {
		level = zerolog.DebugLevel
	}
	if a.logger == nil {
		a.logger = log.NewZerologAdapter(level, true)
	}
	if a.stores != nil {
		return nil
	}

	cfg, err := config.LoadConfig(a.cfgFile)
	if err != nil {
		return err
	}
	backends, err := stores.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}
	bridge := oauthsession.NewBridge(backends.Sessions, oauthsession.WithTTL(cfg.Session.TTL))
	service, err := federation.NewServiceFromConfigs(cfg.ProviderConfigs(), cfg.CallbackBaseURL, bridge, backends.Credentials, a.logger)
	if err != nil {
		_ = backends.Close(ctx)
		return err
	}

	a.stores = backends
	a.service = service
	a.connector = connector.New(service)
	return nil
}

func (a *app) close(ctx context.Context) {
	if a.stores == nil {
		return
	}
	if err := a.stores.Close(ctx); err != nil {
		a.logger.Warn(ctx, "Closing storage failed", map[string]interface{}{"error": err.Error()})
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "connectorctl inspects and maintains stored OAuth2 client credentials",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if a.out == nil {
				a.out = cmd.OutOrStdout()
			}
			return a.open(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			a.close(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./connector.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output")

	root.AddCommand(newProvidersCmd(a), newCredentialsCmd(a))
	return root
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd(&app{}).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
