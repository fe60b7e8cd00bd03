package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"warden-hq/warden/pkg/config"
	"warden-hq/warden/pkg/gateway"
	"warden-hq/warden/pkg/server"
	"warden-hq/warden/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Warden gateway",
	Long: `Start the Warden gateway with the specified configuration.

The gateway listens on the configured address and relays streaming requests
through the moderation engine. The training scheduler and the artifact
watcher run in the background.

Examples:
  # Start with defaults and an upstream from the environment
  WARDEN_UPSTREAM_BASE_URL=https://api.example.com warden run

  # Start with a config file
  warden run --config /etc/warden/config.yaml

  # Override the listen address
  warden run --listen 0.0.0.0:8080

  # Validate config without starting
  warden run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the gateway")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Flag overrides win over file and environment.
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	if _, err := logging.Setup(cfg.Telemetry.Logging, os.Stdout); err != nil {
		return err
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := gw.Start(ctx, gw.StartToken()); err != nil {
		return err
	}

	fmt.Printf("✓ Warden listening on %s (upstream %s)\n",
		cfg.Server.ListenAddress, cfg.Upstream.BaseURL)

	srv := server.New(cfg.Server, gw)
	return srv.Start(ctx)
}
