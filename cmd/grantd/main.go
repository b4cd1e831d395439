package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/grantd-io/grantd/internal/config"
	"github.com/grantd-io/grantd/internal/service"
)

var (
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "grantd",
	Short: "Access grant reconciliation engine",
	Long: `grantd keeps account assignments synchronized with the declared
desired state: which principals hold which permission sets on which
accounts, organizational units, tagged account groups, or the whole
organization.

If no config file is specified, grantd looks for config.yaml in:
  - ./config.yaml
  - ./config/config.yaml
  - /etc/grantd/config.yaml
  - ~/.config/grantd/config.yaml`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reconciliation engine",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configFile)
		if err != nil {
			logrus.Fatalf("Failed to load configuration: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine, err := service.Connect(ctx, cfg)
		if err != nil {
			logrus.Fatalf("Failed to start reconciliation engine: %v", err)
		}
		engine.Start(ctx)

		<-ctx.Done()
		logrus.Info("Shutdown signal received, draining")
		engine.Stop()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file (optional)")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatalf("Failed to execute command: %v", err)
	}
}
