package main

import (
	"fmt"
	"os"

	"pricelens-gateway/internal/config"
	"pricelens-gateway/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pricelens",
		Short:         "Pricelens gateway: the API between the web UI and the price tracking backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          func(cmd *cobra.Command, args []string) error { return runServe(cmd) },
	}
	root.AddCommand(newServeCmd(), newPruneAuditCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE:  func(cmd *cobra.Command, args []string) error { return runServe(cmd) },
	}
}

func newPruneAuditCmd() *cobra.Command {
	var olderThan string
	cmd := &cobra.Command{
		Use:   "prune-audit",
		Short: "Delete review audit entries past retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if olderThan != "" {
				d, err := parseRetention(olderThan)
				if err != nil {
					return err
				}
				cfg.Review.AuditRetention = d
			}
			return runPruneAudit(cmd, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&olderThan, "older-than", "", "retention window, e.g. 720h or 30d (default REVIEW_AUDIT_RETENTION)")
	return cmd
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.App, cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
