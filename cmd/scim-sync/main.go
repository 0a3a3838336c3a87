// Command scim-sync reconciles Google Workspace users and groups into a SCIM target.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"keepersecurity.com/ksm-scim-sync/config"
	"keepersecurity.com/ksm-scim-sync/pkg/logger"
	"keepersecurity.com/ksm-scim-sync/scim"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

// Options holds command line flags.
type Options struct {
	ConfigPath      string
	DryRun          bool
	DeleteSuspended bool
	Groups          string
	Verbose         bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	interrupted := ctx.Err() != nil
	stop()
	os.Exit(exitCode(interrupted, err))
}

func exitCode(interrupted bool, err error) int {
	switch {
	case interrupted:
		fmt.Fprintln(os.Stderr, "Interrupted by user")
		return exitInterrupted
	case err != nil:
		return exitFailure
	}
	return exitOK
}

// NewRootCommand creates the scim-sync command.
func NewRootCommand() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:          "scim-sync",
		Short:        "Google Workspace to SCIM sync tool",
		Long:         "Reconciles Google Workspace users and groups or org units into users and teams of a SCIM provisioning API.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to TOML configuration file")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "preview changes without applying them")
	cmd.Flags().BoolVar(&opts.DeleteSuspended, "delete-suspended", false, "delete suspended users instead of just deactivating")
	cmd.Flags().StringVar(&opts.Groups, "groups", "", "comma-separated list of groups to sync (overrides config)")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose logging (DEBUG level)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

// applyOverrides applies command line flags on top of the loaded configuration.
func applyOverrides(cfg *config.Config, opts *Options) {
	if opts.Verbose {
		cfg.Logging.Level = "DEBUG"
	}
	if opts.DeleteSuspended {
		cfg.Sync.DeleteSuspended = true
	}
	if groups := scim.SplitList(opts.Groups); len(groups) > 0 {
		cfg.Google.Groups = groups
		cfg.Sync.Mode = string(scim.ModeGroup)
	}
}

func runSync(ctx context.Context, opts *Options, out io.Writer) error {
	cfg, err := config.NewConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	applyOverrides(cfg, opts)

	log, err := logger.New(cfg.Logging.LogLevel(), cfg.Logging.File)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if opts.DryRun {
		log.Info("running in DRY RUN mode - no changes will be made")
	}
	log.Infow("starting sync", "config", opts.ConfigPath,
		"org_units", strings.Join(cfg.Google.OrganizationalUnits, ","),
		"groups", strings.Join(cfg.Google.Groups, ","))

	googleParams, err := cfg.GoogleParameters()
	if err != nil {
		return err
	}
	source, err := scim.NewGoogleEndpoint(ctx, googleParams, log)
	if err != nil {
		return err
	}
	target := scim.NewScimEndpoint(cfg.ScimParameters(), nil, log)

	sync := scim.NewSynchronizer(source, target, cfg.Mapper(), cfg.SyncOptions(), log)
	result := sync.Synchronize(ctx, cfg.Scope(), opts.DryRun)
	scim.PrintStatistics(out, result)
	if !result.Success {
		return errors.New(result.Error)
	}
	log.Infow("sync completed", "duration", result.Duration().String(), "success_rate", result.SuccessRate())
	return nil
}
