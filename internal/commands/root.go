// Package commands implements the paperrag command line.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/smallnest/paperrag/config"
	"github.com/smallnest/paperrag/internal/app"
	"github.com/smallnest/paperrag/log"
	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
)

// cli carries the flags shared by every subcommand and the lazily built App.
type cli struct {
	envFile  string
	logLevel string

	cfg *config.Config
	app *app.App

	// appOptions are passed to app.New; tests use them to inject fakes.
	appOptions []app.Option
}

// NewRootCmd builds the command tree.
func NewRootCmd(opts ...app.Option) *cobra.Command {
	c := &cli{appOptions: opts}

	root := &cobra.Command{
		Use:           "paperrag",
		Short:         "paperrag answers questions over a library of research papers",
		Version:       fmt.Sprintf("%s (commit: %s)", appVersion, appCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFiles(c.envFile)
			if err != nil {
				return err
			}
			if c.logLevel != "" {
				if _, err := log.ParseLevel(c.logLevel); err != nil {
					return err
				}
				cfg.LogLevel = c.logLevel
			}
			c.cfg = cfg
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.app != nil {
				return c.app.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&c.envFile, "env", ".env", "dotenv file read before the environment")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error or none (overrides LOG_LEVEL)")

	root.AddCommand(
		c.ingestCmd(),
		c.queryCmd(),
		c.searchWebCmd(),
		c.papersCmd(),
		c.trendsCmd(),
		c.reportCmd(),
		c.statusCmd(),
	)
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

// open builds the App on first use.
func (c *cli) open(ctx context.Context) (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	a, err := app.New(ctx, c.cfg, c.appOptions...)
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}
