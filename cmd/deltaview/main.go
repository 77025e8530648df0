// Command deltaview browses an S3-compatible bucket and previews the data
// objects in it, either as a web UI (serve) or from the shell (ls, preview).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/justapithecus/deltaview/deltaview"
	"github.com/justapithecus/deltaview/deltaview/local"
	s3store "github.com/justapithecus/deltaview/deltaview/s3"
	"github.com/justapithecus/deltaview/internal/config"
	"github.com/justapithecus/deltaview/internal/logging"
	"github.com/justapithecus/deltaview/internal/s3"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds state shared by every subcommand once the root has loaded it.
type app struct {
	envFile   string
	localRoot string
	logLevel  string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "deltaview",
		Short:        "Browse and preview data objects in an S3 bucket",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.envFile, "env-file", config.DefaultEnvFile, "file of KEY=value settings read before the environment")
	flags.StringVar(&a.localRoot, "local-root", "", "serve a local directory instead of a bucket")
	flags.StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(a),
		newListCommand(a),
		newPreviewCommand(a),
	)
	return root
}

func (a *app) load() error {
	var opts []config.Option
	if a.localRoot != "" {
		opts = append(opts, config.WithLocalRoot(a.localRoot))
	}
	if a.logLevel != "" {
		opts = append(opts, func(c *config.Config) error {
			c.LogLevel = a.logLevel
			return nil
		})
	}
	cfg, err := config.Load(a.envFile, opts...)
	if err != nil {
		return err
	}
	lc, err := cfg.Logging()
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(lc)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// source opens the configured byte source and names it for display.
func (a *app) source(ctx context.Context) (deltaview.Source, string, error) {
	if a.cfg.LocalRoot != "" {
		store, err := local.NewOS(a.cfg.LocalRoot)
		if err != nil {
			return nil, "", err
		}
		return store, a.cfg.LocalRoot, nil
	}

	client, err := s3.NewClient(ctx, a.cfg.S3Client())
	if err != nil {
		return nil, "", fmt.Errorf("creating s3 client: %w", err)
	}
	store, err := s3store.New(client, s3store.Config{Bucket: a.cfg.S3BucketName})
	if err != nil {
		return nil, "", err
	}
	return store, a.cfg.S3BucketName, nil
}

func (a *app) previewer(ctx context.Context) (*deltaview.Previewer, string, error) {
	src, name, err := a.source(ctx)
	if err != nil {
		return nil, "", err
	}
	p, err := deltaview.NewPreviewer(src, deltaview.WithLogger(a.logger))
	if err != nil {
		return nil, "", err
	}
	return p, name, nil
}
