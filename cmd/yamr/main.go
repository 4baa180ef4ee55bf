package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/frederic-klein/yamr/internal/config"
	"github.com/frederic-klein/yamr/internal/dist"
)

// options holds the persistent flags.
type options struct {
	configPath string
	repos      []string
	remotes    []string
	jdk        bool
	cacheDir   string
	offline    bool
	timeout    time.Duration
	merge      string
	platform   string
	verbose    bool

	logger *log.Logger
	cfg    *config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := &options{}

	rootCmd := &cobra.Command{
		Use:   "yamr",
		Short: "Yet Another Module Repository - federated module lookup and installation",
		Long: "yamr federates local directories, remote HTTP repositories and the JDK module catalog " +
			"into one repository you can complete, search, fetch from and serve.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&o.configPath, "config", "", "Config file (default ~/.yamr/config.yaml or ./yamr.yaml)")
	flags.StringArrayVarP(&o.repos, "repo", "r", nil, "Local repository directory (repeatable)")
	flags.StringArrayVar(&o.remotes, "remote", nil, "Remote repository URL (repeatable)")
	flags.BoolVar(&o.jdk, "jdk", true, "Include the JDK module catalog")
	flags.StringVar(&o.cacheDir, "cache-dir", "", "Cache directory (default ~/.yamr/cache)")
	flags.BoolVar(&o.offline, "offline", false, "Use cached remote indexes regardless of age")
	flags.DurationVar(&o.timeout, "timeout", 0, "Timeout for each artifact fetch")
	flags.StringVar(&o.merge, "merge", "", "Merge strategy: default, prefer-first or union")
	flags.StringVarP(&o.platform, "type", "t", "", "Target platform: jvm, js or src")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(
		newCompleteCmd(o),
		newVersionsCmd(o),
		newSearchCmd(o),
		newFetchCmd(o),
		newServeCmd(o),
	)
	return rootCmd
}

// setup creates the logger and merges the config file with the flags that
// were set explicitly.
func (o *options) setup(cmd *cobra.Command) error {
	o.logger = newLogger(cmd.ErrOrStderr(), o.verbose)

	cfg, path, err := config.Load(config.LoadOptions{ConfigFile: o.configPath})
	if err != nil {
		return err
	}
	if path != "" {
		o.logger.Debug("loaded config", "path", path)
	}

	flags := cmd.Flags()
	for _, dir := range o.repos {
		cfg.Repositories = append(cfg.Repositories, config.Repository{Name: dir, Kind: config.KindLocal, Path: dir})
	}
	for _, url := range o.remotes {
		cfg.Repositories = append(cfg.Repositories, config.Repository{Name: url, Kind: config.KindRemote, URL: url})
	}
	if flags.Changed("jdk") {
		cfg.JDK = o.jdk
	}
	if flags.Changed("cache-dir") {
		cfg.Cache.Dir = o.cacheDir
	}
	if flags.Changed("offline") {
		cfg.Offline = o.offline
	}
	if flags.Changed("timeout") {
		cfg.Timeout = o.timeout
	}
	if flags.Changed("merge") {
		cfg.Merge = o.merge
	}
	if flags.Changed("type") {
		cfg.Platform = o.platform
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

func (o *options) targetPlatform() dist.Platform {
	// Validate has already checked the platform.
	p, _ := dist.ParsePlatform(o.cfg.Platform)
	return p
}

func newLogger(w io.Writer, verbose bool) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{Prefix: "yamr"})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
