package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/frederic-klein/yamr/internal/cache"
	"github.com/frederic-klein/yamr/internal/downloader"
	"github.com/frederic-klein/yamr/internal/modfile"
	"github.com/frederic-klein/yamr/internal/resolver"
	"github.com/frederic-klein/yamr/internal/snapshot"
)

func newFetchCmd(o *options) *cobra.Command {
	var (
		modfilePath  string
		snapshotPath string
		destDir      string
		workers      int
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Install the modules a requirements file asks for and write a snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := o.logger

			logger.Debug("parsing requirements", "path", modfilePath)
			parsed, err := modfile.NewParser().ParseFile(modfilePath)
			if err != nil {
				return err
			}
			reqs := parsed.All()
			if len(reqs) == 0 {
				return fmt.Errorf("no requirements found in %s", modfilePath)
			}

			root, err := o.buildRoot()
			if err != nil {
				return err
			}

			logger.Debug("resolving requirements", "requirements", len(reqs))
			resolved, err := resolver.NewResolver(root, logger).Resolve(ctx, reqs)
			if err != nil {
				return fmt.Errorf("resolving requirements: %w", err)
			}

			pinned, err := readSnapshot(snapshotPath)
			if err != nil {
				return err
			}

			var toFetch []*resolver.Resolved
			for _, r := range resolved {
				if r.Provided {
					logger.Debug("provided by platform", "module", r.Details.Module, "origin", r.Details.Origin)
					continue
				}
				toFetch = append(toFetch, r)
			}

			if !cmd.Flags().Changed("workers") {
				workers = o.cfg.Workers
			}
			var fetcher downloader.Fetcher = root
			if dir := o.artifactCacheDir(); dir != "" {
				fetcher = cache.New(dir, cache.WithLogger(logger)).ReadThrough(root)
			}
			dl := downloader.NewDownloader(fetcher, workers, destDir, downloader.WithLogger(logger))
			jobs := make([]downloader.Job, len(toFetch))
			for i, r := range toFetch {
				jobs[i] = downloader.Job{Ref: r.Ref, DestPath: dl.DestPath(r.Ref)}
				if e, ok := pinned[r.Details.Module+"/"+r.Details.Version]; ok {
					jobs[i].SHA256 = e.SHA256
				}
			}
			results := dl.Download(ctx, jobs)

			var entries []*snapshot.Entry
			var failed int
			for i, res := range results {
				if res.Error != nil {
					logger.Error("download failed", "artifact", res.Job.Ref.String(), "error", res.Error)
					failed++
					continue
				}
				r := toFetch[i]
				entries = append(entries, &snapshot.Entry{
					Module:       r.Details.Module,
					Version:      r.Details.Version,
					Artifact:     strings.Join(r.Ref.Path(), "/"),
					SHA256:       res.SHA256,
					Origin:       r.Details.Origin,
					Requirements: r.Requirements(),
				})
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d downloads failed", failed, len(results))
			}

			logger.Debug("writing snapshot", "path", snapshotPath)
			out, err := os.Create(snapshotPath)
			if err != nil {
				return fmt.Errorf("creating snapshot file: %w", err)
			}
			defer out.Close()
			if err := snapshot.NewEmitter(out).Emit(entries); err != nil {
				return fmt.Errorf("writing snapshot: %w", err)
			}

			printf(cmd, "Installed %d modules into %s, wrote %s\n", len(entries), destDir, snapshotPath)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&modfilePath, "modfile", "f", "./"+modfile.DefaultFileName, "Input requirements file")
	flags.StringVarP(&snapshotPath, "snapshot", "s", "./"+modfile.DefaultFileName+".snapshot", "Output snapshot path")
	flags.StringVarP(&destDir, "dest", "d", "./modules", "Installation directory")
	flags.IntVarP(&workers, "workers", "w", 4, "Parallel download workers")
	return cmd
}

// readSnapshot loads the entries of a previous run keyed by module/version.
// A missing snapshot yields no entries.
func readSnapshot(path string) (map[string]*snapshot.Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	entries, err := snapshot.NewParser(f).Parse()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	byKey := make(map[string]*snapshot.Entry, len(entries))
	for _, e := range entries {
		byKey[e.Key()] = e
	}
	return byKey, nil
}
