package main

import (
	"fmt"
	"path/filepath"

	"github.com/frederic-klein/yamr/internal/catalog"
	"github.com/frederic-klein/yamr/internal/config"
	"github.com/frederic-klein/yamr/internal/federation"
	"github.com/frederic-klein/yamr/internal/index"
	"github.com/frederic-klein/yamr/internal/tree"
)

// buildRoot federates the configured repositories in order, then the JDK
// catalog.
func (o *options) buildRoot() (*federation.Root, error) {
	cfg := o.cfg
	strategy, err := federation.ParseStrategy(cfg.Merge)
	if err != nil {
		return nil, err
	}

	indexDir := ""
	if cfg.Cache.Enabled {
		indexDir = filepath.Join(cfg.Cache.Dir, "indexes")
	}

	var roots []*tree.Node
	for _, r := range cfg.Repositories {
		switch r.Kind {
		case config.KindLocal:
			roots = append(roots, index.NewLocal(r.Path, index.WithLocalLogger(o.logger)).Root())
		case config.KindRemote:
			remote := index.NewRemote(r.URL, indexDir,
				index.WithTTL(r.TTL),
				index.WithOffline(cfg.Offline),
				index.WithRemoteLogger(o.logger),
			)
			roots = append(roots, remote.Root())
		default:
			return nil, fmt.Errorf("repository %s: unknown kind %q", r.Name, r.Kind)
		}
		o.logger.Debug("repository", "name", r.Name, "kind", r.Kind)
	}
	if cfg.JDK {
		roots = append(roots, catalog.NewJDKProvider().Root())
	}

	b := federation.NewBuilder(roots...).
		MergeStrategy(strategy).
		Logger(o.logger).
		Timeout(cfg.Timeout).
		Concurrency(cfg.Concurrency)
	if dir := o.artifactCacheDir(); dir != "" {
		b.CacheContent(dir)
	}
	return b.Build(), nil
}

// artifactCacheDir returns where fetched artifacts are cached, or "" when
// caching is disabled.
func (o *options) artifactCacheDir() string {
	if !o.cfg.Cache.Enabled {
		return ""
	}
	return filepath.Join(o.cfg.Cache.Dir, "artifacts")
}
