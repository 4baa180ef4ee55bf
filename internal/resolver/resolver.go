// Package resolver picks module versions for a set of requirements.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/frederic-klein/yamr/internal/dist"
	"github.com/frederic-klein/yamr/internal/modfile"
	"github.com/frederic-klein/yamr/internal/query"
	"github.com/frederic-klein/yamr/internal/tree"
	"github.com/frederic-klein/yamr/internal/version"
)

// ErrUnsatisfiable is returned when no version of a module meets a constraint.
var ErrUnsatisfiable = errors.New("no version satisfies the constraint")

// Resolved is one chosen module version.
type Resolved struct {
	Details  dist.VersionDetails
	Platform dist.Platform
	// Ref is the artifact to install. It is zero when Provided is set.
	Ref dist.ArtifactRef
	// Provided marks versions supplied by the platform itself, such as JDK
	// modules, which ship no artifact.
	Provided bool
}

// Requirements returns the non-optional dependencies the chosen version
// declares, as module -> version. They are recorded, not resolved.
func (r *Resolved) Requirements() map[string]string {
	reqs := make(map[string]string)
	for _, d := range r.Details.Dependencies {
		if !d.Optional {
			reqs[d.Name] = d.Version
		}
	}
	return reqs
}

type key struct {
	platform dist.Platform
	module   string
}

// Resolver picks one version for each listed requirement. Dependencies
// declared by the chosen versions are never followed.
type Resolver struct {
	finder tree.ContentFinder
	logger *log.Logger
}

// NewResolver creates a resolver that looks versions up through finder.
func NewResolver(finder tree.ContentFinder, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{finder: finder, logger: logger}
}

// Resolve picks the highest version of each required module that satisfies
// its constraint on the requirement's platform. A module listed more than
// once for a platform must satisfy every listed constraint. The result is
// ordered by module, then platform.
func (r *Resolver) Resolve(ctx context.Context, reqs []modfile.Requirement) ([]*Resolved, error) {
	constraints := make(map[key][]string)
	var order []key
	for _, req := range reqs {
		k := key{req.Platform, req.Module}
		if _, ok := constraints[k]; !ok {
			order = append(order, k)
		}
		constraints[k] = append(constraints[k], req.Constraint)
	}

	out := make([]*Resolved, 0, len(order))
	for _, k := range order {
		res, err := r.resolveOne(ctx, k, constraints[k])
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Details.Module != out[j].Details.Module {
			return out[i].Details.Module < out[j].Details.Module
		}
		return out[i].Platform < out[j].Platform
	})
	return out, nil
}

func (r *Resolver) resolveOne(ctx context.Context, k key, constraints []string) (*Resolved, error) {
	r.logger.Debug("resolving", "module", k.module, "constraints", constraints, "platform", k.platform)

	versions := query.NewVersionResult(k.module)
	if err := r.finder.CompleteVersions(ctx, query.NewVersionQuery(k.module, "", k.platform), versions); err != nil {
		return nil, fmt.Errorf("listing versions of %s: %w", k.module, err)
	}

	var matching []string
	for _, v := range versions.Versions() {
		if satisfiesAll(v.Version, constraints) {
			matching = append(matching, v.Version)
		}
	}
	best, ok := versions.Get(version.Latest(matching))
	if !ok {
		return nil, fmt.Errorf("%s %s (%d versions for %s): %w",
			k.module, strings.Join(constraints, " and "), versions.Len(), k.platform, ErrUnsatisfiable)
	}

	res := &Resolved{Details: best, Platform: k.platform}
	if suffix, ok := artifactSuffix(best, k.platform); ok {
		res.Ref = dist.ArtifactRef{Name: k.module, Version: best.Version, Suffix: suffix}
	} else {
		res.Provided = true
	}
	r.logger.Debug("resolved", "module", k.module, "version", best.Version, "origin", best.Origin)
	return res, nil
}

func satisfiesAll(v string, constraints []string) bool {
	for _, c := range constraints {
		if !version.Satisfies(v, c) {
			return false
		}
	}
	return true
}

// artifactSuffix returns the preferred suffix v ships for platform.
func artifactSuffix(v dist.VersionDetails, platform dist.Platform) (string, bool) {
	for _, suffix := range dist.Suffixes(platform) {
		for _, a := range v.ArtifactTypes {
			if a.Suffix == suffix {
				return suffix, true
			}
		}
	}
	return "", false
}
