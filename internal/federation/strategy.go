package federation

import (
	"fmt"

	"github.com/frederic-klein/yamr/internal/dist"
	"github.com/frederic-klein/yamr/internal/tree"
	"github.com/frederic-klein/yamr/internal/version"
)

// DefaultMergeStrategy lets the first registered repository own a path and
// keeps the first repository's metadata for duplicate results. Repositories
// that disagree on the kind of entry at a path are a conflict.
type DefaultMergeStrategy struct{}

func (DefaultMergeStrategy) Select(p tree.Path, candidates []tree.Candidate) (tree.Candidate, error) {
	if len(candidates) == 0 {
		return tree.Candidate{}, fmt.Errorf("/%s: %w", p, ErrNotFound)
	}
	first := candidates[0]
	for _, c := range candidates[1:] {
		if c.Kind != first.Kind {
			return tree.Candidate{}, fmt.Errorf("/%s is a %s in %s but a %s in %s: %w",
				p, first.Kind, first.Root.Label(), c.Kind, c.Root.Label(), ErrConflictingStructure)
		}
	}
	return first, nil
}

func (DefaultMergeStrategy) Attach(merged *tree.Node, selected tree.Candidate, federated *tree.Node) {
	attach(merged, selected, federated)
}

func (DefaultMergeStrategy) MergeModule(existing, _ dist.ModuleDetails) dist.ModuleDetails {
	return existing
}

func (DefaultMergeStrategy) MergeVersion(existing, _ dist.VersionDetails) dist.VersionDetails {
	return existing
}

// PreferFirstStrategy is DefaultMergeStrategy without the structure check:
// the first registered repository always wins.
type PreferFirstStrategy struct {
	DefaultMergeStrategy
}

func (PreferFirstStrategy) Select(p tree.Path, candidates []tree.Candidate) (tree.Candidate, error) {
	if len(candidates) == 0 {
		return tree.Candidate{}, fmt.Errorf("/%s: %w", p, ErrNotFound)
	}
	return candidates[0], nil
}

// VersionUnionStrategy selects like DefaultMergeStrategy but combines
// duplicate results field by field: version lists, authors and artifact
// types are unioned and empty text fields are filled from later repositories.
type VersionUnionStrategy struct {
	DefaultMergeStrategy
}

func (VersionUnionStrategy) MergeModule(existing, incoming dist.ModuleDetails) dist.ModuleDetails {
	out := existing.Clone()
	out.Versions = unionVersions(existing.Versions, incoming.Versions)
	out.Authors.Add(incoming.Authors.Elements()...)
	out.ArtifactTypes = dist.UnionArtifactTypes(existing.ArtifactTypes, incoming.ArtifactTypes)
	if out.Doc == "" {
		out.Doc = incoming.Doc
	}
	if out.License == "" {
		out.License = incoming.License
	}
	if len(out.Dependencies) == 0 {
		out.Dependencies = append(out.Dependencies, incoming.Dependencies...)
	}
	return out
}

func (VersionUnionStrategy) MergeVersion(existing, incoming dist.VersionDetails) dist.VersionDetails {
	out := existing.Clone()
	out.Authors.Add(incoming.Authors.Elements()...)
	out.ArtifactTypes = dist.UnionArtifactTypes(existing.ArtifactTypes, incoming.ArtifactTypes)
	if out.Doc == "" {
		out.Doc = incoming.Doc
	}
	if out.License == "" {
		out.License = incoming.License
	}
	if len(out.Dependencies) == 0 {
		out.Dependencies = append(out.Dependencies, incoming.Dependencies...)
	}
	return out
}

func unionVersions(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	version.Sort(out)
	return out
}

// attach gives the merged node the selected repository's store and a chain of
// the repository's own transformer followed by the federated one.
func attach(merged *tree.Node, selected tree.Candidate, federated *tree.Node) {
	if store, ok := selected.Root.Store(); ok {
		merged.MustAddService(tree.ContentStoreKind, store)
	} else {
		merged.RemoveService(tree.ContentStoreKind)
	}

	var chain Chain
	if t, ok := selected.Root.Transformer(); ok {
		chain = append(chain, t)
	}
	if t, ok := federated.Transformer(); ok {
		chain = append(chain, t)
	}
	switch len(chain) {
	case 0:
		merged.RemoveService(tree.ContentTransformerKind)
	case 1:
		merged.MustAddService(tree.ContentTransformerKind, chain[0])
	default:
		merged.MustAddService(tree.ContentTransformerKind, chain)
	}
}

// ParseStrategy returns the merge strategy registered under name.
func ParseStrategy(name string) (tree.MergeStrategy, error) {
	switch name {
	case "", "default":
		return DefaultMergeStrategy{}, nil
	case "prefer-first":
		return PreferFirstStrategy{}, nil
	case "union":
		return VersionUnionStrategy{}, nil
	}
	return nil, fmt.Errorf("unknown merge strategy %q", name)
}
