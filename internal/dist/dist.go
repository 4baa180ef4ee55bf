package dist

import (
	"fmt"
	"sort"
	"strings"

	"bitbucket.org/creachadair/stringset"
)

// Platform is the target platform a module is compiled for.
type Platform string

const (
	PlatformJVM    Platform = "jvm"
	PlatformJS     Platform = "js"
	PlatformSource Platform = "src"
)

// Platforms lists every known platform in a fixed order.
var Platforms = []Platform{PlatformJVM, PlatformJS, PlatformSource}

// ParsePlatform converts a platform token into a Platform.
func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(s))); p {
	case PlatformJVM, PlatformJS, PlatformSource:
		return p, nil
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

var suffixPlatforms = map[string]Platform{
	".car": PlatformJVM,
	".jar": PlatformJVM,
	".js":  PlatformJS,
	".src": PlatformSource,
}

// PlatformOf returns the platform served by an artifact suffix.
func PlatformOf(suffix string) (Platform, bool) {
	p, ok := suffixPlatforms[suffix]
	return p, ok
}

// Suffixes returns the artifact suffixes that serve a platform, in preference order.
func Suffixes(p Platform) []string {
	switch p {
	case PlatformJVM:
		return []string{".car", ".jar"}
	case PlatformJS:
		return []string{".js"}
	case PlatformSource:
		return []string{".src"}
	}
	return nil
}

// BinaryVersion is the binary compatibility version of an artifact.
// A zero Major means the artifact is not binary versioned.
type BinaryVersion struct {
	Major int `json:"major,omitempty" yaml:"major,omitempty"`
	Minor int `json:"minor,omitempty" yaml:"minor,omitempty"`
}

// Known reports whether the artifact carries a binary version.
func (b BinaryVersion) Known() bool {
	return b.Major > 0
}

// ArtifactType is one kind of artifact a module version ships.
type ArtifactType struct {
	Suffix string        `json:"suffix" yaml:"suffix"`
	Binary BinaryVersion `json:"binary,omitempty" yaml:"binary,omitempty"`
}

// Platform returns the platform served by the artifact.
func (a ArtifactType) Platform() (Platform, bool) {
	return PlatformOf(a.Suffix)
}

// SortArtifactTypes orders artifact types by suffix, then binary version.
func SortArtifactTypes(types []ArtifactType) {
	sort.Slice(types, func(i, j int) bool {
		a, b := types[i], types[j]
		if a.Suffix != b.Suffix {
			return a.Suffix < b.Suffix
		}
		if a.Binary.Major != b.Binary.Major {
			return a.Binary.Major < b.Binary.Major
		}
		return a.Binary.Minor < b.Binary.Minor
	})
}

// UnionArtifactTypes merges artifact type lists, dropping duplicates.
func UnionArtifactTypes(lists ...[]ArtifactType) []ArtifactType {
	seen := make(map[ArtifactType]bool)
	var out []ArtifactType
	for _, l := range lists {
		for _, a := range l {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	SortArtifactTypes(out)
	return out
}

// ArtifactTypesFor returns the artifact types that serve platform p.
func ArtifactTypesFor(types []ArtifactType, p Platform) []ArtifactType {
	var out []ArtifactType
	for _, a := range types {
		if ap, ok := a.Platform(); ok && ap == p {
			out = append(out, a)
		}
	}
	return out
}

// ArtifactRef identifies one artifact of a module version.
type ArtifactRef struct {
	Name    string
	Version string
	Suffix  string // e.g., ".car"
}

// FileName returns the artifact file name, e.g. "com.example.foo-1.0.car".
func (r ArtifactRef) FileName() string {
	return r.Name + "-" + r.Version + r.Suffix
}

// Path returns the repository path segments of the artifact:
// the module name split on dots, the version, and the file name.
func (r ArtifactRef) Path() []string {
	segs := ModulePath(r.Name)
	return append(segs, r.Version, r.FileName())
}

func (r ArtifactRef) String() string {
	return r.Name + "/" + r.Version + " (" + r.Suffix + ")"
}

// ModulePath returns the repository path segments of a module name.
func ModulePath(name string) []string {
	return strings.Split(name, ".")
}

// ParseArtifactPath is the inverse of ArtifactRef.Path.
func ParseArtifactPath(segs []string) (ArtifactRef, error) {
	if len(segs) < 3 {
		return ArtifactRef{}, fmt.Errorf("artifact path %q too short", strings.Join(segs, "/"))
	}
	name := strings.Join(segs[:len(segs)-2], ".")
	version := segs[len(segs)-2]
	file := segs[len(segs)-1]
	prefix := name + "-" + version
	if !strings.HasPrefix(file, prefix) || len(file) == len(prefix) {
		return ArtifactRef{}, fmt.Errorf("artifact file %q does not match %s", file, prefix)
	}
	return ArtifactRef{Name: name, Version: version, Suffix: file[len(prefix):]}, nil
}

// Dependency is a module import declared by a module version.
type Dependency struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Optional bool   `json:"optional,omitempty"`
	Shared   bool   `json:"shared,omitempty"`
}

// SortDependencies orders dependencies by name, then version.
func SortDependencies(deps []Dependency) {
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].Name != deps[j].Name {
			return deps[i].Name < deps[j].Name
		}
		return deps[i].Version < deps[j].Version
	})
}

// ModuleDetails is one module entry of a completion or search result.
type ModuleDetails struct {
	Name          string
	Doc           string
	License       string
	Authors       stringset.Set
	Versions      []string
	Dependencies  []Dependency
	ArtifactTypes []ArtifactType
}

// Clone returns a deep copy of d.
func (d ModuleDetails) Clone() ModuleDetails {
	d.Authors = cloneSet(d.Authors)
	d.Versions = append([]string(nil), d.Versions...)
	d.Dependencies = append([]Dependency(nil), d.Dependencies...)
	d.ArtifactTypes = append([]ArtifactType(nil), d.ArtifactTypes...)
	return d
}

// VersionDetails is the metadata of one module version.
type VersionDetails struct {
	Module        string
	Version       string
	Doc           string
	License       string
	Authors       stringset.Set
	Dependencies  []Dependency
	ArtifactTypes []ArtifactType
	Packages      []string
	Members       []string
	Remote        bool
	Origin        string
}

// Clone returns a deep copy of d.
func (d VersionDetails) Clone() VersionDetails {
	d.Authors = cloneSet(d.Authors)
	d.Dependencies = append([]Dependency(nil), d.Dependencies...)
	d.ArtifactTypes = append([]ArtifactType(nil), d.ArtifactTypes...)
	d.Packages = append([]string(nil), d.Packages...)
	d.Members = append([]string(nil), d.Members...)
	return d
}

// Serves reports whether the version ships an artifact for the platform.
func (d VersionDetails) Serves(p Platform) bool {
	for _, a := range d.ArtifactTypes {
		if ap, ok := a.Platform(); ok && ap == p {
			return true
		}
	}
	return false
}

func cloneSet(s stringset.Set) stringset.Set {
	if s == nil {
		return stringset.New()
	}
	return s.Clone()
}
