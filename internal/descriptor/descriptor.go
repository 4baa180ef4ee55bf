// Package descriptor reads module descriptors: the metadata file a module
// version ships next to (or inside) its artifacts.
package descriptor

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"bitbucket.org/creachadair/stringset"
	"gopkg.in/yaml.v3"

	"github.com/frederic-klein/yamr/internal/dist"
)

// ErrNoDescriptor is returned when no descriptor file can be found.
var ErrNoDescriptor = errors.New("no module descriptor found")

// FileNames lists the descriptor file names in preference order.
var FileNames = []string{"module.json", "module.yml", "module.yaml"}

// FlexVersion handles JSON/YAML values that can be string or number.
type FlexVersion string

func (v *FlexVersion) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = FlexVersion(s)
		return nil
	}
	// Keep the literal so "1.10" stays "1.10".
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*v = FlexVersion(n.String())
		return nil
	}
	*v = ""
	return nil
}

func (v *FlexVersion) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*v = FlexVersion(node.Value)
		return nil
	}
	*v = ""
	return nil
}

// Dependency is one import declared by a descriptor.
type Dependency struct {
	Name     string      `json:"name" yaml:"name"`
	Version  FlexVersion `json:"version" yaml:"version"`
	Optional bool        `json:"optional" yaml:"optional"`
	Shared   bool        `json:"shared" yaml:"shared"`
}

// Artifact is one artifact kind a version ships.
type Artifact struct {
	Suffix string `json:"suffix" yaml:"suffix"`
	Major  int    `json:"major" yaml:"major"`
	Minor  int    `json:"minor" yaml:"minor"`
}

// Descriptor is the content of module.json or module.yml.
type Descriptor struct {
	Name         string       `json:"name" yaml:"name"`
	Version      FlexVersion  `json:"version" yaml:"version"`
	Doc          string       `json:"doc" yaml:"doc"`
	License      string       `json:"license" yaml:"license"`
	Authors      []string     `json:"authors" yaml:"authors"`
	Dependencies []Dependency `json:"dependencies" yaml:"dependencies"`
	Artifacts    []Artifact   `json:"artifacts" yaml:"artifacts"`
	Packages     []string     `json:"packages" yaml:"packages"`
	Members      []string     `json:"members" yaml:"members"`
}

// ParseJSON decodes a JSON descriptor.
func ParseJSON(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing module.json: %w", err)
	}
	return &d, nil
}

// ParseYAML decodes a YAML descriptor.
func ParseYAML(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing module.yml: %w", err)
	}
	return &d, nil
}

// Parse decodes data according to the extension of name.
func Parse(name string, data []byte) (*Descriptor, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return ParseJSON(data)
	case ".yml", ".yaml":
		return ParseYAML(data)
	}
	return nil, fmt.Errorf("unsupported descriptor %q", name)
}

// Load reads the descriptor stored in dir.
func Load(dir string) (*Descriptor, error) {
	for _, name := range FileNames {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		return Parse(name, data)
	}
	return nil, ErrNoDescriptor
}

// FromArchive reads the descriptor from a gzip tarball. Only entries at the
// top level or one directory deep are considered; JSON wins over YAML.
func FromArchive(path string) (*Descriptor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("decompressing archive: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	found := make(map[string][]byte)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		parts := strings.Split(strings.TrimPrefix(header.Name, "./"), "/")
		if len(parts) > 2 {
			continue
		}
		name := parts[len(parts)-1]
		if !isDescriptorName(name) {
			continue
		}
		data, err := io.ReadAll(tarReader)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		found[name] = data
	}

	for _, name := range FileNames {
		if data, ok := found[name]; ok {
			return Parse(name, data)
		}
	}
	return nil, ErrNoDescriptor
}

func isDescriptorName(name string) bool {
	for _, n := range FileNames {
		if n == name {
			return true
		}
	}
	return false
}

// VersionDetails converts the descriptor into version metadata. Fields the
// descriptor leaves empty are taken from module and version.
func (d *Descriptor) VersionDetails(module, version string) dist.VersionDetails {
	vd := dist.VersionDetails{
		Module:   module,
		Version:  version,
		Doc:      d.Doc,
		License:  d.License,
		Authors:  stringset.New(d.Authors...),
		Packages: append([]string(nil), d.Packages...),
		Members:  append([]string(nil), d.Members...),
	}
	if d.Name != "" {
		vd.Module = d.Name
	}
	if d.Version != "" {
		vd.Version = string(d.Version)
	}
	for _, dep := range d.Dependencies {
		vd.Dependencies = append(vd.Dependencies, dist.Dependency{
			Name:     dep.Name,
			Version:  string(dep.Version),
			Optional: dep.Optional,
			Shared:   dep.Shared,
		})
	}
	dist.SortDependencies(vd.Dependencies)
	for _, a := range d.Artifacts {
		vd.ArtifactTypes = append(vd.ArtifactTypes, dist.ArtifactType{
			Suffix: a.Suffix,
			Binary: dist.BinaryVersion{Major: a.Major, Minor: a.Minor},
		})
	}
	dist.SortArtifactTypes(vd.ArtifactTypes)
	return vd
}
