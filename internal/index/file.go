// Package index provides repository backends whose content is described by a
// module index: a local directory tree and a remote HTTP repository.
package index

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/frederic-klein/yamr/internal/dist"
	"github.com/frederic-klein/yamr/internal/query"
	"github.com/frederic-klein/yamr/internal/tree"
)

// FileName is the name an index is published under, relative to a
// repository's base URL.
const FileName = "index.json.gz"

// FormatVersion is written into every index file.
const FormatVersion = 1

// File is the published module index of a repository.
type File struct {
	Format    int       `json:"format"`
	Generated time.Time `json:"generated"`
	Records   []Record  `json:"records"`
}

// Record describes one module version.
type Record struct {
	Module       string              `json:"module"`
	Version      string              `json:"version"`
	Doc          string              `json:"doc,omitempty"`
	License      string              `json:"license,omitempty"`
	Authors      []string            `json:"authors,omitempty"`
	Dependencies []dist.Dependency   `json:"dependencies,omitempty"`
	Artifacts    []dist.ArtifactType `json:"artifacts,omitempty"`
	Packages     []string            `json:"packages,omitempty"`
	Members      []string            `json:"members,omitempty"`
}

// WriteFile gzips f as JSON into w.
func WriteFile(w io.Writer, f File) error {
	if f.Format == 0 {
		f.Format = FormatVersion
	}
	gw := gzip.NewWriter(w)
	enc := json.NewEncoder(gw)
	if err := enc.Encode(f); err != nil {
		gw.Close()
		return fmt.Errorf("encoding index: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("compressing index: %w", err)
	}
	return nil
}

// ReadFile decodes a gzipped JSON index.
func ReadFile(r io.Reader) (File, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return File{}, fmt.Errorf("decompressing index: %w", err)
	}
	defer gr.Close()

	var f File
	if err := json.NewDecoder(gr).Decode(&f); err != nil {
		return File{}, fmt.Errorf("parsing index: %w", err)
	}
	if f.Format > FormatVersion {
		return File{}, fmt.Errorf("unsupported index format %d", f.Format)
	}
	return f, nil
}

// Build enumerates every module version a finder returns for the given
// platforms. A version served on several platforms yields one record with
// the union of its artifact types.
func Build(ctx context.Context, finder tree.ContentFinder, platforms []dist.Platform) (File, error) {
	type key struct{ module, version string }
	records := make(map[key]*Record)

	for _, p := range platforms {
		modules := query.NewSearchResult()
		if err := finder.CompleteModules(ctx, query.New("", p), modules); err != nil {
			return File{}, fmt.Errorf("listing %s modules: %w", p, err)
		}
		for _, name := range modules.Names() {
			versions := query.NewVersionResult(name)
			if err := finder.CompleteVersions(ctx, query.NewVersionQuery(name, "", p), versions); err != nil {
				return File{}, fmt.Errorf("listing versions of %s: %w", name, err)
			}
			for _, v := range versions.Versions() {
				k := key{name, v.Version}
				if rec, ok := records[k]; ok {
					rec.Artifacts = dist.UnionArtifactTypes(rec.Artifacts, v.ArtifactTypes)
					continue
				}
				rec := recordOf(v)
				rec.Module = name
				records[k] = &rec
			}
		}
	}

	f := File{Format: FormatVersion, Generated: time.Now().UTC()}
	for _, rec := range records {
		f.Records = append(f.Records, *rec)
	}
	sort.Slice(f.Records, func(i, j int) bool {
		a, b := f.Records[i], f.Records[j]
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		return a.Version < b.Version
	})
	return f, nil
}

func recordOf(v dist.VersionDetails) Record {
	rec := Record{
		Module:       v.Module,
		Version:      v.Version,
		Doc:          v.Doc,
		License:      v.License,
		Dependencies: append([]dist.Dependency(nil), v.Dependencies...),
		Artifacts:    dist.UnionArtifactTypes(v.ArtifactTypes),
		Packages:     append([]string(nil), v.Packages...),
		Members:      append([]string(nil), v.Members...),
	}
	if v.Authors != nil {
		rec.Authors = v.Authors.Elements()
	}
	return rec
}
