package descriptor

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/frederic-klein/yamr/internal/dist"
)

func createTestArchive(t *testing.T, files map[string]string) string {
	t.Helper()

	tmpDir := t.TempDir()
	archivePath := filepath.Join(tmpDir, "test.tar.gz")

	f, err := os.Create(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	defer gw.Close()

	tw := tar.NewWriter(gw)
	defer tw.Close()

	for name, content := range files {
		hdr := &tar.Header{
			Name:     name,
			Mode:     0644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}

	return archivePath
}

func TestParseJSON(t *testing.T) {
	// Arrange
	data := `{
		"name": "com.example.foo",
		"version": 1.10,
		"doc": "Foo library",
		"license": "Apache-2.0",
		"authors": ["Ada", "Grace"],
		"dependencies": [
			{"name": "com.example.bar", "version": "2.0", "shared": true},
			{"name": "com.example.baz", "version": 3, "optional": true}
		],
		"artifacts": [{"suffix": ".car", "major": 8, "minor": 1}]
	}`

	// Act
	d, err := ParseJSON([]byte(data))

	// Assert
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	if d.Name != "com.example.foo" {
		t.Errorf("Name = %q", d.Name)
	}
	if string(d.Version) != "1.10" {
		t.Errorf("Version = %q, want 1.10", d.Version)
	}
	if string(d.Dependencies[1].Version) != "3" {
		t.Errorf("Dependencies[1].Version = %q, want 3", d.Dependencies[1].Version)
	}
	if diff := cmp.Diff([]Artifact{{Suffix: ".car", Major: 8, Minor: 1}}, d.Artifacts); diff != "" {
		t.Errorf("Artifacts mismatch (-want +got):\n%s", diff)
	}
}

func TestParseYAML(t *testing.T) {
	// Arrange: unquoted numbers keep their literal text
	data := `
name: com.example.foo
version: 1.10
packages: [com.example.foo, com.example.foo.impl]
members: [Parser, parse]
dependencies:
  - name: com.example.bar
    version: 2
`

	// Act
	d, err := ParseYAML([]byte(data))

	// Assert
	if err != nil {
		t.Fatalf("ParseYAML() error = %v", err)
	}
	if string(d.Version) != "1.10" {
		t.Errorf("Version = %q, want 1.10", d.Version)
	}
	if string(d.Dependencies[0].Version) != "2" {
		t.Errorf("Dependencies[0].Version = %q, want 2", d.Dependencies[0].Version)
	}
	if diff := cmp.Diff([]string{"Parser", "parse"}, d.Members); diff != "" {
		t.Errorf("Members mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_UnknownExtension(t *testing.T) {
	if _, err := Parse("module.toml", nil); err == nil {
		t.Error("Parse() should reject unknown extensions")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); !errors.Is(err, ErrNoDescriptor) {
		t.Fatalf("Load(empty) error = %v, want ErrNoDescriptor", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "module.yml"), []byte("doc: from yaml\n"), 0644); err != nil {
		t.Fatal(err)
	}
	d, err := Load(dir)
	if err != nil || d.Doc != "from yaml" {
		t.Fatalf("Load() = %+v, %v", d, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "module.json"), []byte(`{"doc": "from json"}`), 0644); err != nil {
		t.Fatal(err)
	}
	d, err = Load(dir)
	if err != nil || d.Doc != "from json" {
		t.Errorf("Load() = %+v, %v; want the JSON descriptor", d, err)
	}
}

func TestFromArchive(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		wantDoc string
		wantErr bool
	}{
		{
			name:    "top level",
			files:   map[string]string{"module.json": `{"doc": "top"}`},
			wantDoc: "top",
		},
		{
			name:    "one directory deep",
			files:   map[string]string{"foo-1.0/module.yml": "doc: nested\n"},
			wantDoc: "nested",
		},
		{
			name: "prefers JSON",
			files: map[string]string{
				"foo-1.0/module.json": `{"doc": "json"}`,
				"foo-1.0/module.yml":  "doc: yaml\n",
			},
			wantDoc: "json",
		},
		{
			name:    "too deep is ignored",
			files:   map[string]string{"foo-1.0/sub/module.json": `{"doc": "deep"}`},
			wantErr: true,
		},
		{
			name:    "no descriptor",
			files:   map[string]string{"foo-1.0/src/Foo.txt": "hello"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := FromArchive(createTestArchive(t, tt.files))
			if tt.wantErr {
				if !errors.Is(err, ErrNoDescriptor) {
					t.Errorf("FromArchive() error = %v, want ErrNoDescriptor", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromArchive() error = %v", err)
			}
			if d.Doc != tt.wantDoc {
				t.Errorf("Doc = %q, want %q", d.Doc, tt.wantDoc)
			}
		})
	}
}

func TestFromArchive_NotGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.tar.gz")
	if err := os.WriteFile(path, []byte("not gzip"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := FromArchive(path); err == nil || errors.Is(err, ErrNoDescriptor) {
		t.Errorf("FromArchive() error = %v, want a decompression error", err)
	}
}

func TestDescriptor_VersionDetails(t *testing.T) {
	d := &Descriptor{
		Doc:     "Foo",
		Authors: []string{"Grace", "Ada"},
		Dependencies: []Dependency{
			{Name: "z.mod", Version: "1"},
			{Name: "a.mod", Version: "2", Optional: true},
		},
		Artifacts: []Artifact{{Suffix: ".js"}, {Suffix: ".car", Major: 8}},
	}

	vd := d.VersionDetails("com.example.foo", "1.0")

	if vd.Module != "com.example.foo" || vd.Version != "1.0" {
		t.Errorf("VersionDetails() = %s/%s, want fallback identity", vd.Module, vd.Version)
	}
	if diff := cmp.Diff([]string{"Ada", "Grace"}, vd.Authors.Elements()); diff != "" {
		t.Errorf("Authors mismatch (-want +got):\n%s", diff)
	}
	wantDeps := []dist.Dependency{
		{Name: "a.mod", Version: "2", Optional: true},
		{Name: "z.mod", Version: "1"},
	}
	if diff := cmp.Diff(wantDeps, vd.Dependencies); diff != "" {
		t.Errorf("Dependencies mismatch (-want +got):\n%s", diff)
	}
	if !vd.Serves(dist.PlatformJVM) || !vd.Serves(dist.PlatformJS) || vd.Serves(dist.PlatformSource) {
		t.Errorf("ArtifactTypes = %+v", vd.ArtifactTypes)
	}
}
