package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/frederic-klein/yamr/internal/dist"
)

var ref = dist.ArtifactRef{Name: "com.example.foo", Version: "1.0", Suffix: ".car"}

func transform(t *testing.T, c *Transformer, content string) io.ReadCloser {
	t.Helper()
	rc, err := c.Transform(context.Background(), ref, io.NopCloser(strings.NewReader(content)))
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	return rc
}

func TestTransformer_CachesCompleteReads(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	c := New(dir)

	// Act
	rc := transform(t, c, "artifact bytes")
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if err := rc.Close(); err != nil {
		t.Fatal(err)
	}

	// Assert
	if string(data) != "artifact bytes" {
		t.Errorf("stream content = %q", data)
	}
	wantPath := filepath.Join(dir, "com", "example", "foo", "1.0", "com.example.foo-1.0.car")
	if c.Path(ref) != wantPath {
		t.Errorf("Path() = %q, want %q", c.Path(ref), wantPath)
	}
	cached, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("cached file missing: %v", err)
	}
	if string(cached) != "artifact bytes" {
		t.Errorf("cached content = %q", cached)
	}

	sum := sha256.Sum256([]byte("artifact bytes"))
	gotSum, err := os.ReadFile(wantPath + SumSuffix)
	if err != nil {
		t.Fatalf("checksum missing: %v", err)
	}
	if strings.TrimSpace(string(gotSum)) != hex.EncodeToString(sum[:]) {
		t.Errorf("checksum = %q", gotSum)
	}
	if err := c.Verify(ref); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}

func TestTransformer_DiscardsPartialReads(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)

	rc := transform(t, c, "a longer artifact")
	buf := make([]byte, 4)
	if _, err := rc.Read(buf); err != nil {
		t.Fatal(err)
	}
	rc.Close()

	if c.Has(ref) {
		t.Error("partial read was published to the cache")
	}
	entries, _ := os.ReadDir(filepath.Dir(c.Path(ref)))
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestTransformer_ConcurrentWriters(t *testing.T) {
	c := New(t.TempDir())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rc, err := c.Transform(context.Background(), ref, io.NopCloser(strings.NewReader("same bytes")))
			if err != nil {
				t.Error(err)
				return
			}
			io.Copy(io.Discard, rc)
			rc.Close()
		}()
	}
	wg.Wait()

	if err := c.Verify(ref); err != nil {
		t.Errorf("Verify() after concurrent writes error = %v", err)
	}
}

func TestTransformer_UnwritableDirPassesThrough(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	c := New(blocker) // a file, not a directory

	rc := transform(t, c, "still readable")
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "still readable" {
		t.Errorf("stream content = %q", data)
	}
}

func TestVerify_Mismatch(t *testing.T) {
	c := New(t.TempDir())
	rc := transform(t, c, "original")
	io.Copy(io.Discard, rc)
	rc.Close()

	if err := os.WriteFile(c.Path(ref), []byte("tampered"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := c.Verify(ref); !errors.Is(err, ErrChecksum) {
		t.Errorf("Verify() error = %v, want ErrChecksum", err)
	}
}

type countingFetcher struct {
	calls int
}

func (f *countingFetcher) Fetch(_ context.Context, ref dist.ArtifactRef) (io.ReadCloser, error) {
	f.calls++
	return io.NopCloser(strings.NewReader("from repository")), nil
}

func TestReadThrough(t *testing.T) {
	tests := []struct {
		name      string
		cached    string
		tamper    bool
		want      string
		wantCalls int
	}{
		{name: "miss", want: "from repository", wantCalls: 1},
		{name: "verified hit", cached: "from cache", want: "from cache"},
		{name: "corrupt copy", cached: "from cache", tamper: true, want: "from repository", wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(t.TempDir())
			if tt.cached != "" {
				rc := transform(t, c, tt.cached)
				io.Copy(io.Discard, rc)
				rc.Close()
			}
			if tt.tamper {
				if err := os.WriteFile(c.Path(ref), []byte("tampered"), 0644); err != nil {
					t.Fatal(err)
				}
			}

			next := &countingFetcher{}
			rc, err := c.ReadThrough(next).Fetch(context.Background(), ref)
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			data, _ := io.ReadAll(rc)
			rc.Close()
			if string(data) != tt.want {
				t.Errorf("content = %q, want %q", data, tt.want)
			}
			if next.calls != tt.wantCalls {
				t.Errorf("repository fetched %d times, want %d", next.calls, tt.wantCalls)
			}
		})
	}
}
