package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/frederic-klein/yamr/internal/catalog"
	"github.com/frederic-klein/yamr/internal/dist"
	"github.com/frederic-klein/yamr/internal/federation"
	"github.com/frederic-klein/yamr/internal/index"
	"github.com/frederic-klein/yamr/internal/query"
)

// newTestServer serves a local repository holding com.example.{a,b,c} next
// to the JDK catalog.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	for _, ref := range []dist.ArtifactRef{
		{Name: "com.example.a", Version: "1.0", Suffix: ".car"},
		{Name: "com.example.a", Version: "2.0", Suffix: ".car"},
		{Name: "com.example.b", Version: "1.0", Suffix: ".car"},
		{Name: "com.example.c", Version: "1.0", Suffix: ".js"},
	} {
		path := filepath.Join(append([]string{dir}, ref.Path()...)...)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("bytes of "+ref.FileName()), 0644); err != nil {
			t.Fatal(err)
		}
	}

	desc := filepath.Join(dir, "com/example/b/1.0/module.yml")
	if err := os.WriteFile(desc, []byte("packages: [com.example.http]\nmembers: [com.example.http::Client]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	root := federation.NewBuilder(
		index.NewLocal(dir).Root(),
		catalog.NewJDKProvider().Root(),
	).Build()

	ts := httptest.NewServer(New(root, nil).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
	}
	return resp.StatusCode
}

func names(res SearchJSON) []string {
	out := make([]string, 0, len(res.Results))
	for _, m := range res.Results {
		out = append(out, m.Name)
	}
	return out
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	var resp map[string]any
	if code := getJSON(t, ts.URL+"/health", &resp); code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", code)
	}
	if resp["status"] != "ok" || resp["repositories"] != float64(2) {
		t.Errorf("unexpected response: %v", resp)
	}
}

func TestComplete(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		url  string
		want []string
	}{
		{"jvm", "/api/complete?q=com.example", []string{"com.example.a", "com.example.b"}},
		{"js", "/api/complete?q=com.example&type=js", []string{"com.example.c"}},
		{"jdk", "/api/complete?q=jdk.co", []string{"jdk.compiler", "jdk.corba"}},
		{"jdk not on js", "/api/complete?q=jdk&type=js", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res SearchJSON
			if code := getJSON(t, ts.URL+tt.url, &res); code != http.StatusOK {
				t.Fatalf("status = %d", code)
			}
			if diff := cmp.Diff(tt.want, names(res)); diff != "" {
				t.Errorf("names mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSearchPaging(t *testing.T) {
	ts := newTestServer(t)

	var first SearchJSON
	if code := getJSON(t, ts.URL+"/api/search?q=example&start=0&count=1", &first); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if diff := cmp.Diff([]string{"com.example.a"}, names(first)); diff != "" {
		t.Errorf("page 1 mismatch (-want +got):\n%s", diff)
	}
	if !first.HasMore || len(first.NextPagingInfo) != 2 {
		t.Fatalf("page 1 = %+v", first)
	}

	var second SearchJSON
	url := ts.URL + "/api/search?q=example&start=1&count=1&paging_info=" + FormatPagingInfo(first.NextPagingInfo)
	if code := getJSON(t, url, &second); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if diff := cmp.Diff([]string{"com.example.b"}, names(second)); diff != "" {
		t.Errorf("page 2 mismatch (-want +got):\n%s", diff)
	}
	if second.HasMore {
		t.Error("page 2 HasMore = true")
	}
}

func TestSearchBadRequests(t *testing.T) {
	ts := newTestServer(t)

	for _, url := range []string{
		"/api/search?q=x&type=dotnet",
		"/api/search?q=x&start=-1",
		"/api/search?q=x&start=0&count=1&paging_info=1",
		"/api/search?q=x&paging_info=a,b",
		"/api/complete?q=x&binary=v8",
	} {
		t.Run(url, func(t *testing.T) {
			resp, err := http.Get(ts.URL + url)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestVersions(t *testing.T) {
	ts := newTestServer(t)

	var resp struct {
		Module   string        `json:"module"`
		Versions []versionJSON `json:"versions"`
		Count    int           `json:"count"`
	}
	if code := getJSON(t, ts.URL+"/api/modules/com.example.a/versions", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.Count != 2 || resp.Versions[0].Version != "1.0" || resp.Versions[1].Version != "2.0" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if !strings.HasPrefix(resp.Versions[0].Origin, "local repository ") {
		t.Errorf("Origin = %q", resp.Versions[0].Origin)
	}
}

func TestArtifact(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantBody string
	}{
		{"found", "/artifacts/com/example/a/2.0/com.example.a-2.0.car", http.StatusOK, "bytes of com.example.a-2.0.car"},
		{"missing", "/artifacts/com/example/a/3.0/com.example.a-3.0.car", http.StatusNotFound, ""},
		{"jdk has no content", "/artifacts/jdk/base/7/jdk.base-7.car", http.StatusNotFound, ""},
		{"malformed", "/artifacts/x", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.path)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if tt.wantBody != "" {
				body, _ := io.ReadAll(resp.Body)
				if string(body) != tt.wantBody {
					t.Errorf("body = %q, want %q", body, tt.wantBody)
				}
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t)
	http.Get(ts.URL + "/api/complete?q=com")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "yamr_federation_queries_total") {
		t.Error("metrics do not include yamr_federation_queries_total")
	}
}

// A remote repository pointed at the server sees the same modules and
// artifacts.
func TestServedIndexRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	remote := index.NewRemote(ts.URL, t.TempDir())
	res := query.NewSearchResult()
	if err := remote.CompleteModules(ctx, query.New("com.example", dist.PlatformJVM), res); err != nil {
		t.Fatalf("CompleteModules() error = %v", err)
	}
	if diff := cmp.Diff([]string{"com.example.a", "com.example.b"}, res.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}

	members := query.NewSearchResult()
	if err := remote.SearchModules(ctx, query.New("", dist.PlatformJVM, query.WithMember("Client", false, false)), members); err != nil {
		t.Fatalf("SearchModules() error = %v", err)
	}
	if diff := cmp.Diff([]string{"com.example.b"}, members.Names()); diff != "" {
		t.Errorf("member search mismatch (-want +got):\n%s", diff)
	}

	rc, err := remote.Open(ctx, dist.ArtifactRef{Name: "com.example.b", Version: "1.0", Suffix: ".car"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "bytes of com.example.b-1.0.car" {
		t.Errorf("body = %q", body)
	}
}
