package query

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/frederic-klein/yamr/internal/dist"
)

// page feeds names through a pager the way a backend does and returns the added ones.
func page(q ModuleQuery, names []string) ([]string, bool) {
	r := NewSearchResult()
	pager := q.NewPager()
	for _, n := range names {
		if !q.MatchesSubstring(n) {
			continue
		}
		add, more := pager.Accept(r)
		if !more {
			break
		}
		if add {
			r.Add(dist.ModuleDetails{Name: n})
		}
	}
	return r.Names(), r.HasMoreResults()
}

func TestPager(t *testing.T) {
	names := []string{"m1", "m2", "m3", "m4", "m5"}

	tests := []struct {
		name     string
		opts     []Option
		want     []string
		wantMore bool
	}{
		{"no paging", nil, names, false},
		{"first page", []Option{WithPage(0, 2)}, []string{"m1", "m2"}, true},
		{"second page", []Option{WithPage(2, 2)}, []string{"m3", "m4"}, true},
		{"last partial page", []Option{WithPage(4, 2)}, []string{"m5"}, false},
		{"page covering all", []Option{WithPage(0, 5)}, names, false},
		{"page larger than matches", []Option{WithPage(0, 10)}, names, false},
		{"start past end", []Option{WithPage(7, 2)}, []string{}, false},
		{"start only", []Option{WithStart(3)}, []string{"m4", "m5"}, false},
		{"count only does not stop", []Option{WithCount(2)}, names, false},
		{"last page exactly full", []Option{WithPage(3, 2)}, []string{"m4", "m5"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, more := page(New("m", dist.PlatformJVM, tt.opts...), names)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("page mismatch (-want +got):\n%s", diff)
			}
			if more != tt.wantMore {
				t.Errorf("HasMoreResults() = %v, want %v", more, tt.wantMore)
			}
		})
	}
}

func TestModuleQuery_Matching(t *testing.T) {
	q := New("jdk.co", dist.PlatformJVM)

	if !q.MatchesPrefix("jdk.compiler") {
		t.Error("MatchesPrefix(jdk.compiler) = false")
	}
	if q.MatchesPrefix("oracle.jdk.corba") {
		t.Error("MatchesPrefix(oracle.jdk.corba) = true")
	}
	if !New("", dist.PlatformJVM).MatchesPrefix("anything") {
		t.Error("empty name should match every module")
	}
	if !New("JDBC", dist.PlatformJVM).MatchesSubstring("oracle.jdk.jdbc.rowset") {
		t.Error("MatchesSubstring should ignore case")
	}
}

func TestModuleQuery_MatchesMember(t *testing.T) {
	packages := []string{"com.example.http"}
	members := []string{"com.example.http::Client", "com.example.http::Server"}

	tests := []struct {
		name string
		opts []Option
		want bool
	}{
		{"no refinement", nil, true},
		{"substring", []Option{WithMember("client", false, false)}, true},
		{"exact hit", []Option{WithMember("com.example.http::Server", true, false)}, true},
		{"exact miss", []Option{WithMember("server", true, false)}, false},
		{"package only hit", []Option{WithMember("example.http", false, true)}, true},
		{"package only ignores members", []Option{WithMember("Client", false, true)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New("", dist.PlatformJVM, tt.opts...)
			if got := q.MatchesMember(packages, members); got != tt.want {
				t.Errorf("MatchesMember() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestModuleQuery_Immutable(t *testing.T) {
	info := []int64{1, 2}
	q := New("a", dist.PlatformJS, WithPagingInfo(info))
	info[0] = 99

	got := q.PagingInfo()
	got[1] = 42

	if diff := cmp.Diff([]int64{1, 2}, q.PagingInfo()); diff != "" {
		t.Errorf("PagingInfo() changed (-want +got):\n%s", diff)
	}

	moved := q.AtStart(5)
	if _, ok := q.Start(); ok {
		t.Error("AtStart modified the original query")
	}
	if start, _ := moved.Start(); start != 5 {
		t.Errorf("AtStart(5).Start() = %d, want 5", start)
	}

	paged := q.AtPage(0, 4)
	if _, ok := q.Count(); ok {
		t.Error("AtPage modified the original query")
	}
	if count, _ := paged.Count(); count != 4 {
		t.Errorf("AtPage(0, 4).Count() = %d, want 4", count)
	}
}

func TestVersionQuery_MatchesVersion(t *testing.T) {
	if !NewVersionQuery("jdk.base", "", dist.PlatformJVM).MatchesVersion("7") {
		t.Error("empty version filter should match")
	}
	q := NewVersionQuery("jdk.base", "6", dist.PlatformJVM)
	if q.MatchesVersion("7") {
		t.Error("MatchesVersion(7) = true for filter 6")
	}
	if v, ok := q.Version(); !ok || v != "6" {
		t.Errorf("Version() = %q, %v", v, ok)
	}
}

func TestSearchResult_FirstWins(t *testing.T) {
	r := NewSearchResult()

	if !r.Add(dist.ModuleDetails{Name: "m1", Doc: "first"}) {
		t.Fatal("first Add() = false")
	}
	if r.Add(dist.ModuleDetails{Name: "m1", Doc: "second"}) {
		t.Error("duplicate Add() = true")
	}
	r.Merge(dist.ModuleDetails{Name: "m1", Doc: "third"}, nil)

	got, _ := r.Get("m1")
	if got.Doc != "first" {
		t.Errorf("Doc = %q, want %q", got.Doc, "first")
	}
}

func TestSearchResult_MergeFunc(t *testing.T) {
	r := NewSearchResult()
	r.Add(dist.ModuleDetails{Name: "m1", Versions: []string{"1.0"}})
	r.Merge(dist.ModuleDetails{Name: "m1", Versions: []string{"2.0"}}, func(existing, incoming dist.ModuleDetails) dist.ModuleDetails {
		existing.Versions = append(existing.Versions, incoming.Versions...)
		return existing
	})

	got, _ := r.Get("m1")
	if diff := cmp.Diff([]string{"1.0", "2.0"}, got.Versions); diff != "" {
		t.Errorf("Versions mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchResult_ConcurrentAdd(t *testing.T) {
	r := NewSearchResult()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				r.Add(dist.ModuleDetails{Name: fmt.Sprintf("m%02d", j), Doc: fmt.Sprint(i)})
			}
		}()
	}
	wg.Wait()

	if r.Len() != 50 {
		t.Errorf("Len() = %d, want 50", r.Len())
	}
	names := r.Names()
	if names[0] != "m00" || names[49] != "m49" {
		t.Errorf("Names() not sorted: %v", names)
	}
}

func TestVersionResult_DiscoveryOrder(t *testing.T) {
	r := NewVersionResult("m")
	r.Add(dist.VersionDetails{Version: "2.0"})
	r.Add(dist.VersionDetails{Version: "1.0"})
	r.Add(dist.VersionDetails{Version: "2.0", Doc: "dup"})

	var got []string
	for _, v := range r.Versions() {
		got = append(got, v.Version)
		if v.Module != "m" {
			t.Errorf("Module = %q, want m", v.Module)
		}
	}
	if diff := cmp.Diff([]string{"2.0", "1.0"}, got); diff != "" {
		t.Errorf("Versions() mismatch (-want +got):\n%s", diff)
	}
	if d, _ := r.Get("2.0"); d.Doc != "" {
		t.Errorf("duplicate version overwrote the first entry: %q", d.Doc)
	}
}
