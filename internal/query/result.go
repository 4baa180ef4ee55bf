package query

import (
	"sort"
	"sync"

	"github.com/frederic-klein/yamr/internal/dist"
)

// SearchResult accumulates module entries while a completion or search runs.
// Entries are keyed by module name; it is safe for concurrent use.
type SearchResult struct {
	mu         sync.Mutex
	entries    map[string]dist.ModuleDetails
	hasMore    bool
	nextPaging []int64
}

// NewSearchResult returns an empty result.
func NewSearchResult() *SearchResult {
	return &SearchResult{entries: make(map[string]dist.ModuleDetails)}
}

// Add records d unless an entry with the same name already exists.
// It reports whether d was recorded.
func (r *SearchResult) Add(d dist.ModuleDetails) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[d.Name]; ok {
		return false
	}
	r.entries[d.Name] = d.Clone()
	return true
}

// Merge records d, combining it with an existing entry of the same name through fn.
func (r *SearchResult) Merge(d dist.ModuleDetails, fn func(existing, incoming dist.ModuleDetails) dist.ModuleDetails) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.entries[d.Name]
	switch {
	case !ok:
		r.entries[d.Name] = d.Clone()
	case fn != nil:
		merged := fn(existing.Clone(), d.Clone())
		merged.Name = d.Name
		r.entries[d.Name] = merged
	}
}

// Get returns the entry for name.
func (r *SearchResult) Get(name string) (dist.ModuleDetails, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.entries[name]
	if !ok {
		return dist.ModuleDetails{}, false
	}
	return d.Clone(), true
}

// Names returns the module names in lexicographic order.
func (r *SearchResult) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Results returns the entries ordered by module name.
func (r *SearchResult) Results() []dist.ModuleDetails {
	names := r.Names()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]dist.ModuleDetails, 0, len(names))
	for _, n := range names {
		out = append(out, r.entries[n].Clone())
	}
	return out
}

// Len returns the number of entries.
func (r *SearchResult) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// SetHasMoreResults marks whether results exist beyond the returned window.
func (r *SearchResult) SetHasMoreResults(more bool) {
	r.mu.Lock()
	r.hasMore = more
	r.mu.Unlock()
}

// HasMoreResults reports whether results exist beyond the returned window.
func (r *SearchResult) HasMoreResults() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasMore
}

// SetNextPagingInfo records the continuation token for the next page.
func (r *SearchResult) SetNextPagingInfo(info []int64) {
	r.mu.Lock()
	r.nextPaging = append([]int64(nil), info...)
	r.mu.Unlock()
}

// NextPagingInfo returns the continuation token for the next page, or nil.
func (r *SearchResult) NextPagingInfo() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nextPaging == nil {
		return nil
	}
	return append([]int64{}, r.nextPaging...)
}

// VersionResult accumulates the versions of one module. Versions keep the
// order in which they were discovered; it is safe for concurrent use.
type VersionResult struct {
	mu       sync.Mutex
	name     string
	order    []string
	versions map[string]dist.VersionDetails
}

// NewVersionResult returns an empty result for module name.
func NewVersionResult(name string) *VersionResult {
	return &VersionResult{name: name, versions: make(map[string]dist.VersionDetails)}
}

// Name returns the module name the result is for.
func (r *VersionResult) Name() string { return r.name }

// Add records d unless the version is already present. It reports whether d was recorded.
func (r *VersionResult) Add(d dist.VersionDetails) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.versions[d.Version]; ok {
		return false
	}
	if d.Module == "" {
		d.Module = r.name
	}
	r.order = append(r.order, d.Version)
	r.versions[d.Version] = d.Clone()
	return true
}

// Merge records d, combining it with an existing entry for the same version through fn.
func (r *VersionResult) Merge(d dist.VersionDetails, fn func(existing, incoming dist.VersionDetails) dist.VersionDetails) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.Module == "" {
		d.Module = r.name
	}
	existing, ok := r.versions[d.Version]
	switch {
	case !ok:
		r.order = append(r.order, d.Version)
		r.versions[d.Version] = d.Clone()
	case fn != nil:
		merged := fn(existing.Clone(), d.Clone())
		merged.Version = d.Version
		r.versions[d.Version] = merged
	}
}

// Get returns the details of version v.
func (r *VersionResult) Get(v string) (dist.VersionDetails, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.versions[v]
	if !ok {
		return dist.VersionDetails{}, false
	}
	return d.Clone(), true
}

// Versions returns the recorded versions in discovery order.
func (r *VersionResult) Versions() []dist.VersionDetails {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]dist.VersionDetails, 0, len(r.order))
	for _, v := range r.order {
		out = append(out, r.versions[v].Clone())
	}
	return out
}

// Len returns the number of recorded versions.
func (r *VersionResult) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
