// Package query defines module queries and the result accumulators backends
// write into while a query runs.
package query

import (
	"strings"

	"github.com/frederic-klein/yamr/internal/dist"
)

// MemberSearch refines a search to modules declaring a given member.
type MemberSearch struct {
	Name        string
	Exact       bool
	PackageOnly bool
}

// ModuleQuery selects modules by name and platform. It is immutable: build
// it with New and read it through its accessors.
type ModuleQuery struct {
	name     string
	platform dist.Platform

	binaryMajor, binaryMinor       int
	hasBinaryMajor, hasBinaryMinor bool

	start, count       int64
	hasStart, hasCount bool

	pagingInfo []int64

	member    MemberSearch
	hasMember bool
}

// Option configures a ModuleQuery.
type Option func(*ModuleQuery)

// New creates a query. An empty name matches every module.
func New(name string, platform dist.Platform, opts ...Option) ModuleQuery {
	q := ModuleQuery{name: name, platform: platform}
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// WithStart skips the first n matches.
func WithStart(n int64) Option {
	return func(q *ModuleQuery) {
		q.start, q.hasStart = n, true
	}
}

// WithCount limits the page to n entries. It only takes effect together with a start.
func WithCount(n int64) Option {
	return func(q *ModuleQuery) {
		q.count, q.hasCount = n, true
	}
}

// WithPage sets both start and count.
func WithPage(start, count int64) Option {
	return func(q *ModuleQuery) {
		WithStart(start)(q)
		WithCount(count)(q)
	}
}

// WithBinaryMajor restricts results to artifacts of a binary major version.
func WithBinaryMajor(major int) Option {
	return func(q *ModuleQuery) {
		q.binaryMajor, q.hasBinaryMajor = major, true
	}
}

// WithBinaryVersion restricts results to artifacts compatible with major.minor.
func WithBinaryVersion(major, minor int) Option {
	return func(q *ModuleQuery) {
		WithBinaryMajor(major)(q)
		q.binaryMinor, q.hasBinaryMinor = minor, true
	}
}

// WithPagingInfo passes the continuation token returned by a previous
// federated search. The slice is copied.
func WithPagingInfo(info []int64) Option {
	return func(q *ModuleQuery) {
		if info == nil {
			q.pagingInfo = nil
			return
		}
		q.pagingInfo = append([]int64{}, info...)
	}
}

// WithMember refines a search to modules declaring the named member.
func WithMember(name string, exact, packageOnly bool) Option {
	return func(q *ModuleQuery) {
		q.member = MemberSearch{Name: name, Exact: exact, PackageOnly: packageOnly}
		q.hasMember = name != ""
	}
}

func (q ModuleQuery) Name() string            { return q.name }
func (q ModuleQuery) Platform() dist.Platform { return q.platform }

// Start returns the number of matches to skip, if set.
func (q ModuleQuery) Start() (int64, bool) { return q.start, q.hasStart }

// Count returns the page size, if set.
func (q ModuleQuery) Count() (int64, bool) { return q.count, q.hasCount }

// BinaryMajor returns the binary major version filter, if set.
func (q ModuleQuery) BinaryMajor() (int, bool) { return q.binaryMajor, q.hasBinaryMajor }

// BinaryMinor returns the binary minor version filter, if set.
func (q ModuleQuery) BinaryMinor() (int, bool) { return q.binaryMinor, q.hasBinaryMinor }

// PagingInfo returns a copy of the continuation token.
func (q ModuleQuery) PagingInfo() []int64 {
	if q.pagingInfo == nil {
		return nil
	}
	return append([]int64{}, q.pagingInfo...)
}

// Member returns the member search refinement, if set.
func (q ModuleQuery) Member() (MemberSearch, bool) { return q.member, q.hasMember }

// IsPaging reports whether the query selects a window of results.
func (q ModuleQuery) IsPaging() bool {
	return q.hasStart || q.hasCount
}

// AtStart returns a copy of q starting at n.
func (q ModuleQuery) AtStart(n int64) ModuleQuery {
	q.start, q.hasStart = n, true
	q.pagingInfo = q.PagingInfo()
	return q
}

// AtPage returns a copy of q selecting count matches from start.
func (q ModuleQuery) AtPage(start, count int64) ModuleQuery {
	q = q.AtStart(start)
	q.count, q.hasCount = count, true
	return q
}

// MatchesPrefix reports whether module is a completion of the query name.
func (q ModuleQuery) MatchesPrefix(module string) bool {
	return strings.HasPrefix(module, q.name)
}

// MatchesSubstring reports whether module contains the query name, ignoring case.
func (q ModuleQuery) MatchesSubstring(module string) bool {
	return strings.Contains(strings.ToLower(module), strings.ToLower(q.name))
}

// MatchesMember reports whether a module declaring the given packages and
// members satisfies the member refinement. Queries without a refinement
// match everything.
func (q ModuleQuery) MatchesMember(packages, members []string) bool {
	if !q.hasMember {
		return true
	}
	candidates := members
	if q.member.PackageOnly {
		candidates = packages
	}
	want := strings.ToLower(q.member.Name)
	for _, c := range candidates {
		if q.member.Exact {
			if c == q.member.Name {
				return true
			}
			continue
		}
		if strings.Contains(strings.ToLower(c), want) {
			return true
		}
	}
	return false
}

// VersionQuery selects the versions of one module.
type VersionQuery struct {
	ModuleQuery
	version    string
	hasVersion bool
}

// NewVersionQuery creates a version query. An empty version lists all versions.
func NewVersionQuery(name, version string, platform dist.Platform, opts ...Option) VersionQuery {
	return VersionQuery{
		ModuleQuery: New(name, platform, opts...),
		version:     version,
		hasVersion:  version != "",
	}
}

// Version returns the exact version filter, if set.
func (q VersionQuery) Version() (string, bool) { return q.version, q.hasVersion }

// MatchesVersion reports whether v passes the version filter.
func (q VersionQuery) MatchesVersion(v string) bool {
	return !q.hasVersion || q.version == v
}
