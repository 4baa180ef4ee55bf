// Package version orders module versions and checks version constraints.
package version

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/frederic-klein/yamr/internal/dist"
	"github.com/frederic-klein/yamr/internal/query"
)

// Compare returns -1, 0 or 1 as a is older than, equal to or newer than b.
// Versions that both parse as semantic versions are compared as such;
// anything else is compared as dotted numbers.
func Compare(a, b string) int {
	if va, err := semver.NewVersion(a); err == nil {
		if vb, err := semver.NewVersion(b); err == nil {
			return va.Compare(vb)
		}
	}
	return compareDotted(a, b)
}

// Sort orders versions oldest first. Equal versions keep their order.
func Sort(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		return Compare(versions[i], versions[j]) < 0
	})
}

// Latest returns the newest version, or "" for an empty list.
func Latest(versions []string) string {
	var latest string
	for _, v := range versions {
		if latest == "" || Compare(v, latest) > 0 {
			latest = v
		}
	}
	return latest
}

// Satisfies reports whether have meets the constraint want. An empty
// constraint, "0" or "*" accepts everything. Constraints are comma-separated
// clauses of an optional operator (>=, >, <=, <, ==, =, !=) and a version;
// a bare version means ">=".
func Satisfies(have, want string) bool {
	want = strings.TrimSpace(want)
	if want == "" || want == "0" || want == "*" {
		return true
	}
	if have == "" {
		have = "0"
	}

	constraints := strings.Split(want, ",")
	for _, c := range constraints {
		c = strings.TrimSpace(c)
		if !satisfiesOne(have, c) {
			return false
		}
	}
	return true
}

func satisfiesOne(have, want string) bool {
	want = strings.TrimSpace(want)
	if want == "" || want == "0" {
		return true
	}

	var op, wantVer string
	if strings.HasPrefix(want, ">=") {
		op = ">="
		wantVer = strings.TrimSpace(want[2:])
	} else if strings.HasPrefix(want, "<=") {
		op = "<="
		wantVer = strings.TrimSpace(want[2:])
	} else if strings.HasPrefix(want, "!=") {
		op = "!="
		wantVer = strings.TrimSpace(want[2:])
	} else if strings.HasPrefix(want, "==") {
		op = "=="
		wantVer = strings.TrimSpace(want[2:])
	} else if strings.HasPrefix(want, ">") {
		op = ">"
		wantVer = strings.TrimSpace(want[1:])
	} else if strings.HasPrefix(want, "<") {
		op = "<"
		wantVer = strings.TrimSpace(want[1:])
	} else if strings.HasPrefix(want, "=") {
		op = "=="
		wantVer = strings.TrimSpace(want[1:])
	} else {
		op = ">="
		wantVer = want
	}

	cmp := Compare(have, wantVer)
	switch op {
	case ">=":
		return cmp >= 0
	case ">":
		return cmp > 0
	case "<=":
		return cmp <= 0
	case "<":
		return cmp < 0
	case "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	}
	return true
}

var leadingNumbersRe = regexp.MustCompile(`^v?(\d+(?:\.\d+)*)`)

func compareDotted(a, b string) int {
	aParts := normalize(a)
	bParts := normalize(b)

	maxLen := max(len(aParts), len(bParts))
	for i := 0; i < maxLen; i++ {
		aVal := 0
		bVal := 0
		if i < len(aParts) {
			aVal = aParts[i]
		}
		if i < len(bParts) {
			bVal = bParts[i]
		}
		if aVal < bVal {
			return -1
		}
		if aVal > bVal {
			return 1
		}
	}
	return 0
}

// normalize converts the leading dotted numbers of a version to integers:
// "1.2.3.Final" -> [1, 2, 3].
func normalize(v string) []int {
	m := leadingNumbersRe.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil {
		return []int{0}
	}
	parts := strings.Split(m[1], ".")
	result := make([]int, len(parts))
	for i, p := range parts {
		result[i], _ = strconv.Atoi(p)
	}
	return result
}

// BinaryCompatible reports whether an artifact built for binary version b
// can be used by a consumer issuing q. Artifacts without a binary version are
// always compatible; otherwise the major versions must match and the
// artifact's minor may not be newer than the one asked for.
func BinaryCompatible(q query.ModuleQuery, b dist.BinaryVersion) bool {
	major, ok := q.BinaryMajor()
	if !ok || !b.Known() {
		return true
	}
	if b.Major != major {
		return false
	}
	minor, ok := q.BinaryMinor()
	return !ok || b.Minor <= minor
}

// AnyBinaryCompatible reports whether at least one artifact type of the
// query's platform is compatible with q.
func AnyBinaryCompatible(q query.ModuleQuery, types []dist.ArtifactType) bool {
	for _, t := range types {
		if p, ok := t.Platform(); !ok || p != q.Platform() {
			continue
		}
		if BinaryCompatible(q, t.Binary) {
			return true
		}
	}
	return false
}
