// Package snapshot reads and writes the record of artifacts a fetch
// installed.
package snapshot

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

const header = "# yamr snapshot format: version 1.0\n"

// Entry is one installed artifact.
type Entry struct {
	Module       string
	Version      string
	Artifact     string // slash-separated repository path
	SHA256       string
	Origin       string            // label of the repository that served it
	Requirements map[string]string // module -> version
}

// Key returns "module/version".
func (e *Entry) Key() string {
	return e.Module + "/" + e.Version
}

// Emitter writes snapshot files.
type Emitter struct {
	w io.Writer
}

// NewEmitter creates a new snapshot emitter.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// Emit writes entries sorted by module and version.
func (e *Emitter) Emit(entries []*Entry) error {
	sorted := make([]*Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Module != sorted[j].Module {
			return sorted[i].Module < sorted[j].Module
		}
		return sorted[i].Version < sorted[j].Version
	})

	if _, err := fmt.Fprint(e.w, header); err != nil {
		return err
	}
	if _, err := fmt.Fprint(e.w, "MODULES\n"); err != nil {
		return err
	}

	for _, entry := range sorted {
		if err := e.emitEntry(entry); err != nil {
			return err
		}
	}
	return nil
}

func (e *Emitter) emitEntry(entry *Entry) error {
	if _, err := fmt.Fprintf(e.w, "  %s\n", entry.Key()); err != nil {
		return err
	}

	for _, field := range []struct{ key, value string }{
		{"artifact", entry.Artifact},
		{"sha256", entry.SHA256},
		{"origin", entry.Origin},
	} {
		if field.value == "" {
			continue
		}
		if _, err := fmt.Fprintf(e.w, "    %s: %s\n", field.key, field.value); err != nil {
			return err
		}
	}

	if len(entry.Requirements) > 0 {
		if _, err := fmt.Fprint(e.w, "    requirements:\n"); err != nil {
			return err
		}
		for _, mod := range sortedKeys(entry.Requirements) {
			ver := normalizeVersion(entry.Requirements[mod])
			if _, err := fmt.Fprintf(e.w, "      %s %s\n", mod, ver); err != nil {
				return err
			}
		}
	}

	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalizeVersion reduces a constraint to its minimum version.
func normalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "0"
	}

	if idx := strings.Index(v, ","); idx != -1 {
		v = strings.TrimSpace(v[:idx])
	}

	v = strings.TrimPrefix(v, ">=")
	v = strings.TrimPrefix(v, ">")
	v = strings.TrimPrefix(v, "==")
	v = strings.TrimPrefix(v, "=")
	v = strings.TrimSpace(v)

	if v == "" {
		return "0"
	}
	return v
}
