package snapshot

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var (
	entryRe     = regexp.MustCompile(`^  (\S+)/(\S+)$`)
	fieldRe     = regexp.MustCompile(`^    (artifact|sha256|origin): (.+)$`)
	requiresRe  = regexp.MustCompile(`^    requirements:$`)
	moduleVerRe = regexp.MustCompile(`^      (\S+) (.+)$`)
)

// Parser reads snapshot files.
type Parser struct {
	r io.Reader
}

// NewParser creates a new snapshot parser.
func NewParser(r io.Reader) *Parser {
	return &Parser{r: r}
}

// Parse reads entries from a snapshot file.
func (p *Parser) Parse() ([]*Entry, error) {
	var entries []*Entry
	var current *Entry
	var inRequirements bool

	scanner := bufio.NewScanner(p.r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if line == "" || strings.HasPrefix(line, "#") || line == "MODULES" {
			continue
		}

		if matches := entryRe.FindStringSubmatch(line); matches != nil {
			if current != nil {
				entries = append(entries, current)
			}
			current = &Entry{
				Module:       matches[1],
				Version:      matches[2],
				Requirements: make(map[string]string),
			}
			inRequirements = false
			continue
		}

		if current == nil {
			return nil, fmt.Errorf("line %d: %q outside a module entry", lineNo, line)
		}

		if matches := fieldRe.FindStringSubmatch(line); matches != nil {
			switch matches[1] {
			case "artifact":
				current.Artifact = matches[2]
			case "sha256":
				current.SHA256 = matches[2]
			case "origin":
				current.Origin = matches[2]
			}
			inRequirements = false
			continue
		}

		if requiresRe.MatchString(line) {
			inRequirements = true
			continue
		}

		if matches := moduleVerRe.FindStringSubmatch(line); matches != nil && inRequirements {
			current.Requirements[matches[1]] = matches[2]
		}
	}

	if current != nil {
		entries = append(entries, current)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	return entries, nil
}
