// Package modfile parses requirements files:
//
//	requires 'com.example.foo', '>= 1.0';
//	on 'js' => sub {
//	    requires 'com.example.web';
//	};
//
// Requirements outside an on block target the JVM.
package modfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/frederic-klein/yamr/internal/dist"
)

// DefaultFileName is the requirements file looked up by default.
const DefaultFileName = "modfile"

// Requirement is one requires statement.
type Requirement struct {
	Module     string
	Constraint string // "0" when none is given
	Platform   dist.Platform
}

// Parser parses requirements files.
type Parser struct{}

// NewParser creates a new requirements parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseResult contains parsed requirements grouped by platform.
type ParseResult struct {
	Requirements map[dist.Platform][]Requirement
}

// NewParseResult creates an empty parse result.
func NewParseResult() *ParseResult {
	return &ParseResult{
		Requirements: make(map[dist.Platform][]Requirement),
	}
}

// All returns every requirement, platforms in dist.Platforms order.
func (r *ParseResult) All() []Requirement {
	var out []Requirement
	for _, p := range dist.Platforms {
		out = append(out, r.Requirements[p]...)
	}
	return out
}

var (
	requiresRe = regexp.MustCompile(`^\s*requires\s+['"]([^'"]+)['"](?:\s*,\s*['"]([^'"]+)['"])?`)
	onBlockRe  = regexp.MustCompile(`^\s*on\s+['"](\w+)['"]\s*=>\s*sub\s*\{`)
	closeRe    = regexp.MustCompile(`^\s*\}`)
)

// ParseFile parses the requirements file at path.
func (p *Parser) ParseFile(path string) (*ParseResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening requirements file: %w", err)
	}
	defer file.Close()
	return p.Parse(file)
}

// Parse reads requirements from r.
func (p *Parser) Parse(r io.Reader) (*ParseResult, error) {
	result := NewParseResult()
	current := dist.PlatformJVM
	inBlock := false

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if matches := onBlockRe.FindStringSubmatch(line); matches != nil {
			if inBlock {
				return nil, fmt.Errorf("line %d: nested on block", lineNo)
			}
			platform, err := dist.ParsePlatform(matches[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			current = platform
			inBlock = true
			continue
		}

		if inBlock && closeRe.MatchString(line) {
			current = dist.PlatformJVM
			inBlock = false
			continue
		}

		if matches := requiresRe.FindStringSubmatch(line); matches != nil {
			constraint := "0"
			if matches[2] != "" {
				constraint = matches[2]
			}
			result.Requirements[current] = append(result.Requirements[current], Requirement{
				Module:     matches[1],
				Constraint: constraint,
				Platform:   current,
			})
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading requirements file: %w", err)
	}
	if inBlock {
		return nil, fmt.Errorf("unterminated on block")
	}

	return result, nil
}
