package snapshot

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParser_Parse(t *testing.T) {
	input := `# yamr snapshot format: version 1.0
MODULES
  com.example.json/2.0
    artifact: com/example/json/2.0/com.example.json-2.0.car
    sha256: 0a1b
    origin: remote repository https://repo.example.com
    requirements:
      com.example.base 1.0
  com.example.moo/2.0
    artifact: com/example/moo/2.0/com.example.moo-2.0.js
    requirements:
      com.example.modifier 1.10
      com.example.role 2.0
`

	parser := NewParser(strings.NewReader(input))
	entries, err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := []*Entry{
		{
			Module:       "com.example.json",
			Version:      "2.0",
			Artifact:     "com/example/json/2.0/com.example.json-2.0.car",
			SHA256:       "0a1b",
			Origin:       "remote repository https://repo.example.com",
			Requirements: map[string]string{"com.example.base": "1.0"},
		},
		{
			Module:   "com.example.moo",
			Version:  "2.0",
			Artifact: "com/example/moo/2.0/com.example.moo-2.0.js",
			Requirements: map[string]string{
				"com.example.modifier": "1.10",
				"com.example.role":     "2.0",
			},
		},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParser_RejectsOrphanLines(t *testing.T) {
	input := "MODULES\n    artifact: a/1/a-1.car\n"
	if _, err := NewParser(strings.NewReader(input)).Parse(); err == nil {
		t.Error("Parse() error = nil, want error for field outside an entry")
	}
}

func TestParser_RoundTrip(t *testing.T) {
	// Parse, emit, parse again - should get same result
	input := `# yamr snapshot format: version 1.0
MODULES
  alpha/1.0
    artifact: alpha/1.0/alpha-1.0.car
    sha256: ff00
    requirements:
      beta 0
  beta/2.0
    artifact: beta/2.0/beta-2.0.car
    origin: JDK modules repository
`

	parser := NewParser(strings.NewReader(input))
	entries, err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	var buf strings.Builder
	emitter := NewEmitter(&buf)
	if err := emitter.Emit(entries); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	output := buf.String()
	if output != input {
		t.Errorf("round trip failed:\ngot:\n%s\nwant:\n%s", output, input)
	}
}
