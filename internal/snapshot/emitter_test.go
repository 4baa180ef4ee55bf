package snapshot

import (
	"bytes"
	"testing"
)

func TestEmitter_Emit(t *testing.T) {
	tests := []struct {
		name    string
		entries []*Entry
		want    string
	}{
		{
			name:    "empty",
			entries: []*Entry{},
			want:    "# yamr snapshot format: version 1.0\nMODULES\n",
		},
		{
			name: "single entry",
			entries: []*Entry{
				{
					Module:   "com.example.json",
					Version:  "2.0",
					Artifact: "com/example/json/2.0/com.example.json-2.0.car",
					SHA256:   "abc123",
					Origin:   "local repository /repo",
				},
			},
			want: `# yamr snapshot format: version 1.0
MODULES
  com.example.json/2.0
    artifact: com/example/json/2.0/com.example.json-2.0.car
    sha256: abc123
    origin: local repository /repo
`,
		},
		{
			name: "with requirements",
			entries: []*Entry{
				{
					Module:   "com.example.moo",
					Version:  "2.0",
					Artifact: "com/example/moo/2.0/com.example.moo-2.0.js",
					Requirements: map[string]string{
						"com.example.role":     ">= 2.0",
						"com.example.modifier": "1.10",
					},
				},
			},
			want: `# yamr snapshot format: version 1.0
MODULES
  com.example.moo/2.0
    artifact: com/example/moo/2.0/com.example.moo-2.0.js
    requirements:
      com.example.modifier 1.10
      com.example.role 2.0
`,
		},
		{
			name: "sorted output",
			entries: []*Entry{
				{Module: "zebra", Version: "1.0"},
				{Module: "alpha", Version: "2.0"},
				{Module: "alpha", Version: "1.0"},
			},
			want: `# yamr snapshot format: version 1.0
MODULES
  alpha/1.0
  alpha/2.0
  zebra/1.0
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			emitter := NewEmitter(&buf)
			if err := emitter.Emit(tt.entries); err != nil {
				t.Fatalf("Emit() error = %v", err)
			}
			got := buf.String()
			if got != tt.want {
				t.Errorf("Emit() =\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "0"},
		{"0", "0"},
		{"1.0", "1.0"},
		{">= 1.0", "1.0"},
		{">= 1.0, < 2.0", "1.0"},
		{"> 1.0", "1.0"},
		{"== 1.0", "1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := normalizeVersion(tt.input)
			if got != tt.want {
				t.Errorf("normalizeVersion(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
