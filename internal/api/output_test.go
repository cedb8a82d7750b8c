package api

import (
	"bytes"
	"strings"
	"testing"
)

type result struct {
	Name  string `json:"name" yaml:"name"`
	Pages int    `json:"pages" yaml:"pages"`
}

func (r result) Markdown() string {
	return "# " + r.Name
}

func TestOutputTo(t *testing.T) {
	data := result{Name: "report", Pages: 3}

	tests := []struct {
		format OutputFormat
		want   string
	}{
		{OutputFormatJSON, "{\n  \"name\": \"report\",\n  \"pages\": 3\n}\n"},
		{OutputFormatYAML, "name: report\npages: 3\n"},
		{OutputFormatMarkdown, "# report\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := OutputTo(&buf, tt.format, data); err != nil {
				t.Fatalf("OutputTo() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}

	t.Run("markdown needs a renderer", func(t *testing.T) {
		err := OutputTo(&bytes.Buffer{}, OutputFormatMarkdown, map[string]int{"a": 1})
		if err == nil || !strings.Contains(err.Error(), "no markdown rendering") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		if err := OutputTo(&bytes.Buffer{}, "xml", data); err == nil {
			t.Error("expected error")
		}
	})
}

func TestParseOutputFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{
		"":         OutputFormatYAML,
		"json":     OutputFormatJSON,
		"md":       OutputFormatMarkdown,
		"markdown": OutputFormatMarkdown,
	} {
		got, err := ParseOutputFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseOutputFormat(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseOutputFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}

	SetOutputFormat("json")
	defer SetOutputFormat("yaml")
	if GetOutputFormat() != OutputFormatJSON {
		t.Errorf("global format = %s", GetOutputFormat())
	}
}
