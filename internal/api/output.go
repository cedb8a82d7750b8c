// Package api renders command results for the CLI.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the output format for CLI commands.
type OutputFormat string

const (
	OutputFormatYAML     OutputFormat = "yaml"
	OutputFormatJSON     OutputFormat = "json"
	OutputFormatMarkdown OutputFormat = "markdown"
)

// DefaultOutput is the default output format.
var DefaultOutput OutputFormat = OutputFormatYAML

// globalOutputFormat is set by the root command's --output flag.
var globalOutputFormat OutputFormat = OutputFormatYAML

// ParseOutputFormat validates a format name. Empty means DefaultOutput.
func ParseOutputFormat(format string) (OutputFormat, error) {
	switch OutputFormat(format) {
	case "":
		return DefaultOutput, nil
	case OutputFormatJSON, OutputFormatYAML, OutputFormatMarkdown:
		return OutputFormat(format), nil
	case "md":
		return OutputFormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown output format: %s", format)
}

// SetOutputFormat sets the global output format. Unknown names fall back to
// DefaultOutput.
func SetOutputFormat(format string) {
	f, err := ParseOutputFormat(format)
	if err != nil {
		f = DefaultOutput
	}
	globalOutputFormat = f
}

// GetOutputFormat returns the current global output format.
func GetOutputFormat() OutputFormat {
	return globalOutputFormat
}

// Markdowner is a result with a markdown rendering.
type Markdowner interface {
	Markdown() string
}

// Output writes data to stdout in the configured format.
func Output(data any) error {
	return OutputTo(os.Stdout, globalOutputFormat, data)
}

// OutputTo writes data to the given writer in the specified format.
func OutputTo(w io.Writer, format OutputFormat, data any) error {
	switch format {
	case OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	case OutputFormatMarkdown:
		m, ok := data.(Markdowner)
		if !ok {
			return fmt.Errorf("%T has no markdown rendering", data)
		}
		_, err := io.WriteString(w, m.Markdown()+"\n")
		return err
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
