package api

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the output format for CLI commands.
type OutputFormat string

const (
	OutputFormatYAML OutputFormat = "yaml"
	OutputFormatJSON OutputFormat = "json"
)

// DefaultOutput is the default output format.
const DefaultOutput = OutputFormatYAML

// globalOutputFormat is set by the root command's --output flag.
var globalOutputFormat atomic.Value

func init() {
	globalOutputFormat.Store(DefaultOutput)
}

// SetOutputFormat sets the global output format.
func SetOutputFormat(format string) error {
	switch OutputFormat(format) {
	case OutputFormatJSON, OutputFormatYAML:
		globalOutputFormat.Store(OutputFormat(format))
		return nil
	case "":
		globalOutputFormat.Store(DefaultOutput)
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want yaml or json)", format)
	}
}

// GetOutputFormat returns the current global output format.
func GetOutputFormat() OutputFormat {
	return globalOutputFormat.Load().(OutputFormat)
}

// Output writes data to stdout in the configured format.
func Output(data any) error {
	return OutputTo(os.Stdout, GetOutputFormat(), data)
}

// OutputTo writes data to the given writer in the specified format.
// Values are passed through JSON first so YAML output uses the same
// snake_case keys as the HTTP API.
func OutputTo(w io.Writer, format OutputFormat, data any) error {
	switch format {
	case OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case OutputFormatYAML:
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(generic)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
