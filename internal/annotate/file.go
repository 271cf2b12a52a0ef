package annotate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/folio/internal/types"
)

// ReadDictionaryFile loads a dictionary from a YAML or JSON file and
// validates it like an API payload.
func ReadDictionaryFile(path string) (types.Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dictionary: %w", err)
	}
	return ParseDictionaryYAML(data)
}

// ParseDictionaryYAML decodes YAML (or JSON, which YAML accepts) and validates
// the result against the dictionary schema. Items are decoded straight into
// strings, so unquoted scalars such as No, on or 1984 keep their literal text
// instead of becoming booleans or numbers.
func ParseDictionaryYAML(data []byte) (types.Dictionary, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("dictionary must map categories to lists of strings: %w", err)
		}
		return nil, fmt.Errorf("dictionary is not valid YAML: %w", err)
	}
	if raw == nil {
		return types.Dictionary{}, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode dictionary: %w", err)
	}
	return ParseDictionary(encoded)
}
