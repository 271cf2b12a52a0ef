package annotate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jackzampolin/folio/internal/types"
)

// Singular derives an entity category from its plural dictionary key by
// stripping one trailing "s". Keys without the suffix are returned unchanged.
// Irregular plurals are not handled ("species" becomes "specie").
func Singular(plural string) string {
	return strings.TrimSuffix(plural, "s")
}

// FilterPresent returns the subset of dict whose entries occur, ignoring case,
// somewhere in lowerText. lowerText must already be lowercased.
// Categories with no surviving entries are omitted.
func FilterPresent(dict types.Dictionary, lowerText string) types.Dictionary {
	present := make(types.Dictionary)
	for category, items := range dict {
		var keep []string
		for _, item := range items {
			if strings.TrimSpace(item) == "" {
				continue
			}
			if strings.Contains(lowerText, strings.ToLower(item)) {
				keep = append(keep, item)
			}
		}
		if len(keep) > 0 {
			present[category] = keep
		}
	}
	return present
}

// BuildIndex inserts every non-blank entry of dict under its singular category.
// Categories are visited in sorted order so that duplicate entries across
// categories resolve the same way on every call.
func BuildIndex(dict types.Dictionary) *Index {
	idx := NewIndex()
	for _, category := range sortedCategories(dict) {
		singular := Singular(category)
		if singular == "" {
			continue
		}
		for _, item := range dict[category] {
			idx.Insert(item, singular)
		}
	}
	return idx
}

func sortedCategories(dict types.Dictionary) []string {
	keys := make([]string, 0, len(dict))
	for k := range dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NormalizeDictionary converts an untyped decoded dictionary blob into a
// Dictionary. Category values that are not arrays are dropped, as are items
// that are not strings.
func NormalizeDictionary(raw map[string]any) types.Dictionary {
	dict := make(types.Dictionary, len(raw))
	for category, value := range raw {
		switch items := value.(type) {
		case []string:
			dict[category] = append([]string(nil), items...)
		case []any:
			var kept []string
			for _, item := range items {
				if s, ok := item.(string); ok {
					kept = append(kept, s)
				}
			}
			dict[category] = kept
		}
	}
	return dict
}

// DecodeDictionary decodes a stored dictionary blob permissively.
// Empty input and JSON null yield an empty dictionary.
func DecodeDictionary(data []byte) (types.Dictionary, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return types.Dictionary{}, nil
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode dictionary: %w", err)
	}
	return NormalizeDictionary(raw), nil
}
