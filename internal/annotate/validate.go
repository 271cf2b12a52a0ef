package annotate

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jackzampolin/folio/internal/types"
)

//go:embed schemas/dictionary.schema.json
var dictionarySchemaJSON []byte

var (
	dictionarySchemaOnce sync.Once
	dictionarySchema     *jsonschema.Schema
	dictionarySchemaErr  error
)

func compiledDictionarySchema() (*jsonschema.Schema, error) {
	dictionarySchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("dictionary.schema.json", bytes.NewReader(dictionarySchemaJSON)); err != nil {
			dictionarySchemaErr = fmt.Errorf("invalid dictionary schema: %w", err)
			return
		}
		dictionarySchema, dictionarySchemaErr = compiler.Compile("dictionary.schema.json")
		if dictionarySchemaErr != nil {
			dictionarySchemaErr = fmt.Errorf("invalid dictionary schema: %w", dictionarySchemaErr)
		}
	})
	return dictionarySchema, dictionarySchemaErr
}

// ValidateDictionaryJSON checks that data is an object of string arrays.
// Writes go through this; reads use DecodeDictionary, which is permissive.
func ValidateDictionaryJSON(data []byte) error {
	schema, err := compiledDictionarySchema()
	if err != nil {
		return err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("dictionary is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("dictionary does not match schema: %w", err)
	}
	return nil
}

// ParseDictionary validates data and decodes it.
func ParseDictionary(data []byte) (types.Dictionary, error) {
	if err := ValidateDictionaryJSON(data); err != nil {
		return nil, err
	}
	var dict types.Dictionary
	if err := json.Unmarshal(data, &dict); err != nil {
		return nil, fmt.Errorf("failed to decode dictionary: %w", err)
	}
	if dict == nil {
		dict = types.Dictionary{}
	}
	return dict, nil
}
