package config

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"
	schemareflector "github.com/swaggest/jsonschema-go"
)

var rootSchema *jsonschema.Schema

func init() {
	bs, err := ReflectSchema()
	if err != nil {
		panic(err)
	}

	js, err := jsonschema.UnmarshalJSON(bytes.NewReader(bs))
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft2020)
	if err := compiler.AddResource("schema.json", js); err != nil {
		panic(err)
	}

	rootSchema, err = compiler.Compile("schema.json")
	if err != nil {
		panic(err)
	}
}

func ReflectSchema() ([]byte, error) {
	reflector := schemareflector.Reflector{}

	s, err := reflector.Reflect(Root{})
	if err != nil {
		return nil, err
	}

	return json.MarshalIndent(s, "", "  ")
}

func (Duration) PrepareJSONSchema(schema *schemareflector.Schema) error {
	schema.Type = nil
	schema.AddType(schemareflector.String)
	return nil
}

// Secret references are written as the secret name.
func (SecretRef) PrepareJSONSchema(schema *schemareflector.Schema) error {
	schema.Type = nil
	schema.Properties = nil
	schema.AddType(schemareflector.String)
	return nil
}

// We do this so that the following YAML config is considered valid:
//
//	repositories:
//	  local:
//
// The empty repository is then rejected with a descriptive error while
// decoding, instead of a schema type mismatch.
func (*Repository) PrepareJSONSchema(schema *schemareflector.Schema) error {
	schema.AddType(schemareflector.Null)
	return nil
}
