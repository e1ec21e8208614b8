package protocol

import (
	_ "embed"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/action.schema.json
var actionSchemaJSON string

//go:embed schemas/view.schema.json
var viewSchemaJSON string

var (
	schemaOnce   sync.Once
	actionSchema *jsonschema.Schema
	viewSchema   *jsonschema.Schema
)

func loadSchemas() {
	schemaOnce.Do(func() {
		actionSchema = jsonschema.MustCompileString("action.schema.json", actionSchemaJSON)
		viewSchema = jsonschema.MustCompileString("view.schema.json", viewSchemaJSON)
	})
}

// ActionSchema returns the compiled schema every response line is validated against.
func ActionSchema() *jsonschema.Schema {
	loadSchemas()
	return actionSchema
}

// ViewSchema returns the compiled schema for engine -> agent lines.
func ViewSchema() *jsonschema.Schema {
	loadSchemas()
	return viewSchema
}
