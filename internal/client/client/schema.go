package client

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const statusSchemaURL = "status.json"

const statusSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["task_id", "status"],
  "properties": {
    "task_id": {"type": "string", "minLength": 1},
    "status": {
      "type": "object",
      "additionalProperties": {"enum": ["pending", "completed", "failed"]}
    },
    "links": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  }
}`

func compileStatusSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(statusSchemaURL, strings.NewReader(statusSchema)); err != nil {
		return nil, errors.Wrap(err, "add status schema")
	}
	schema, err := compiler.Compile(statusSchemaURL)
	if err != nil {
		return nil, errors.Wrap(err, "compile status schema")
	}
	return schema, nil
}

func validateAgainst(schema *jsonschema.Schema, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return errors.Wrap(err, "unmarshal data")
	}
	if err := schema.Validate(v); err != nil {
		return errors.Wrap(err, "json does not match schema")
	}
	return nil
}
