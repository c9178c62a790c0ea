package arch

import "github.com/invopop/jsonschema"

// JSONSchema describes Arch as its text form in profile schemas.
func (Arch) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "string",
		Enum: []any{ARM.String(), ARM64.String()},
	}
}

// JSONSchema describes Op as its text form in profile schemas.
func (Op) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "string",
		Enum: []any{OpLiteral.String(), OpPageRelative.String(), OpAddSub.String(), OpLoadStore.String()},
	}
}
