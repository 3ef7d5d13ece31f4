package policy

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/mergegate/mergegate/core/infra/schema"
)

const ruleSetSchemaFile = "schema/ruleset.schema.json"

//go:embed schema/*.json
var policySchemaFS embed.FS

func validateRuleSetSchema(data []byte) error {
	schemaBytes, err := policySchemaFS.ReadFile(ruleSetSchemaFile)
	if err != nil {
		return fmt.Errorf("load rule set schema: %w", err)
	}
	var payload any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse rule set config: %w", err)
	}
	if err := schema.Validate("ruleset", schemaBytes, payload); err != nil {
		return fmt.Errorf("validate rule set config: %w", err)
	}
	return nil
}
