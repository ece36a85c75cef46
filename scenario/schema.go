package scenario

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Stage outputs are validated against JSON Schemas before any structural
// cross-checks run, so malformed decision-maker output is rejected with a
// precise reason instead of a downstream nil-map panic.

const storesSchemaRaw = `{
  "type": "object",
  "required": ["stores"],
  "properties": {
    "stores": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["store_id", "name", "proprietor", "store_type", "pricing_multiplier"],
        "properties": {
          "store_id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "proprietor": {"type": "string", "minLength": 1},
          "proprietor_personality": {"type": "string"},
          "store_type": {"type": "string", "minLength": 1},
          "pricing_multiplier": {"type": "number", "minimum": 1.0, "maximum": 3.0},
          "x": {"type": "number"},
          "y": {"type": "number"}
        }
      }
    }
  }
}`

const npcsSchemaRaw = `{
  "type": "object",
  "required": ["npcs"],
  "properties": {
    "npcs": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["npc_id", "name", "job", "personality", "initial_trust"],
        "properties": {
          "npc_id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "job": {"type": "string", "minLength": 1},
          "personality": {"type": "string"},
          "skills": {
            "type": "object",
            "additionalProperties": {"type": "integer", "minimum": 1, "maximum": 10}
          },
          "initial_trust": {"type": "number", "minimum": 0, "maximum": 1},
          "hiring_cost": {"type": "integer", "minimum": 0},
          "x": {"type": "number"},
          "y": {"type": "number"}
        }
      }
    }
  }
}`

const itemsSchemaRaw = `{
  "type": "object",
  "required": ["items"],
  "properties": {
    "items": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["item_id", "name", "value", "rarity", "store_id"],
        "properties": {
          "item_id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "value": {"type": "integer", "minimum": 1},
          "rarity": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "tradeable": {"type": "boolean"},
          "store_id": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

const targetSchemaRaw = `{
  "type": "object",
  "required": ["item_id"],
  "properties": {
    "item_id": {"type": "string", "minLength": 1},
    "why_valuable": {"type": "string"}
  }
}`

var stageSchemas = map[string]*jsonschema.Schema{
	StageGenerateStores:      jsonschema.MustCompileString("generate_stores.json", storesSchemaRaw),
	StageGenerateNPCs:        jsonschema.MustCompileString("generate_npcs.json", npcsSchemaRaw),
	StageAssignItemsToStores: jsonschema.MustCompileString("assign_items_to_stores.json", itemsSchemaRaw),
	StageSelectTargetItem:    jsonschema.MustCompileString("select_target_item.json", targetSchemaRaw),
}

// validateStageOutput normalizes the decision-maker result through a JSON
// round trip (providers may hand back typed Go values) and validates it
// against the stage's schema. The returned map contains only JSON-native
// types, so stage parsers can rely on map[string]any / []any / float64.
func validateStageOutput(stage string, result map[string]any) (map[string]any, error) {
	schema, ok := stageSchemas[stage]
	if !ok {
		return nil, fmt.Errorf("no schema for stage %s", stage)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("stage %s output not serializable: %w", stage, err)
	}
	var v map[string]any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if err := schema.Validate(any(v)); err != nil {
		return nil, fmt.Errorf("stage %s output invalid: %w", stage, err)
	}
	return v, nil
}
