package signal

// actionListSchema is the contract the reasoner's LLM output must satisfy
// before any action is taken. Anything that fails validation is treated as
// no_action; model output never drives untyped control flow.
const actionListSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["actions"],
  "additionalProperties": false,
  "properties": {
    "actions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "confidence", "signal_class", "target_key"],
        "properties": {
          "type": {
            "type": "string",
            "enum": ["trigger_existing", "create_signal_emergent", "no_action"]
          },
          "confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "signal_class": {"type": "string", "minLength": 1},
          "target_key": {"type": "string", "minLength": 1},
          "reason": {"type": "string"},
          "deliverable_id": {"type": "string"},
          "spec": {
            "type": "object",
            "required": ["title", "binding", "sources"],
            "properties": {
              "title": {"type": "string", "minLength": 1},
              "binding": {
                "type": "string",
                "enum": ["platform_bound", "cross_platform", "research", "hybrid"]
              },
              "topic": {"type": "string"},
              "sources": {
                "type": "array",
                "minItems": 1,
                "items": {
                  "type": "object",
                  "required": ["platform", "scope"],
                  "properties": {
                    "platform": {"type": "string", "minLength": 1},
                    "scope": {"type": "string", "minLength": 1}
                  }
                }
              },
              "destination": {
                "type": "object",
                "properties": {
                  "platform": {"type": "string"},
                  "target": {"type": "string"},
                  "format": {"type": "string"}
                }
              }
            }
          }
        }
      }
    }
  }
}`
