package outbox

const recordChangedSchema = `{
  "type": "object",
  "title": "RecordChanged",
  "properties": {
    "change_seq": {"type": "integer"},
    "op": {"type": "string", "enum": ["UPSERT", "DELETE"]},
    "kind": {"type": "string"},
    "record_id": {"type": "string"},
    "data_origin": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"},
    "record": {"type": "object"}
  },
  "required": ["change_seq", "op", "kind", "record_id", "data_origin", "occurred_at"],
  "additionalProperties": false
}`
