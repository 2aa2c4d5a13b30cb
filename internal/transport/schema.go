package transport

import (
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ErrProtocol wraps every schema violation on an incoming client frame. It
// maps to error{ValueError} and closes only the offending connection's
// in-flight request, never the job it names.
var ErrProtocol = errors.New("transport: protocol violation")

// clientMessageSchema constrains every client -> server frame to one of
// the four documented message types and their required fields. type is
// always required; the rest are conditionally required per type.
const clientMessageSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {"type": "string", "enum": ["start_analysis", "subscribe", "cancel", "ping"]},
    "project_id": {"type": "string"},
    "analyzer_type": {"type": "string"},
    "job_id": {"type": "string"},
    "from_sequence": {"type": "integer", "minimum": 0}
  },
  "allOf": [
    {
      "if": {"properties": {"type": {"const": "start_analysis"}}},
      "then": {"required": ["project_id", "analyzer_type"]}
    },
    {
      "if": {"properties": {"type": {"const": "subscribe"}}},
      "then": {"required": ["job_id"]}
    },
    {
      "if": {"properties": {"type": {"const": "cancel"}}},
      "then": {"required": ["job_id"]}
    }
  ]
}`

var clientSchemaLoader = gojsonschema.NewStringLoader(clientMessageSchema)

// ValidateClientFrame checks raw against the client message schema before
// it is unmarshaled and dispatched. A non-nil error always wraps
// ErrProtocol.
func ValidateClientFrame(raw []byte) error {
	result, err := gojsonschema.Validate(clientSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	if !result.Valid() {
		descs := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			descs = append(descs, fmt.Sprintf("%s: %s", verr.Field(), verr.Description()))
		}

		return fmt.Errorf("%w: %v", ErrProtocol, descs)
	}

	return nil
}
