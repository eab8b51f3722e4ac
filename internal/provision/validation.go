package provision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"clinic-provisioner/internal/common/errors"

	"github.com/xeipuuv/gojsonschema"
)

// requestSchema accepts clinic_id as a string or an integer; observed clients
// send both. The value is canonicalized to a string after validation.
const requestSchema = `{
	"type": "object",
	"properties": {
		"clinic_id": {"type": ["string", "integer"]},
		"force": {"type": "boolean"}
	},
	"required": ["clinic_id"],
	"additionalProperties": true
}`

// ParseRequest validates the raw body against the request schema and returns
// the canonicalized input. No side effects.
func ParseRequest(body []byte) (*Input, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.NewInvalidRequestError("empty request body")
	}

	schemaLoader := gojsonschema.NewStringLoader(requestSchema)
	documentLoader := gojsonschema.NewBytesLoader(body)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, errors.NewInvalidRequestError(fmt.Sprintf("malformed JSON: %v", err))
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return nil, errors.NewInvalidRequestError(strings.Join(messages, "; "))
	}

	var raw map[string]interface{}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return nil, errors.NewInvalidRequestError(fmt.Sprintf("decode body: %v", err))
	}

	var clinicID string
	switch v := raw["clinic_id"].(type) {
	case string:
		clinicID = strings.TrimSpace(v)
	case json.Number:
		clinicID = v.String()
	}
	if clinicID == "" {
		return nil, errors.NewInvalidRequestError("clinic_id must not be empty")
	}

	force, _ := raw["force"].(bool)

	return &Input{
		ClinicID: clinicID,
		Force:    force,
	}, nil
}
