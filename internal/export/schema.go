package export

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/sof-events/internal/common"
)

//go:embed payload.schema.json
var payloadSchemaJSON []byte

var compilePayloadSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("payload.schema.json", bytes.NewReader(payloadSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("payload.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

// ValidatePayload checks a JSON document against the payload schema and that
// count matches the number of events.
func ValidatePayload(data []byte) error {
	schema, err := compilePayloadSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: unmarshal payload: %v", common.ErrValidation, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: payload does not match schema: %v", common.ErrValidation, err)
	}
	obj := v.(map[string]any)
	count := int(obj["count"].(float64))
	if n := len(obj["events"].([]any)); count != n {
		return fmt.Errorf("%w: count %d but %d events", common.ErrValidation, count, n)
	}
	return nil
}
