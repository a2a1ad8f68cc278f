package persistence

import (
	"encoding/json"

	"github.com/solenne/flowline/pkg/api"
)

// The stores persist definitions and instances as JSON documents next to
// the columns they filter on. JSON keeps payloads portable across the
// SQLite, Postgres and Redis backends and readable in place.

func encodeDefinition(def *api.WorkflowDefinition) ([]byte, error) {
	return json.Marshal(def)
}

func decodeDefinition(data []byte) (*api.WorkflowDefinition, error) {
	var def api.WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

func encodeInstance(inst *api.WorkflowInstance) ([]byte, error) {
	return json.Marshal(inst)
}

func decodeInstance(data []byte) (*api.WorkflowInstance, error) {
	var inst api.WorkflowInstance
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// cloneInstance deep-copies an instance via the JSON codec. The in-memory
// store uses it so callers never alias stored state.
func cloneInstance(inst *api.WorkflowInstance) *api.WorkflowInstance {
	data, err := encodeInstance(inst)
	if err != nil {
		// Instances are always JSON-encodable; the data map is built from
		// JSON-compatible values.
		panic("persistence: instance not encodable: " + err.Error())
	}
	out, err := decodeInstance(data)
	if err != nil {
		panic("persistence: instance not decodable: " + err.Error())
	}
	return out
}

func cloneDefinition(def *api.WorkflowDefinition) *api.WorkflowDefinition {
	data, err := encodeDefinition(def)
	if err != nil {
		panic("persistence: definition not encodable: " + err.Error())
	}
	out, err := decodeDefinition(data)
	if err != nil {
		panic("persistence: definition not decodable: " + err.Error())
	}
	return out
}
