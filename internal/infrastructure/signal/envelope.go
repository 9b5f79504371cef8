package signal

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire frame for every signaling event in both directions.
type Envelope struct {
	Event string            `json:"event"`
	Args  []json.RawMessage `json:"args"`
}

func encodeEnvelope(event string, args ...any) ([]byte, error) {
	env := Envelope{Event: event, Args: make([]json.RawMessage, 0, len(args))}
	for i, arg := range args {
		if raw, ok := arg.(json.RawMessage); ok {
			env.Args = append(env.Args, raw)
			continue
		}
		data, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("encode %s arg %d: %w", event, i, err)
		}
		env.Args = append(env.Args, data)
	}
	return json.Marshal(env)
}

func decodeArg(args []json.RawMessage, i int, v any) error {
	if i >= len(args) {
		return fmt.Errorf("missing argument %d", i)
	}
	return json.Unmarshal(args[i], v)
}
