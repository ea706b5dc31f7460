package serialize

import (
	"encoding/json"
	"fmt"
)

// ActivityResult is the outcome of running a pending call. Value and Err are
// mutually exclusive.
type ActivityResult struct {
	Value any
	Err   *Traceback
}

// Envelope is the JSON body carried by execute and reply payloads.
type Envelope struct {
	Token     string          `json:"token"`
	Value     json.RawMessage `json:"value,omitempty"`
	Error     string          `json:"error,omitempty"`
	Traceback []Frame         `json:"traceback,omitempty"`
}

// Envelope encodes r for the host, keyed by token.
func (r ActivityResult) Envelope(token string) []byte {
	env := Envelope{Token: token}
	if r.Err != nil {
		env.Error = r.Err.Message
		env.Traceback = r.Err.Frames
	} else {
		env.Value = Marshal(r.Value)
	}
	b, err := json.Marshal(env)
	if err != nil {
		// Value is protojson output and always valid JSON.
		return []byte(fmt.Sprintf(`{"token":%q}`, token))
	}
	return b
}

// DecodeEnvelope parses a payload. An empty payload yields an empty envelope.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if len(b) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("decode payload: %w", err)
	}
	return env, nil
}

// Result turns a decoded envelope back into an ActivityResult.
func (e Envelope) Result() (ActivityResult, error) {
	if e.Error != "" {
		return ActivityResult{Err: &Traceback{Message: e.Error, Frames: e.Traceback}}, nil
	}
	if len(e.Value) == 0 {
		return ActivityResult{}, nil
	}
	var v any
	if err := json.Unmarshal(e.Value, &v); err != nil {
		return ActivityResult{}, fmt.Errorf("decode value: %w", err)
	}
	return ActivityResult{Value: v}, nil
}
