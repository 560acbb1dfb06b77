package types

import (
	"encoding/json"
	"fmt"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the uniform result of every proxy route and every tool call.
// Data is only set on success; Message carries the error text on failure and
// an optional human-readable note on success.
type Envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Success builds a success envelope. A nil data value produces a message-only
// envelope.
func Success(data any, message string) Envelope {
	env := Envelope{Status: StatusSuccess, Message: message}
	if data == nil {
		return env
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Failure(fmt.Sprintf("failed to encode response: %v", err))
	}
	env.Data = raw
	return env
}

// Failure builds an error envelope.
func Failure(message string) Envelope {
	return Envelope{Status: StatusError, Message: message}
}

// OK reports whether the envelope carries a success status.
func (e Envelope) OK() bool {
	return e.Status == StatusSuccess
}

// DecodeData unmarshals the data payload into v.
func (e Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("envelope has no data")
	}
	return json.Unmarshal(e.Data, v)
}

// String renders the envelope as compact JSON.
func (e Envelope) String() string {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"status":%q,"message":%q}`, e.Status, e.Message)
	}
	return string(b)
}
