package synth

import "encoding/json"

// Envelope is the single JSON document a runnable unit writes to its stdout. It mirrors
// the replEnvelope type in the runnable template.
type Envelope struct {
	Present     bool            `json:"present"`
	Type        string          `json:"type,omitempty"`
	RuntimeType string          `json:"runtimeType,omitempty"`
	Interface   bool            `json:"interface,omitempty"`
	Value       json.RawMessage `json:"value,omitempty"`
	Text        string          `json:"text,omitempty"`
	EncodeError string          `json:"encodeError,omitempty"`
	Panic       string          `json:"panic,omitempty"`
}
