package envelope

import (
	"encoding/json"
	"errors"

	"github.com/stregato/owndata/internal/core"
)

// Result is the uniform reply of every envelope operation: a JSON
// payload, an optional resource handle, and an error rendered as
// "CODE: message" so a non-Go caller can branch on the code without
// parsing Go error chains.
type Result struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	Handle  Handle          `json:"handle,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// OK wraps a payload value.
func OK(v any) Result {
	if v == nil {
		return Result{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Fail(err)
	}
	return Result{Payload: data}
}

// WithHandle wraps a resource handle, with an optional payload.
func WithHandle(h Handle, v any) Result {
	r := OK(v)
	if r.Error != "" {
		return r
	}
	r.Handle = h
	return r
}

// Fail wraps an error. Typed errors keep their code in front of the
// message; anything else is reported verbatim.
func Fail(err error) Result {
	var e *core.Error
	if errors.As(err, &e) {
		return Result{Error: string(e.Code) + ": " + e.Message}
	}
	return Result{Error: err.Error()}
}

// Check converts a Result back into an error, reconstructing the code
// when one is present. The round trip keeps errors.As working on both
// sides of the envelope.
func (r Result) Check() error {
	if r.Error == "" {
		return nil
	}
	for _, code := range core.Codes() {
		prefix := string(code) + ": "
		if len(r.Error) > len(prefix) && r.Error[:len(prefix)] == prefix {
			return core.Errf(code, "%s", r.Error[len(prefix):])
		}
	}
	return errors.New(r.Error)
}

// Unmarshal decodes the payload into v.
func (r Result) Unmarshal(v any) error {
	if err := r.Check(); err != nil {
		return err
	}
	if r.Payload == nil {
		return nil
	}
	return json.Unmarshal(r.Payload, v)
}
