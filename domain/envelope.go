package domain

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

const (
	OpJoin  = "join"
	OpLeave = "leave"
	OpSend  = "send"
)

// Envelope is the tagged frame a client sends over the socket. Required
// fields are validated at the boundary before anything reaches the router.
type Envelope struct {
	Op       string `json:"op" validate:"required,oneof=join leave send"`
	Room     string `json:"room" validate:"required,min=1,max=64"`
	Body     string `json:"body,omitempty"`
	Passcode string `json:"passcode,omitempty" validate:"omitempty,max=128"`
}

// ParseEnvelope decodes and validates a raw client frame.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	if err := validate.Struct(env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
