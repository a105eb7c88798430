package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Message types the service reacts to.
const (
	TypeCanvasCreated        = "v2.canvas.created"
	TypeCanvasUserInteracted = "v2.canvas.userInteracted"
)

// ErrMalformedEnvelope matches every *MalformedEnvelopeError.
var ErrMalformedEnvelope = errors.New("webhook: malformed envelope")

// MalformedEnvelopeError reports an envelope that cannot be dispatched.
type MalformedEnvelopeError struct {
	Field  string
	Reason string
}

func (e *MalformedEnvelopeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("webhook: malformed envelope: %s", e.Reason)
	}
	return fmt.Sprintf("webhook: malformed envelope: %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is match ErrMalformedEnvelope.
func (e *MalformedEnvelopeError) Is(target error) bool {
	return target == ErrMalformedEnvelope
}

// App identifies the installed app that the delivery is for.
type App struct {
	ID string `json:"id"`
}

// Message is the event part of an envelope. Only the fields used for routing
// are decoded.
type Message struct {
	Type       string `json:"type"`
	FeatureID  string `json:"featureId,omitempty"`
	ResourceID string `json:"resourceId,omitempty"`
	CanvasID   string `json:"canvasId,omitempty"`
	ButtonID   string `json:"buttonId,omitempty"`
}

// Envelope is an inbound webhook delivery.
type Envelope struct {
	Version  string   `json:"version"`
	BaseURL  string   `json:"baseURL"`
	TenantID string   `json:"tenantId"`
	App      App      `json:"app"`
	Message  *Message `json:"message"`
}

// Event is a classified message: CanvasCreated, UserInteracted or Other.
type Event interface {
	// MessageType returns the raw message type the event was classified from.
	MessageType() string
}

// CanvasCreated asks the app to create the initial canvas for a feature.
type CanvasCreated struct {
	FeatureID string
	// ResourceID is empty when the host did not bind the canvas to a resource.
	ResourceID string
}

// UserInteracted reports a button click on an existing canvas. Either field
// may be empty; the dispatcher treats that as a no-op.
type UserInteracted struct {
	CanvasID string
	ButtonID string
}

// Other is any message type the service does not handle.
type Other struct {
	Type string
}

func (CanvasCreated) MessageType() string  { return TypeCanvasCreated }
func (UserInteracted) MessageType() string { return TypeCanvasUserInteracted }
func (o Other) MessageType() string        { return o.Type }

// Delivery is a classified envelope with its routing metadata.
type Delivery struct {
	Envelope Envelope
	Event    Event
}

// Decode parses a raw body into an Envelope.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if len(bytes.TrimSpace(raw)) == 0 {
		return env, &MalformedEnvelopeError{Reason: "empty body"}
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, &MalformedEnvelopeError{Reason: "invalid JSON: " + err.Error()}
	}
	return env, nil
}

// Classify decodes and classifies a raw body.
func Classify(raw []byte) (Delivery, error) {
	env, err := Decode(raw)
	if err != nil {
		return Delivery{}, err
	}
	ev, err := ClassifyEnvelope(env)
	if err != nil {
		return Delivery{Envelope: env}, err
	}
	return Delivery{Envelope: env, Event: ev}, nil
}

// ClassifyEnvelope maps the message type to an Event and checks that the
// correlation fields that type needs are present.
func ClassifyEnvelope(env Envelope) (Event, error) {
	msg := env.Message
	if msg == nil {
		return nil, &MalformedEnvelopeError{Field: "message", Reason: "missing"}
	}
	msgType := strings.TrimSpace(msg.Type)
	if msgType == "" {
		return nil, &MalformedEnvelopeError{Field: "message.type", Reason: "missing"}
	}

	switch msgType {
	case TypeCanvasCreated:
		if msg.FeatureID == "" {
			return nil, &MalformedEnvelopeError{Field: "message.featureId", Reason: "required for " + msgType}
		}
		return CanvasCreated{FeatureID: msg.FeatureID, ResourceID: msg.ResourceID}, nil
	case TypeCanvasUserInteracted:
		if msg.CanvasID == "" && msg.ButtonID == "" {
			return nil, &MalformedEnvelopeError{Field: "message.canvasId", Reason: "canvasId or buttonId required for " + msgType}
		}
		return UserInteracted{CanvasID: msg.CanvasID, ButtonID: msg.ButtonID}, nil
	default:
		return Other{Type: msgType}, nil
	}
}
