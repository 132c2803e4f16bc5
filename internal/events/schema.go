// Package events owns the lifecycle event outbox: payload schemas, durable
// queueing, asynchronous signed delivery and retry of failed deliveries.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	TypeSessionStarted = "session_started"
	TypeListenerJoined = "listener_joined"
	TypeSessionEnded   = "session_ended"
	TypeDeliverySent   = "delivery_sent"
	TypeDeliveryFailed = "delivery_failed"
)

var ErrUnknownEventType = errors.New("unknown event type")

// ValidationError reports a payload that does not match its event schema.
type ValidationError struct {
	EventType string
	Err       error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload for %s: %v", e.EventType, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

type sessionStarted struct {
	SessionID string `json:"session_id" validate:"required,uuid4"`
	PIN       string `json:"pin" validate:"required,len=6,alphanum"`
}

type listenerJoined struct {
	SessionID  string `json:"session_id" validate:"required,uuid4"`
	ListenerID string `json:"listener_id" validate:"required,uuid4"`
}

type sessionEnded struct {
	SessionID       string `json:"session_id" validate:"required,uuid4"`
	DurationSeconds *int   `json:"duration_seconds" validate:"required,gte=0"`
}

type deliverySent struct {
	EventLogID string `json:"event_log_id" validate:"required,uuid4"`
	TargetURL  string `json:"target_url" validate:"required"`
}

type deliveryFailed struct {
	EventLogID string `json:"event_log_id" validate:"required,uuid4"`
	TargetURL  string `json:"target_url" validate:"required"`
	Reason     string `json:"reason" validate:"required"`
}

var schemas = map[string]func() any{
	TypeSessionStarted: func() any { return &sessionStarted{} },
	TypeListenerJoined: func() any { return &listenerJoined{} },
	TypeSessionEnded:   func() any { return &sessionEnded{} },
	TypeDeliverySent:   func() any { return &deliverySent{} },
	TypeDeliveryFailed: func() any { return &deliveryFailed{} },
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return v
}

// KnownType reports whether eventType has a registered schema.
func KnownType(eventType string) bool {
	_, ok := schemas[eventType]
	return ok
}

// Types returns the registered event types in sorted order.
func Types() []string {
	out := make([]string, 0, len(schemas))
	for t := range schemas {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Validate checks payload against the schema registered for eventType.
// Fields beyond the schema are allowed.
func Validate(eventType string, payload json.RawMessage) error {
	newSchema, ok := schemas[eventType]
	if !ok {
		return &ValidationError{EventType: eventType, Err: fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)}
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	v := newSchema()
	if err := json.Unmarshal(payload, v); err != nil {
		return &ValidationError{EventType: eventType, Err: fmt.Errorf("decode: %w", err)}
	}
	if err := validate.Struct(v); err != nil {
		return &ValidationError{EventType: eventType, Err: describe(err)}
	}
	return nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return errors.New(strings.Join(parts, "; "))
}
