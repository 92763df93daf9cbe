package modelclient

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

// Kind tags the type of a domain object, e.g. "employee" or "klasse". For
// MO objects it doubles as the "type" discriminator sent to the server.
type Kind string

// Object is a domain object to upload. A nil UUID lets the server assign
// one on create.
type Object struct {
	Kind   Kind `validate:"required"`
	UUID   *uuid.UUID
	Fields map[string]any
}

var (
	ErrUnknownKind  = errors.New("unknown object kind")
	ErrMissingField = errors.New("missing field")
	ErrMissingUUID  = errors.New("object has no uuid")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func NewObject(kind Kind, id *uuid.UUID, fields map[string]any) Object {
	return Object{Kind: kind, UUID: id, Fields: fields}
}

func (o Object) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid object: %w", err)
	}
	return nil
}

type flatObject struct {
	Type   string         `mapstructure:"type"`
	UUID   string         `mapstructure:"uuid"`
	Fields map[string]any `mapstructure:",remain"`
}

// ObjectFromMap builds an Object from its flat JSON form: "type" and
// "uuid" keys plus any number of fields.
func ObjectFromMap(m map[string]any) (Object, error) {
	var flat flatObject
	if err := mapstructure.Decode(m, &flat); err != nil {
		return Object{}, fmt.Errorf("failed to decode object: %w", err)
	}

	obj := Object{Kind: Kind(flat.Type), Fields: flat.Fields}
	if flat.UUID != "" {
		id, err := uuid.Parse(flat.UUID)
		if err != nil {
			return Object{}, fmt.Errorf("invalid object uuid %q: %w", flat.UUID, err)
		}
		obj.UUID = &id
	}
	if obj.Fields == nil {
		obj.Fields = map[string]any{}
	}
	return obj, obj.Validate()
}

// ObjectFrom builds an Object of the given kind from any value with a JSON
// object encoding, typically a struct with json tags. A "uuid" member
// becomes the object's UUID.
func ObjectFrom(kind Kind, v any) (Object, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Object{}, fmt.Errorf("failed to encode object: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return Object{}, fmt.Errorf("object must encode to a JSON object: %w", err)
	}
	if m["uuid"] == nil {
		delete(m, "uuid")
	}
	if kind != "" {
		m["type"] = string(kind)
	}
	return ObjectFromMap(m)
}

// payload is the JSON body for o under route. Nil fields are left out.
func (o Object) payload(route Route) map[string]any {
	body := make(map[string]any, len(o.Fields)+2)
	for k, v := range o.Fields {
		if v != nil {
			body[k] = v
		}
	}
	if !route.OmitType {
		body["type"] = string(o.Kind)
	}
	if o.UUID != nil && !route.OmitUUID {
		body["uuid"] = o.UUID.String()
	}
	return body
}

// placeholders are the values route paths may refer to.
func (o Object) placeholders() map[string]any {
	values := make(map[string]any, len(o.Fields)+2)
	for k, v := range o.Fields {
		values[k] = v
	}
	values["type"] = string(o.Kind)
	if o.UUID != nil {
		values["uuid"] = o.UUID.String()
	}
	return values
}
