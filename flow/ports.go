package flow

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ExternalRequest is the wire shape emitted to the caller when a handler
// calls WorkflowContext.RequestExternal (spec §3, §6). The caller responds
// with a matching ExternalResponse via Run.Resume / StreamingRun.Resume.
type ExternalRequest struct {
	PortID    string
	RequestID string
	Payload   any
}

// ExternalResponse mirrors an ExternalRequest's RequestID and carries the
// caller-supplied payload back to the port's executor as an ordinary
// routed message (the executor registers a handler for ExternalResponse,
// or an interface it satisfies such as any, like any other message type).
type ExternalResponse struct {
	PortID    string
	RequestID string
	Payload   any
}

// PortSpec declares an input port's request and response payload types.
// The runtime enforces assignability of actual values against these types
// at enqueue time (spec §3: "the runtime enforces assignability at enqueue
// time"). RequestSchema/ResponseSchema, when set, add a second layer of
// validation against a portable JSON Schema, for ports whose caller sends
// values across a process boundary as plain JSON rather than as a typed
// Go value constructed in-process.
type PortSpec struct {
	ID           string
	RequestType  reflect.Type
	ResponseType reflect.Type

	RequestSchema  *jsonschema.Schema
	ResponseSchema *jsonschema.Schema
}

// NewPortSpec declares a port accepting requests of type Req and responses
// of type Resp.
func NewPortSpec[Req, Resp any](id string) PortSpec {
	return PortSpec{
		ID:           id,
		RequestType:  reflect.TypeOf((*Req)(nil)).Elem(),
		ResponseType: reflect.TypeOf((*Resp)(nil)).Elem(),
	}
}

// NewPortSpecWithSchema declares a port like NewPortSpec, plus a portable
// JSON Schema validated against the request and/or response payload at
// enqueue time, in addition to the Go type check. Either schema may be nil
// to skip that side's validation.
func NewPortSpecWithSchema[Req, Resp any](id string, requestSchema, responseSchema map[string]interface{}) (PortSpec, error) {
	spec := NewPortSpec[Req, Resp](id)
	if requestSchema != nil {
		s, err := compilePortSchema(id+".request", requestSchema)
		if err != nil {
			return PortSpec{}, err
		}
		spec.RequestSchema = s
	}
	if responseSchema != nil {
		s, err := compilePortSchema(id+".response", responseSchema)
		if err != nil {
			return PortSpec{}, err
		}
		spec.ResponseSchema = s
	}
	return spec, nil
}

func compilePortSchema(resourceID string, raw map[string]interface{}) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceID, raw); err != nil {
		return nil, fmt.Errorf("flow: add port schema resource %q: %w", resourceID, err)
	}
	schema, err := c.Compile(resourceID)
	if err != nil {
		return nil, fmt.Errorf("flow: compile port schema %q: %w", resourceID, err)
	}
	return schema, nil
}

// validatePortSchema checks payload against schema, if schema is non-nil,
// by round-tripping payload through JSON (the only way a Go value and a
// JSON Schema document can be compared uniformly regardless of payload
// shape).
func validatePortSchema(schema *jsonschema.Schema, payload any) error {
	if schema == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("flow: marshal payload for schema validation: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("flow: decode payload for schema validation: %w", err)
	}
	return schema.Validate(doc)
}

func assignable(v any, t reflect.Type) bool {
	vt := reflect.TypeOf(v)
	if vt == nil {
		return false
	}
	if vt == t {
		return true
	}
	return t.Kind() == reflect.Interface && vt.Implements(t)
}

// ErrPortTypeMismatch is the "external interface mismatch" error kind from
// spec §7, thrown synchronously when RequestExternal's payload does not
// match the port's declared request type or schema, or when a
// caller-supplied ExternalResponse payload does not match the port's
// declared response type or schema.
type ErrPortTypeMismatch struct {
	PortID string
	Want   reflect.Type
	Got    any
	Cause  error
}

func (e *ErrPortTypeMismatch) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("flow: port %s: %v", e.PortID, e.Cause)
	}
	return fmt.Sprintf("flow: port %s expected %s, got %T", e.PortID, e.Want, e.Got)
}

func (e *ErrPortTypeMismatch) Unwrap() error { return e.Cause }

// ErrUnknownPort is returned when a port id has no matching PortSpec on
// the workflow.
type ErrUnknownPort struct{ PortID string }

func (e *ErrUnknownPort) Error() string { return fmt.Sprintf("flow: unknown port %q", e.PortID) }
