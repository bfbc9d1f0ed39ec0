package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Mode selects the wire format of a Codec.
type Mode int

const (
	// ModeJSON reads and writes the message as a JSON object.
	ModeJSON Mode = iota
	// ModePositional reads and writes the legacy [args, kwargs, {}] envelope.
	ModePositional
)

func (m Mode) String() string {
	if m == ModePositional {
		return "positional"
	}
	return "json"
}

// Validator can be implemented by message types for checks that validate
// struct tags cannot express. It runs after tag validation.
type Validator interface {
	Validate() error
}

// Codec converts between raw message bodies and values of T.
// It is safe for concurrent use.
type Codec[T any] struct {
	mode Mode

	// fields lists the JSON names of T in declaration order; positional
	// arguments are assigned to them by index.
	fields []string
}

// NewJSON returns a codec reading and writing T as a JSON object.
func NewJSON[T any]() *Codec[T] {
	return &Codec[T]{mode: ModeJSON}
}

// NewPositional returns a codec for the legacy envelope
//
//	[[arg0, arg1, ...], {"name": value, ...}, {}]
//
// Positional arguments are assigned to the JSON fields of T in declaration
// order, keyword arguments by name. T must be a struct.
func NewPositional[T any]() (*Codec[T], error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
	}
	return &Codec[T]{mode: ModePositional, fields: jsonFieldNames(typ)}, nil
}

// Mode reports the wire format of c.
func (c *Codec[T]) Mode() Mode {
	return c.mode
}

// Decode parses body into a T and validates it. Struct types are checked
// against their validate tags, then against Validator if T implements it.
// Every failure, whether invalid UTF-8, invalid JSON, a type mismatch or a
// failed validation, is returned wrapped in ErrMalformedMessage.
func (c *Codec[T]) Decode(body []byte) (T, error) {
	var msg T

	if !utf8.Valid(body) {
		return msg, fmt.Errorf("%w: body is not valid UTF-8", ErrMalformedMessage)
	}

	payload := body
	if c.mode == ModePositional {
		var err error
		if payload, err = c.fromPositional(body); err != nil {
			return msg, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return msg, fmt.Errorf("%w: empty message", ErrMalformedMessage)
	}
	if err := c.unmarshal(trimmed, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := validate(&msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return msg, nil
}

// Encode serialises msg in the codec's wire format.
func (c *Codec[T]) Encode(msg T) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("cannot encode message: %w", err)
	}
	if c.mode == ModeJSON {
		return payload, nil
	}
	return toPositional(payload)
}

// unmarshal decodes a JSON object into msg. Keyword arguments of the
// positional envelope must all name a field of T.
func (c *Codec[T]) unmarshal(data []byte, msg *T) error {
	if c.mode == ModeJSON {
		return json.Unmarshal(data, msg)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(msg)
}

var structs = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validate[T any](msg *T) error {
	rv := reflect.ValueOf(msg).Elem()
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		var invalid *validator.InvalidValidationError
		if err := structs.Struct(rv.Interface()); err != nil && !errors.As(err, &invalid) {
			return err
		}
	}
	if v, ok := any(msg).(Validator); ok {
		return v.Validate()
	}
	return nil
}
