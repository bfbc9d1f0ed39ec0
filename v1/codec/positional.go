package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// fromPositional rebuilds the JSON object of a message from the
// [args, kwargs, extra] envelope. The third element is ignored.
func (c *Codec[T]) fromPositional(body []byte) ([]byte, error) {
	var envelope []json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("envelope is not a JSON array: %v", err)
	}
	if len(envelope) != 3 {
		return nil, fmt.Errorf("envelope has %d elements, expected 3", len(envelope))
	}

	var args []json.RawMessage
	if err := json.Unmarshal(envelope[0], &args); err != nil || isNull(envelope[0]) {
		return nil, fmt.Errorf("positional arguments are not an array")
	}
	var kwargs map[string]json.RawMessage
	if err := json.Unmarshal(envelope[1], &kwargs); err != nil || isNull(envelope[1]) {
		return nil, fmt.Errorf("keyword arguments are not an object")
	}
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(envelope[2], &extra); err != nil {
		return nil, fmt.Errorf("third element is not an object")
	}

	if len(args) > len(c.fields) {
		return nil, fmt.Errorf("takes %d positional arguments but %d were given", len(c.fields), len(args))
	}

	object := make(map[string]json.RawMessage, len(args)+len(kwargs))
	for i, arg := range args {
		object[c.fields[i]] = arg
	}
	for name, value := range kwargs {
		if _, ok := object[name]; ok {
			return nil, fmt.Errorf("got multiple values for argument %q", name)
		}
		object[name] = value
	}
	return json.Marshal(object)
}

func toPositional(object []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("[[],")
	buf.Write(object)
	buf.WriteString(",{}]")
	if !json.Valid(buf.Bytes()) {
		return nil, fmt.Errorf("cannot encode message: not a JSON object")
	}
	return buf.Bytes(), nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// jsonFieldNames returns the names encoding/json uses for the fields of typ,
// in declaration order. Untagged embedded structs are flattened.
func jsonFieldNames(typ reflect.Type) []string {
	var names []string
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")

		if field.Anonymous && name == "" {
			embedded := field.Type
			if embedded.Kind() == reflect.Pointer {
				embedded = embedded.Elem()
			}
			if embedded.Kind() == reflect.Struct {
				names = append(names, jsonFieldNames(embedded)...)
				continue
			}
		}
		if !field.IsExported() {
			continue
		}
		if name == "" {
			name = field.Name
		}
		names = append(names, name)
	}
	return names
}
