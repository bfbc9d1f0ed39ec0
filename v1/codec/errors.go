package codec

import "errors"

var (
	// ErrMalformedMessage wraps every decoding failure. Workers treat it as
	// "drop the message and count it", never as a handler error.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnsupportedType is returned by NewPositional for message types that are
	// not structs.
	ErrUnsupportedType = errors.New("positional codec requires a struct type")
)
