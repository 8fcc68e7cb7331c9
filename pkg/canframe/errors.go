package canframe

import "errors"

var (
	ErrMalformedFrame  = errors.New("canframe: malformed frame")
	ErrInvalidLength   = errors.New("canframe: invalid data length")
	ErrInvalidID       = errors.New("canframe: invalid identifier")
	ErrUnknownVersion  = errors.New("canframe: unknown protocol version")
	ErrPayloadTooLarge = errors.New("canframe: payload exceeds 7 data bytes")
	ErrUnsupportedKind = errors.New("canframe: frame kind not supported by protocol version")
)
