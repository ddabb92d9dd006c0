package clip

import "errors"

var (
	// ErrMalformedCapture marks a capture file that failed to parse as
	// well-formed structured data. The whole segment is rejected; no
	// records are emitted and no aggregate is written.
	ErrMalformedCapture = errors.New("malformed capture")

	// ErrHeaderUnparseable marks a companion header document missing a
	// required field. Parsing never guesses session metadata.
	ErrHeaderUnparseable = errors.New("header unparseable")

	// ErrClipNotFound is returned by refresh/delete for an unknown clip id.
	ErrClipNotFound = errors.New("clip not found")

	// ErrInvalidRecord marks a record with an ambiguous payload shape
	// (both superchat and gift fields populated).
	ErrInvalidRecord = errors.New("invalid record payload shape")
)
