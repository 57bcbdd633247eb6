package nadi

import "errors"

// Registry, routing and dispatch errors. Operations wrap these with context;
// use errors.Is to test for them.
var (
	ErrUnknownNode    = errors.New("unknown node")
	ErrUnknownAlias   = errors.New("unknown alias")
	ErrAliasInUse     = errors.New("alias already in use")
	ErrNameNotFound   = errors.New("abstract node not found")
	ErrForbidden      = errors.New("operation forbidden on the context node")
	ErrDuplicateEdge  = errors.New("edge already exists")
	ErrEdgeNotFound   = errors.New("edge not found")
	ErrInvalidChannel = errors.New("invalid channel")
	ErrSchemaInvalid  = errors.New("control message failed schema validation")
	ErrNotInitialized = errors.New("context not initialized")

	ErrInvalidNode       = errors.New("invalid node")
	ErrInvalidMessage    = errors.New("invalid message")
	ErrBufferTooSmall    = errors.New("buffer too small")
	ErrAbstractExists    = errors.New("abstract node already registered")
	ErrInvalidDescriptor = errors.New("invalid descriptor")
	ErrFactory           = errors.New("node factory failed")
)

// Status is the numeric result code of the NADI binary interface.
type Status int

const (
	StatusOK             Status = 0
	StatusInvalidNode    Status = -1
	StatusInvalidMessage Status = -2
	StatusNotInitialized Status = -3
	StatusInvalidChannel Status = -4
	StatusBufferTooSmall Status = -5
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidNode:
		return "invalid node"
	case StatusInvalidMessage:
		return "invalid message"
	case StatusNotInitialized:
		return "not initialized"
	case StatusInvalidChannel:
		return "invalid channel"
	case StatusBufferTooSmall:
		return "buffer too small"
	default:
		return "unknown status"
	}
}

// StatusOf maps an error returned by this package to its interface status code.
// Errors without a dedicated code map to StatusInvalidMessage.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrNotInitialized):
		return StatusNotInitialized
	case errors.Is(err, ErrInvalidChannel):
		return StatusInvalidChannel
	case errors.Is(err, ErrBufferTooSmall):
		return StatusBufferTooSmall
	case errors.Is(err, ErrInvalidNode), errors.Is(err, ErrUnknownNode),
		errors.Is(err, ErrUnknownAlias), errors.Is(err, ErrForbidden):
		return StatusInvalidNode
	default:
		return StatusInvalidMessage
	}
}
