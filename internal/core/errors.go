package core

import "errors"

// ErrCodeDecodeFailed marks a media payload that could not be reassembled.
const ErrCodeDecodeFailed = "decode_failed"

var (
	ErrMissingFileID      = errors.New("chunked media without fileId")
	ErrChunkOutOfRange    = errors.New("chunk index out of range")
	ErrChunkCountMismatch = errors.New("chunk count differs from first chunk")
	ErrChunkDecode        = errors.New("media payload is not valid base64")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
