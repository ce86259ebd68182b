// Package media holds helpers for media payloads sent over the relay.
package media

import (
	"encoding/base64"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ChunkSize is the raw byte threshold above which clients split a payload
// into several mediaMessage frames. Clients ship with 10 MiB.
const ChunkSize = 10240 * 1024

// File types used by the mobile clients.
const (
	TypePhoto = "photo"
	TypeVideo = "video"
	TypeVoice = "voice"
)

// EncodedLen is the base64 length of n raw bytes.
func EncodedLen(n int) int {
	return base64.StdEncoding.EncodedLen(n)
}

// Split encodes data as base64 chunks of at most chunkSize raw bytes each.
// chunkSize is rounded down to a multiple of three so every chunk ends on a
// base64 group boundary and the concatenation of all chunks decodes to data.
// A payload that fits in one chunk yields a single element.
func Split(data []byte, chunkSize int) []string {
	chunkSize -= chunkSize % 3
	if chunkSize <= 0 {
		chunkSize = 3
	}
	if len(data) <= chunkSize {
		return []string{base64.StdEncoding.EncodeToString(data)}
	}

	chunks := make([]string, 0, (len(data)+chunkSize-1)/chunkSize)
	for start := 0; start < len(data); start += chunkSize {
		end := min(start+chunkSize, len(data))
		chunks = append(chunks, base64.StdEncoding.EncodeToString(data[start:end]))
	}
	return chunks
}

// Detect sniffs the MIME type of a decoded payload.
func Detect(data []byte) string {
	return mimetype.Detect(data).String()
}

// TypeFor maps a MIME type to the client file type, or "" when it is not media.
func TypeFor(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return TypePhoto
	case strings.HasPrefix(mime, "video/"):
		return TypeVideo
	case strings.HasPrefix(mime, "audio/"):
		return TypeVoice
	default:
		return ""
	}
}
