package contract

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

// MessageSize is the on-chain width of the public message.
const MessageSize = 32

// Message is the contract's public short message: valid UTF-8, at most
// MessageSize bytes, without NUL bytes. The zero value is the empty message.
type Message struct {
	text string
}

// ParseMessage validates user input as a Message.
func ParseMessage(s string) (Message, error) {
	if len(s) > MessageSize {
		return Message{}, cadenaerr.WithDetails(cadenaerr.ErrMessageTooLong, map[string]string{
			"bytes": fmt.Sprintf("%d", len(s)),
			"max":   fmt.Sprintf("%d", MessageSize),
		})
	}
	if !utf8.ValidString(s) {
		return Message{}, cadenaerr.WithDetails(cadenaerr.ErrInvalidMessage, map[string]string{"reason": "not valid UTF-8"})
	}
	if strings.IndexByte(s, 0) >= 0 {
		return Message{}, cadenaerr.WithDetails(cadenaerr.ErrInvalidMessage, map[string]string{"reason": "contains a NUL byte"})
	}
	return Message{text: s}, nil
}

// DecodeMessage reads the contract's bytes32 value, cutting at the first NUL.
// Malformed on-chain data is reported as an RPC failure.
func DecodeMessage(raw [MessageSize]byte) (Message, error) {
	b := raw[:]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	if !utf8.Valid(b) {
		return Message{}, cadenaerr.WithCause(cadenaerr.ErrRPC, fmt.Errorf("on-chain message is not valid UTF-8: %x", raw))
	}
	return Message{text: string(b)}, nil
}

// Bytes32 encodes the message right-padded with zeros.
func (m Message) Bytes32() [MessageSize]byte {
	var out [MessageSize]byte
	copy(out[:], m.text)
	return out
}

// String returns the message text.
func (m Message) String() string {
	return m.text
}

// IsEmpty reports whether the message has no text.
func (m Message) IsEmpty() bool {
	return m.text == ""
}

// MarshalText implements encoding.TextMarshaler.
func (m Message) MarshalText() ([]byte, error) {
	return []byte(m.text), nil
}
