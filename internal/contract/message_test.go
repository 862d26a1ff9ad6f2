package contract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

func TestMessage_RoundTrip(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"",
		"hello",
		"gm frens",
		strings.Repeat("a", 32),
		"héllo wörld",
		"日本語のメッセージ",
		"emoji 🚀🚀",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			msg, err := ParseMessage(in)
			require.NoError(t, err)

			encoded := msg.Bytes32()
			decoded, err := DecodeMessage(encoded)
			require.NoError(t, err)
			assert.Equal(t, in, decoded.String())
			assert.Equal(t, encoded, decoded.Bytes32())
		})
	}
}

func TestMessage_Padding(t *testing.T) {
	t.Parallel()

	msg, err := ParseMessage("hi")
	require.NoError(t, err)

	raw := msg.Bytes32()
	assert.Equal(t, byte('h'), raw[0])
	assert.Equal(t, byte('i'), raw[1])
	for i := 2; i < MessageSize; i++ {
		assert.Zero(t, raw[i])
	}
}

func TestParseMessage_Invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		sentinel error
	}{
		{"33 bytes", strings.Repeat("a", 33), cadenaerr.ErrMessageTooLong},
		{"multibyte over limit", strings.Repeat("é", 17), cadenaerr.ErrMessageTooLong},
		{"invalid utf8", "ab\xffcd", cadenaerr.ErrInvalidMessage},
		{"embedded nul", "ab\x00cd", cadenaerr.ErrInvalidMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseMessage(tt.input)
			require.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, cadenaerr.KindInvalidInput, cadenaerr.KindOf(err))
		})
	}
}

func TestDecodeMessage(t *testing.T) {
	t.Parallel()

	var raw [MessageSize]byte
	copy(raw[:], "abc\x00junk")
	msg, err := DecodeMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "abc", msg.String())

	empty, err := DecodeMessage([MessageSize]byte{})
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	var bad [MessageSize]byte
	copy(bad[:], "\xff\xfe")
	_, err = DecodeMessage(bad)
	require.ErrorIs(t, err, cadenaerr.ErrRPC)
}

func TestMessage_MarshalText(t *testing.T) {
	t.Parallel()

	msg, err := ParseMessage("gm")
	require.NoError(t, err)
	text, err := msg.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "gm", string(text))
}
