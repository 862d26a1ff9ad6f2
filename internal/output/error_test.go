package output_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cadena/internal/output"
	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

var errSocket = errors.New("dial tcp 127.0.0.1:8545: connection refused")

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("write failed") //nolint:err113 // test error
}

func TestFormatError_Nil(t *testing.T) {
	t.Parallel()
	for _, format := range []output.Format{output.FormatJSON, output.FormatText} {
		var buf bytes.Buffer
		require.NoError(t, output.FormatError(&buf, nil, format))
		assert.Empty(t, buf.String())
	}
}

func TestFormatError_JSON(t *testing.T) {
	t.Parallel()

	err := cadenaerr.WithDetails(cadenaerr.WithCause(cadenaerr.ErrRPC, errSocket), map[string]string{
		"method": "eth_call",
	})
	err = cadenaerr.WithSuggestion(err, "check provider.rpc")

	var buf bytes.Buffer
	require.NoError(t, output.FormatError(&buf, err, output.FormatJSON))

	var result output.ErrorOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.Equal(t, "RPC_ERROR", result.Error.Code)
	assert.Equal(t, "RpcError", result.Error.Kind)
	assert.Equal(t, "provider request failed", result.Error.Message)
	assert.Equal(t, errSocket.Error(), result.Error.Cause)
	assert.Equal(t, "eth_call", result.Error.Details["method"])
	assert.Equal(t, "check provider.rpc", result.Error.Suggestion)
	assert.Equal(t, cadenaerr.ExitGeneral, result.Error.ExitCode)
	assert.True(t, strings.HasPrefix(buf.String(), "{\n  \"error\""), "indented JSON")
}

func TestFormatError_Text(t *testing.T) {
	t.Parallel()

	err := cadenaerr.WithDetails(cadenaerr.ErrTimeout, map[string]string{
		"tx_hash": "0xabc",
		"block":   "12",
	})

	var buf bytes.Buffer
	require.NoError(t, output.FormatError(&buf, err, output.FormatText))

	result := buf.String()
	assert.Contains(t, result, "Error: timed out waiting for confirmation")
	assert.Less(t, strings.Index(result, "block: 12"), strings.Index(result, "tx_hash: 0xabc"), "details are sorted")
	assert.Contains(t, result, "Suggestion: the transaction may still confirm")
	assert.NotContains(t, result, "Cause:")
}

func TestFormatError_GenericError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, output.FormatError(&buf, errSocket, output.FormatJSON))

	var result output.ErrorOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.Equal(t, "GENERAL_ERROR", result.Error.Code)
	assert.Equal(t, "RpcError", result.Error.Kind)
	assert.Equal(t, errSocket.Error(), result.Error.Message)

	buf.Reset()
	require.NoError(t, output.FormatError(&buf, errSocket, output.FormatText))
	assert.Equal(t, "Error: "+errSocket.Error()+"\n", buf.String())
}

func TestFormatError_WriterError(t *testing.T) {
	t.Parallel()
	require.Error(t, output.FormatError(failingWriter{}, cadenaerr.ErrNoProvider, output.FormatText))
	require.Error(t, output.FormatSuccess(failingWriter{}, "done", output.FormatText))
}

func TestFormatSuccess(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, output.FormatSuccess(&buf, "Key saved", output.FormatJSON))

	var result map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.Equal(t, "success", result["status"])
	assert.Equal(t, "Key saved", result["message"])

	buf.Reset()
	require.NoError(t, output.FormatSuccess(&buf, "Key saved", output.FormatText))
	assert.Equal(t, "Key saved\n", buf.String())
}

func TestMessages(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	output.Infof(&buf, "using %s", "bridge")
	output.Warnf(&buf, "insecure %s", "rpc")
	output.Successf(&buf, "confirmed in block %d", 7)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "using bridge")
	assert.Contains(t, lines[1], "insecure rpc")
	assert.Contains(t, lines[2], "confirmed in block 7")
}
