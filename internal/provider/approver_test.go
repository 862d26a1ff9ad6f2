package provider

import (
	"bytes"
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalApprover_Answers(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  yes  \n", true},
		{"n\n", false},
		{"\n", false},
		{"sure\n", false},
		{"", false},
		{"y", true},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			a := NewTerminalApprover(strings.NewReader(tt.input), &out)

			got, err := a.ApproveConnect(context.Background(), alice)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), alice.Hex())
		})
	}
}

func TestTerminalApprover_ReadsSuccessiveAnswers(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	a := NewTerminalApprover(strings.NewReader("y\nn\n"), &out)

	ok, err := a.ApproveConnect(context.Background(), alice)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.ApproveTransaction(context.Background(), TxSummary{
		ChainID:  big.NewInt(1),
		From:     alice,
		To:       walletAddr,
		Value:    big.NewInt(1_500_000_000_000_000_000),
		Data:     []byte{0xd0, 0xe3, 0x0d, 0xb0},
		Gas:      45_000,
		GasPrice: big.NewInt(2_000_000_000),
	})
	require.NoError(t, err)
	assert.False(t, ok)

	prompt := out.String()
	assert.Contains(t, prompt, "Value:     1.5")
	assert.Contains(t, prompt, "Gas limit: 45000")
	assert.Contains(t, prompt, walletAddr.Hex())
}

func TestTerminalApprover_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewTerminalApprover(strings.NewReader("y\n"), &bytes.Buffer{})
	_, err := a.ApproveConnect(ctx, alice)
	require.ErrorIs(t, err, context.Canceled)
}

func TestAutoApprove(t *testing.T) {
	t.Parallel()

	ok, err := AutoApprove{}.ApproveConnect(context.Background(), alice)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = AutoApprove{}.ApproveTransaction(context.Background(), TxSummary{})
	require.NoError(t, err)
	assert.True(t, ok)
}
