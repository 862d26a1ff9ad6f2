package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cadena/internal/config"
	"github.com/mrz1836/cadena/internal/contract/contracttest"
	"github.com/mrz1836/cadena/internal/provider"
	"github.com/mrz1836/cadena/internal/version"
)

// testAccount is the account the in-memory chain exposes.
var testAccount = common.HexToAddress("0x00000000000000000000000000000000000a11ce") //nolint:gochecknoglobals // test fixture

// cliEnv runs commands against an in-memory contract in a temporary home.
type cliEnv struct {
	home    string
	chain   *contracttest.Chain
	offline bool // no provider configured
}

// newCLIEnv writes a config with fast polling and routes the provider to
// an in-memory chain.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	env := &cliEnv{
		home:  t.TempDir(),
		chain: contracttest.New(testAccount),
	}

	c := config.Defaults()
	c.Home = env.home
	c.Transactions.PollInterval = 10 * time.Millisecond
	c.Transactions.ConfirmTimeout = 5 * time.Second
	require.NoError(t, config.Save(c, config.Path(env.home)))

	prev := dialCapabilityFn
	dialCapabilityFn = func(context.Context, *CommandContext, provider.Approver) (provider.Capability, error) {
		if env.offline {
			return nil, nil
		}
		return env.chain, nil
	}
	t.Cleanup(func() { dialCapabilityFn = prev })

	return env
}

// run executes cadena with --home set to the environment's home.
func (e *cliEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return executeCommand(t, append([]string{"--home", e.home}, args...)...)
}

// runJSON executes a command with -o json and decodes stdout.
func (e *cliEnv) runJSON(t *testing.T, args ...string) map[string]any {
	t.Helper()
	stdout, stderrOut, err := e.run(t, append([]string{"-o", "json"}, args...)...)
	require.NoError(t, err, "stderr: %s", stderrOut)
	return decodeJSON(t, stdout)
}

// executeCommand runs the root command with args and captures output.
// Flags are reset first since commands are package-level.
func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	resetFlags()

	var stdout, errOut bytes.Buffer
	prevStderr := stderr
	stderr = &errOut
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		stderr = prevStderr
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := Execute(version.Build{Version: "v1.2.0", Commit: "abc1234", Date: "2026-01-02"})
	return stdout.String(), errOut.String(), err
}

// resetFlags restores every flag to its default value.
func resetFlags() {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	walkCommands(rootCmd, func(cmd *cobra.Command) {
		cmd.Flags().VisitAll(reset)
		cmd.PersistentFlags().VisitAll(reset)
	})
}

// stubPrompts replaces the terminal prompts with fixed answers.
func stubPrompts(t *testing.T, material, passphrase string) {
	t.Helper()

	prevPassword, prevNew, prevMaterial := promptPasswordFn, promptNewPasswordFn, promptKeyMaterialFn
	promptPasswordFn = func(string) ([]byte, error) { return []byte(passphrase), nil }
	promptNewPasswordFn = func() ([]byte, error) { return []byte(passphrase), nil }
	promptKeyMaterialFn = func() ([]byte, error) { return []byte(material), nil }
	t.Cleanup(func() {
		promptPasswordFn, promptNewPasswordFn, promptKeyMaterialFn = prevPassword, prevNew, prevMaterial
	})
}

func decodeJSON(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m), "output: %s", s)
	return m
}
