package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cadena/internal/config"
)

// TestCompletion_Command tests the completion command for each shell.
func TestCompletion_Command(t *testing.T) {
	tests := []struct {
		shell  string
		marker string
	}{
		{"bash", "bash completion"},
		{"zsh", "#compdef cadena"},
		{"fish", "complete -c cadena"},
		{"powershell", "Register-ArgumentCompleter"},
	}

	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			out, _, err := executeCommand(t, "--home", t.TempDir(), "completion", tt.shell)
			require.NoError(t, err, "completion generation should succeed for %s", tt.shell)
			assert.Contains(t, out, tt.marker)
		})
	}
}

// TestCompletion_RejectsUnknownShell tests argument validation.
func TestCompletion_RejectsUnknownShell(t *testing.T) {
	_, _, err := executeCommand(t, "--home", t.TempDir(), "completion", "tcsh")
	require.Error(t, err)
}

// TestCompletion_Bash tests bash completion script generation from the root.
func TestCompletion_Bash(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, rootCmd.GenBashCompletion(&buf))
	assert.Contains(t, buf.String(), "cadena")
}

// TestCompleteConfigKeys tests key completion for config get and set.
func TestCompleteConfigKeys(t *testing.T) {
	keys, directive := completeConfigKeys(configGetCmd, nil, "")
	assert.Equal(t, config.Keys(), keys)
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)

	keys, _ = completeConfigKeys(configSetCmd, []string{"provider.kind"}, "")
	assert.Empty(t, keys, "values are not completed")
}
