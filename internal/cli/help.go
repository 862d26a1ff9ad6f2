package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/cadena/internal/output"
	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

// exitCodes documents the process exit status for root help.
//
//nolint:gochecknoglobals // fixed help text
var exitCodes = []struct {
	code int
	desc string
}{
	{cadenaerr.ExitSuccess, "success"},
	{cadenaerr.ExitGeneral, "unexpected or RPC failure"},
	{cadenaerr.ExitInput, "invalid amount, address, message or flag"},
	{cadenaerr.ExitAuth, "request rejected by the user or provider"},
	{cadenaerr.ExitNotFound, "no provider, key file or saved state"},
	{cadenaerr.ExitPermission, "transaction reverted or insufficient funds"},
}

// walkCommands visits cmd and its subcommands, parents first.
func walkCommands(cmd *cobra.Command, fn func(*cobra.Command)) {
	fn(cmd)
	for _, sub := range cmd.Commands() {
		walkCommands(sub, fn)
	}
}

// indentedTable renders t with every line indented by two spaces.
func indentedTable(t *output.Table) string {
	var sb strings.Builder
	for _, line := range strings.Split(strings.TrimRight(t.String(), "\n"), "\n") {
		sb.WriteString("  ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// listSubcommands appends the visible subcommands of a parent (other than
// root, whose help already groups them) to its Long text.
func listSubcommands(cmd *cobra.Command) {
	if !cmd.HasSubCommands() || !cmd.HasParent() {
		return
	}

	t := output.NewTable()
	t.SetNoHeader(true)
	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() {
			t.AddRow(sub.Name(), sub.Short)
		}
	}

	cmd.Long = fmt.Sprintf("%s\n\nSubcommands:\n%s\nRun '%s <subcommand> --help' for details.",
		cmd.Long, indentedTable(t), cmd.CommandPath())
}

// appendExitCodes lists the exit codes in cmd's Long text.
func appendExitCodes(cmd *cobra.Command) {
	t := output.NewTable()
	t.SetNoHeader(true)
	for _, e := range exitCodes {
		t.AddRow(fmt.Sprint(e.code), e.desc)
	}
	cmd.Long = fmt.Sprintf("%s\n\nExit codes:\n%s", cmd.Long, strings.TrimRight(indentedTable(t), "\n"))
}
