package cli

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mrz1836/cadena/internal/version"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
var (
	// versionCheck looks up the latest release.
	versionCheck bool
	// versionCheckerOpts configures the release checker; tests point it at
	// a local server.
	versionCheckerOpts []version.Option
)

// versionCmd prints build information.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Print the version, commit and build date of this binary.

With --check the latest published release is looked up and compared.`,
	Example: `  cadena version
  cadena version --check -o json`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipValidation: "true"},
	RunE:        runVersion,
}

// versionResult is the output of the version command.
type versionResult struct {
	Version         string `json:"version"`
	Commit          string `json:"commit"`
	Date            string `json:"date"`
	Latest          string `json:"latest,omitempty"`
	ReleaseURL      string `json:"release_url,omitempty"`
	UpdateAvailable bool   `json:"update_available"`
}

// RenderText implements output.TextRenderer.
func (v versionResult) RenderText(w io.Writer) error {
	out(w, "cadena %s\n", version.Build{Version: v.Version, Commit: v.Commit, Date: v.Date})
	switch {
	case v.Latest == "":
	case v.UpdateAvailable:
		out(w, "A newer release is available: %s\n", v.Latest)
		if v.ReleaseURL != "" {
			out(w, "  %s\n", v.ReleaseURL)
		}
	default:
		outln(w, "You are running the latest release.")
	}
	return nil
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	versionCmd.GroupID = groupConfig
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "check GitHub for a newer release")
}

func runVersion(cmd *cobra.Command, _ []string) error {
	res := versionResult{Version: build.Version, Commit: build.Commit, Date: build.Date}
	if res.Version == "" {
		res.Version = "dev"
	}

	if versionCheck {
		ctx, cancel := commandDeadline(cmd, version.DefaultTimeout)
		defer cancel()

		rel, err := version.NewChecker(res.Version, versionCheckerOpts...).Latest(ctx)
		if err != nil {
			logger.Debug("release check failed", zap.Error(err))
			return err
		}
		res.Latest = rel.TagName
		res.ReleaseURL = rel.HTMLURL
		res.UpdateAvailable = version.IsNewer(res.Version, rel.TagName)
	}

	return formatter.Print(res)
}
