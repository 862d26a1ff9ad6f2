package cli

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/mrz1836/cadena/internal/keystore"
	"github.com/mrz1836/cadena/internal/output"
	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// keyIndex is the mnemonic derivation index.
	keyIndex uint32
	// keyForce overwrites an existing key file.
	keyForce bool
)

// keyCmd is the parent command for the local signing key.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the local signing key",
	Long: `Manage the encrypted key file used when provider.kind is "local".

The file holds either a hex private key or a BIP39 mnemonic, encrypted
with a passphrase. Mnemonics are derived at m/44'/60'/0'/0/<index>.`,
}

// keyImportCmd encrypts key material into the key file.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a private key or mnemonic",
	Long: `Read a hex private key or a BIP39 mnemonic from the terminal, encrypt
it with a new passphrase and write it to the key file.

An existing key file is only replaced with --force.`,
	Example: `  cadena key import
  cadena key import --index 2
  cadena key import --force`,
	Args: cobra.NoArgs,
	RunE: runKeyImport,
}

// keyAddressCmd shows the account of the key file.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var keyAddressCmd = &cobra.Command{
	Use:   "address",
	Short: "Show the account of the key file",
	Long:  `Decrypt the key file and print the account it signs for.`,
	Example: `  cadena key address
  cadena key address --index 1`,
	Args: cobra.NoArgs,
	RunE: runKeyAddress,
}

// keyResult describes a key file.
type keyResult struct {
	Address string `json:"address"`
	Kind    string `json:"kind,omitempty"`
	Index   uint32 `json:"index"`
	Path    string `json:"path"`
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	keyCmd.GroupID = groupKeys
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keyImportCmd, keyAddressCmd)

	for _, c := range []*cobra.Command{keyImportCmd, keyAddressCmd} {
		c.Flags().Uint32Var(&keyIndex, "index", 0, "mnemonic derivation index (default: provider.derivation_index)")
	}
	keyImportCmd.Flags().BoolVar(&keyForce, "force", false, "overwrite an existing key file")
}

// derivationIndex returns --index when given, else the configured index.
func derivationIndex(cmd *cobra.Command) uint32 {
	if cmd.Flags().Changed("index") {
		return keyIndex
	}
	return cfg.Provider.DerivationIndex
}

func runKeyImport(cmd *cobra.Command, _ []string) error {
	path := cfg.KeyFilePath()
	if _, err := os.Stat(path); err == nil && !keyForce {
		return cadenaerr.WithSuggestion(
			cadenaerr.ErrInvalidInput,
			fmt.Sprintf("key file already exists at %s; use --force to replace it", path),
		)
	}

	material, err := promptKeyMaterialFn()
	if err != nil {
		return err
	}
	defer keystore.Zero(material)

	index := derivationIndex(cmd)
	key, _, err := keystore.ParseKey(material, index)
	if err != nil {
		return err
	}
	keystore.ZeroKey(key)

	passphrase, err := promptNewPasswordFn()
	if err != nil {
		return err
	}
	defer keystore.Zero(passphrase)

	addr, kind, err := keystore.Save(path, material, string(passphrase), index)
	if err != nil {
		return err
	}

	if index != cfg.Provider.DerivationIndex {
		output.Warnf(stderr, "run 'cadena config set provider.derivation_index %d' to sign with this account", index)
	}

	res := keyResult{Address: addr.Hex(), Kind: string(kind), Index: index, Path: path}
	if formatter.IsJSON() {
		return formatter.Print(res)
	}
	output.Successf(formatter.Writer(), "Imported %s key for %s", res.Kind, res.Address)
	return formatter.Printf("Key file: %s\n", res.Path)
}

func runKeyAddress(cmd *cobra.Command, _ []string) error {
	path := cfg.KeyFilePath()
	if _, err := os.Stat(path); err != nil {
		return cadenaerr.WithDetails(cadenaerr.ErrKeyFileNotFound, map[string]string{"path": path})
	}

	passphrase, err := promptPasswordFn("Key file passphrase: ")
	if err != nil {
		return err
	}
	defer keystore.Zero(passphrase)

	index := derivationIndex(cmd)
	key, err := keystore.Load(path, string(passphrase), index)
	if err != nil {
		return err
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	keystore.ZeroKey(key)

	res := keyResult{Address: addr.Hex(), Index: index, Path: path}
	if formatter.IsJSON() {
		return formatter.Print(res)
	}
	outln(cmd.OutOrStdout(), res.Address)
	return nil
}
