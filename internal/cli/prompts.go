package cli

import (
	"bytes"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/mrz1836/cadena/internal/keystore"
	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

const minPassphraseLen = 8

// Prompt hooks, replaced in tests.
//
//nolint:gochecknoglobals // swapped by tests to avoid a terminal
var (
	promptPasswordFn    = promptPassword
	promptNewPasswordFn = promptNewPassword
	promptKeyMaterialFn = promptKeyMaterial
)

// promptPassword prompts for a secret with hidden input.
// The caller is responsible for zeroing the returned bytes after use.
func promptPassword(prompt string) ([]byte, error) {
	out(stderr, "%s", prompt)

	secret, err := term.ReadPassword(int(os.Stdin.Fd())) //nolint:gosec // fd fits in int
	outln(stderr)

	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return secret, nil
}

// promptNewPassword prompts for a new key file passphrase with confirmation.
// The caller is responsible for zeroing the returned bytes after use.
func promptNewPassword() ([]byte, error) {
	passphrase, err := promptPasswordFn("Enter key file passphrase: ")
	if err != nil {
		return nil, err
	}

	if len(passphrase) < minPassphraseLen {
		keystore.Zero(passphrase)
		return nil, cadenaerr.WithSuggestion(
			cadenaerr.ErrInvalidInput,
			fmt.Sprintf("passphrase must be at least %d characters", minPassphraseLen),
		)
	}

	confirm, err := promptPasswordFn("Confirm passphrase: ")
	if err != nil {
		keystore.Zero(passphrase)
		return nil, err
	}
	defer keystore.Zero(confirm)

	if !bytes.Equal(passphrase, confirm) {
		keystore.Zero(passphrase)
		return nil, cadenaerr.WithSuggestion(cadenaerr.ErrInvalidInput, "passphrases do not match")
	}

	return passphrase, nil
}

// promptKeyMaterial reads a hex private key or mnemonic without echo.
func promptKeyMaterial() ([]byte, error) {
	outln(stderr, "Enter a hex private key or a BIP39 mnemonic (input is hidden):")
	material, err := promptPasswordFn("> ")
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(material)) == 0 {
		keystore.Zero(material)
		return nil, cadenaerr.WithSuggestion(cadenaerr.ErrInvalidKey, "no input provided")
	}
	return material, nil
}
