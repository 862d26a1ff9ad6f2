package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

const (
	testHexKey     = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testPassphrase = "correct horse battery"
)

func testKeyAddress(t *testing.T) string {
	t.Helper()
	key, err := crypto.HexToECDSA(testHexKey)
	require.NoError(t, err)
	return crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func TestKeyImport(t *testing.T) {
	env := newCLIEnv(t)
	stubPrompts(t, testHexKey, testPassphrase)

	out := env.runJSON(t, "key", "import")
	assert.Equal(t, testKeyAddress(t), out["address"])
	assert.Equal(t, "hex", out["kind"])
	assert.Equal(t, filepath.Join(env.home, "key.age"), out["path"])

	info, err := os.Stat(filepath.Join(env.home, "key.age"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out = env.runJSON(t, "key", "address")
	assert.Equal(t, testKeyAddress(t), out["address"])
}

func TestKeyImport_RefusesOverwrite(t *testing.T) {
	env := newCLIEnv(t)
	stubPrompts(t, testHexKey, testPassphrase)
	env.runJSON(t, "key", "import")

	_, _, err := env.run(t, "-o", "json", "key", "import")
	require.ErrorIs(t, err, cadenaerr.ErrInvalidInput)

	env.runJSON(t, "key", "import", "--force")
}

func TestKeyImport_InvalidMaterial(t *testing.T) {
	env := newCLIEnv(t)
	stubPrompts(t, "not a key", testPassphrase)

	_, _, err := env.run(t, "-o", "json", "key", "import")
	require.ErrorIs(t, err, cadenaerr.ErrInvalidKey)

	_, statErr := os.Stat(filepath.Join(env.home, "key.age"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestKeyAddress_WrongPassphrase(t *testing.T) {
	env := newCLIEnv(t)
	stubPrompts(t, testHexKey, testPassphrase)
	env.runJSON(t, "key", "import")

	stubPrompts(t, testHexKey, "not the passphrase")
	_, _, err := env.run(t, "-o", "json", "key", "address")
	require.ErrorIs(t, err, cadenaerr.ErrDecryptionFailed)
}

func TestKeyAddress_MissingFile(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run(t, "-o", "json", "key", "address")
	require.ErrorIs(t, err, cadenaerr.ErrKeyFileNotFound)
}
