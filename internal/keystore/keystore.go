package keystore

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"filippo.io/age"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/mrz1836/cadena/internal/fileutil"
	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

// ethCoinType is the SLIP-44 coin type for Ethereum.
const ethCoinType = 60

// MaterialKind identifies what a key file holds.
type MaterialKind string

// Key material kinds.
const (
	MaterialHexKey   MaterialKind = "hex"
	MaterialMnemonic MaterialKind = "mnemonic"
)

// DerivationPath returns the BIP44 path used for a mnemonic at index.
func DerivationPath(index uint32) string {
	return fmt.Sprintf("m/44'/%d'/0'/0/%d", ethCoinType, index)
}

// Encrypt encrypts plaintext using age with a password-based recipient.
func Encrypt(plaintext []byte, passphrase string) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}

	buf := &bytes.Buffer{}
	w, err := age.Encrypt(buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("initializing encryption: %w", err)
	}

	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing encrypted data: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}

	return buf.Bytes(), nil
}

// Decrypt decrypts age ciphertext into locked memory.
// The caller must Destroy the result.
func Decrypt(ciphertext []byte, passphrase string) (*SecureBytes, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, cadenaerr.WithCause(cadenaerr.ErrDecryptionFailed, err)
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, cadenaerr.WithCause(cadenaerr.ErrDecryptionFailed, err)
	}

	plaintext, err := io.ReadAll(r)
	defer Zero(plaintext)
	if err != nil {
		return nil, cadenaerr.WithCause(cadenaerr.ErrDecryptionFailed, err)
	}

	return NewSecureBytes(plaintext), nil
}

// ParseKey turns key material into a private key. Material is either a
// 32-byte hex private key (optional 0x prefix) or a BIP39 mnemonic, which is
// derived at DerivationPath(index).
func ParseKey(material []byte, index uint32) (*ecdsa.PrivateKey, MaterialKind, error) {
	trimmed := bytes.TrimSpace(material)
	if len(trimmed) == 0 {
		return nil, "", cadenaerr.ErrInvalidKey
	}

	if isHexKey(trimmed) {
		key, err := parseHexKey(trimmed)
		return key, MaterialHexKey, err
	}

	key, err := deriveFromMnemonic(normalizeMnemonic(string(trimmed)), index)
	return key, MaterialMnemonic, err
}

// Save validates material, encrypts it with passphrase and writes it to path
// with owner-only permissions. It returns the address the material resolves
// to at index.
func Save(path string, material []byte, passphrase string, index uint32) (common.Address, MaterialKind, error) {
	key, kind, err := ParseKey(material, index)
	if err != nil {
		return common.Address{}, "", err
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	ZeroKey(key)

	ciphertext, err := Encrypt(bytes.TrimSpace(material), passphrase)
	if err != nil {
		return common.Address{}, "", cadenaerr.Wrap(err, "encrypting key file")
	}

	if err := fileutil.WriteAtomic(path, ciphertext, 0o600); err != nil {
		return common.Address{}, "", fmt.Errorf("writing key file: %w", err)
	}

	return addr, kind, nil
}

// Load decrypts the key file at path and parses the key at index.
func Load(path, passphrase string, index uint32) (*ecdsa.PrivateKey, error) {
	ciphertext, err := os.ReadFile(path) //nolint:gosec // G304: key file path comes from configuration
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, cadenaerr.WithDetails(cadenaerr.ErrKeyFileNotFound, map[string]string{"path": path})
		}
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	plaintext, err := Decrypt(ciphertext, passphrase)
	if err != nil {
		return nil, err
	}
	defer plaintext.Destroy()

	key, _, err := ParseKey(plaintext.Bytes(), index)
	return key, err
}

func isHexKey(b []byte) bool {
	s := strings.TrimPrefix(strings.TrimPrefix(string(b), "0x"), "0X")
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if !isHexChar(c) {
			return false
		}
	}
	return true
}

func isHexChar(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func parseHexKey(b []byte) (*ecdsa.PrivateKey, error) {
	if bytes.HasPrefix(b, []byte("0x")) || bytes.HasPrefix(b, []byte("0X")) {
		b = b[2:]
	}

	raw := make([]byte, hex.DecodedLen(len(b)))
	defer Zero(raw)
	if _, err := hex.Decode(raw, b); err != nil {
		return nil, cadenaerr.WithCause(cadenaerr.ErrInvalidKey, err)
	}

	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, cadenaerr.WithCause(cadenaerr.ErrInvalidKey, err)
	}
	return key, nil
}

func normalizeMnemonic(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func deriveFromMnemonic(mnemonic string, index uint32) (*ecdsa.PrivateKey, error) {
	if index >= bip32.FirstHardenedChild {
		return nil, cadenaerr.WithDetails(cadenaerr.ErrInvalidKey, map[string]string{
			"derivation_index": fmt.Sprintf("%d", index),
		})
	}

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, cadenaerr.WithCause(cadenaerr.ErrInvalidKey, err)
	}
	defer Zero(seed)

	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, cadenaerr.WithCause(cadenaerr.ErrInvalidKey, err)
	}

	path := []uint32{
		bip32.FirstHardenedChild + 44,
		bip32.FirstHardenedChild + ethCoinType,
		bip32.FirstHardenedChild,
		0,
		index,
	}
	for _, child := range path {
		next, err := key.NewChildKey(child)
		Zero(key.Key)
		if err != nil {
			return nil, cadenaerr.WithCause(cadenaerr.ErrInvalidKey, err)
		}
		key = next
	}

	raw := leftPad32(key.Key)
	defer Zero(raw)
	Zero(key.Key)

	priv, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, cadenaerr.WithCause(cadenaerr.ErrInvalidKey, err)
	}
	return priv, nil
}

// leftPad32 copies b into a 32-byte big-endian buffer.
func leftPad32(b []byte) []byte {
	out := make([]byte, 32)
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(out[32-len(b):], b)
	return out
}

// ZeroKey clears the private scalar of key.
func ZeroKey(key *ecdsa.PrivateKey) {
	if key == nil || key.D == nil {
		return
	}
	key.D.SetInt64(0)
}
