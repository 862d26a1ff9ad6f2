// Package contract binds the shared wallet contract: its address and ABI,
// the codecs for its short message, and a Handle that reads state and
// submits deposit, withdraw and setMessage calls through the connected
// provider.
package contract

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

// DefaultAddress is the deployed shared wallet contract.
const DefaultAddress = "0xd11A60B57ebA495A5a639514eAe368ba98d90277"

// Contract method names.
const (
	MethodBalance    = "balance"
	MethodMessage    = "message"
	MethodDeposit    = "deposit"
	MethodWithdraw   = "withdraw"
	MethodSetMessage = "setMessage"
)

//go:embed abi/SharedWallet.json
var sharedWalletABI []byte

// methodShape is what cadena needs from each contract method.
type methodShape struct {
	sig      string
	outputs  []string
	readOnly bool
	payable  bool
}

//nolint:gochecknoglobals // Fixed contract interface
var requiredMethods = map[string]methodShape{
	MethodBalance:    {sig: "balance()", outputs: []string{"uint256"}, readOnly: true},
	MethodMessage:    {sig: "message()", outputs: []string{"bytes32"}, readOnly: true},
	MethodDeposit:    {sig: "deposit()", payable: true},
	MethodWithdraw:   {sig: "withdraw(address,uint256)"},
	MethodSetMessage: {sig: "setMessage(bytes32)"},
}

// Descriptor identifies the contract: where it lives and how to call it.
// It is immutable once loaded.
type Descriptor struct {
	Address common.Address
	ABI     abi.ABI
}

// DefaultDescriptor returns the deployed contract with the embedded ABI.
func DefaultDescriptor() (*Descriptor, error) {
	return LoadDescriptor(DefaultAddress, sharedWalletABI)
}

// LoadDescriptorFile loads a descriptor with the ABI read from path.
// An empty path uses the embedded ABI.
func LoadDescriptorFile(address, path string) (*Descriptor, error) {
	if path == "" {
		return LoadDescriptor(address, sharedWalletABI)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: ABI path comes from configuration
	if err != nil {
		return nil, cadenaerr.WithCause(cadenaerr.ErrInvalidABI, fmt.Errorf("reading %s: %w", path, err))
	}
	return LoadDescriptor(address, data)
}

// LoadDescriptor parses abiJSON, either a bare ABI array or a compiler
// artifact with an "abi" field, and checks that it exposes the shared wallet
// interface.
func LoadDescriptor(address string, abiJSON []byte) (*Descriptor, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	raw, err := extractABI(abiJSON)
	if err != nil {
		return nil, err
	}

	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return nil, cadenaerr.WithCause(cadenaerr.ErrInvalidABI, err)
	}

	if err := validateABI(parsed); err != nil {
		return nil, err
	}

	return &Descriptor{Address: addr, ABI: parsed}, nil
}

// ParseAddress parses a hex contract or account address. The zero address
// is rejected.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, cadenaerr.WithDetails(cadenaerr.ErrInvalidAddress, map[string]string{"address": s})
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, cadenaerr.WithDetails(cadenaerr.ErrInvalidAddress, map[string]string{
			"address": s,
			"reason":  "zero address",
		})
	}
	return addr, nil
}

func extractABI(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, cadenaerr.WithDetails(cadenaerr.ErrInvalidABI, map[string]string{"reason": "empty"})
	}
	if trimmed[0] != '{' {
		return trimmed, nil
	}

	var artifact struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(trimmed, &artifact); err != nil {
		return nil, cadenaerr.WithCause(cadenaerr.ErrInvalidABI, err)
	}
	if len(artifact.ABI) == 0 {
		return nil, cadenaerr.WithDetails(cadenaerr.ErrInvalidABI, map[string]string{"reason": "artifact has no abi field"})
	}
	return artifact.ABI, nil
}

func validateABI(parsed abi.ABI) error {
	for name, want := range requiredMethods {
		method, ok := parsed.Methods[name]
		if !ok {
			return cadenaerr.WithDetails(cadenaerr.ErrInvalidABI, map[string]string{"missing": want.sig})
		}
		if method.Sig != want.sig {
			return cadenaerr.WithDetails(cadenaerr.ErrInvalidABI, map[string]string{
				"method":   name,
				"expected": want.sig,
				"found":    method.Sig,
			})
		}
		if method.IsConstant() != want.readOnly || method.IsPayable() != want.payable {
			return cadenaerr.WithDetails(cadenaerr.ErrInvalidABI, map[string]string{
				"method":     name,
				"mutability": method.StateMutability,
			})
		}
		if len(method.Outputs) != len(want.outputs) {
			return cadenaerr.WithDetails(cadenaerr.ErrInvalidABI, map[string]string{
				"method": name,
				"reason": "unexpected outputs",
			})
		}
		for i, out := range method.Outputs {
			if out.Type.String() != want.outputs[i] {
				return cadenaerr.WithDetails(cadenaerr.ErrInvalidABI, map[string]string{
					"method": name,
					"output": out.Type.String(),
				})
			}
		}
	}
	return nil
}
