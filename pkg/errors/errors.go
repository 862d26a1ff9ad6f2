// Package errors provides structured error handling for cadena.
// It defines sentinel errors, the failure-kind taxonomy surfaced to users,
// exit codes, and helpers for adding context, details, and suggestions.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess    = 0 // Successful execution
	ExitGeneral    = 1 // General/unknown error
	ExitInput      = 2 // Invalid input
	ExitAuth       = 3 // Rejected by the user or provider
	ExitNotFound   = 4 // Resource or provider not found
	ExitPermission = 5 // Rejected on-chain or insufficient funds
)

// Kind classifies a failure into the user-facing taxonomy recorded in the
// state cache and reported by the transaction coordinator.
type Kind string

// Failure kinds.
const (
	KindNone          Kind = ""
	KindNoProvider    Kind = "NoProvider"
	KindUserRejected  Kind = "UserRejected"
	KindInvalidInput  Kind = "InvalidInput"
	KindRPC           Kind = "RpcError"
	KindReverted      Kind = "Reverted"
	KindStaleIdentity Kind = "StaleIdentity"
	KindTimeout       Kind = "Timeout"
)

// String returns the kind name.
func (k Kind) String() string {
	return string(k)
}

// CadenaError is the structured error type for cadena.
type CadenaError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Kind       Kind              // Failure kind
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *CadenaError) Error() string {
	msg := e.Message

	// Include details in error message (sorted for deterministic output)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *CadenaError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for CadenaError.
func (e *CadenaError) Is(target error) bool {
	var t *CadenaError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &CadenaError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &CadenaError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		Kind:     KindInvalidInput,
		ExitCode: ExitInput,
	}

	ErrNotFound = &CadenaError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	// Provider errors.
	ErrNoProvider = &CadenaError{
		Code:       "NO_PROVIDER",
		Message:    "no wallet provider detected",
		Kind:       KindNoProvider,
		Suggestion: "configure provider.kind (bridge or local) in ~/.cadena/config.yaml",
		ExitCode:   ExitNotFound,
	}

	ErrUserRejected = &CadenaError{
		Code:     "USER_REJECTED",
		Message:  "request rejected by the user",
		Kind:     KindUserRejected,
		ExitCode: ExitAuth,
	}

	ErrNotConnected = &CadenaError{
		Code:       "NOT_CONNECTED",
		Message:    "no signing identity bound to the contract handle",
		Kind:       KindStaleIdentity,
		Suggestion: "run 'cadena connect' first",
		ExitCode:   ExitAuth,
	}

	ErrStaleIdentity = &CadenaError{
		Code:       "STALE_IDENTITY",
		Message:    "signing identity changed since the contract handle was built",
		Kind:       KindStaleIdentity,
		Suggestion: "reconnect and retry the request",
		ExitCode:   ExitAuth,
	}

	// Input errors.
	ErrInvalidAmount = &CadenaError{
		Code:     "INVALID_AMOUNT",
		Message:  "invalid amount format",
		Kind:     KindInvalidInput,
		ExitCode: ExitInput,
	}

	ErrMessageTooLong = &CadenaError{
		Code:     "MESSAGE_TOO_LONG",
		Message:  "message exceeds 32 bytes",
		Kind:     KindInvalidInput,
		ExitCode: ExitInput,
	}

	ErrInvalidMessage = &CadenaError{
		Code:     "INVALID_MESSAGE",
		Message:  "message is not a valid short string",
		Kind:     KindInvalidInput,
		ExitCode: ExitInput,
	}

	ErrInvalidAddress = &CadenaError{
		Code:     "INVALID_ADDRESS",
		Message:  "invalid address format",
		Kind:     KindInvalidInput,
		ExitCode: ExitInput,
	}

	// Network and chain errors.
	ErrRPC = &CadenaError{
		Code:     "RPC_ERROR",
		Message:  "provider request failed",
		Kind:     KindRPC,
		ExitCode: ExitGeneral,
	}

	ErrReverted = &CadenaError{
		Code:     "REVERTED",
		Message:  "transaction reverted",
		Kind:     KindReverted,
		ExitCode: ExitPermission,
	}

	ErrInsufficientFunds = &CadenaError{
		Code:     "INSUFFICIENT_FUNDS",
		Message:  "insufficient funds for transaction",
		Kind:     KindReverted,
		ExitCode: ExitPermission,
	}

	ErrTimeout = &CadenaError{
		Code:       "TIMEOUT",
		Message:    "timed out waiting for confirmation",
		Kind:       KindTimeout,
		Suggestion: "the transaction may still confirm; check it on a block explorer before retrying",
		ExitCode:   ExitGeneral,
	}

	// Contract descriptor errors.
	ErrInvalidABI = &CadenaError{
		Code:     "INVALID_ABI",
		Message:  "contract interface description is invalid",
		Kind:     KindInvalidInput,
		ExitCode: ExitInput,
	}

	// Config-specific errors.
	ErrConfigNotFound = &CadenaError{
		Code:     "CONFIG_NOT_FOUND",
		Message:  "configuration file not found",
		ExitCode: ExitNotFound,
	}

	ErrConfigInvalid = &CadenaError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration is invalid",
		Kind:     KindInvalidInput,
		ExitCode: ExitInput,
	}

	ErrUnknownConfigKey = &CadenaError{
		Code:     "UNKNOWN_CONFIG_KEY",
		Message:  "unknown config key",
		Kind:     KindInvalidInput,
		ExitCode: ExitInput,
	}

	// Key file errors.
	ErrKeyFileNotFound = &CadenaError{
		Code:       "KEY_FILE_NOT_FOUND",
		Message:    "key file not found",
		Kind:       KindNoProvider,
		Suggestion: "import a key with 'cadena key import'",
		ExitCode:   ExitNotFound,
	}

	ErrDecryptionFailed = &CadenaError{
		Code:     "DECRYPTION_FAILED",
		Message:  "decryption failed - wrong passphrase or corrupted file",
		Kind:     KindUserRejected,
		ExitCode: ExitAuth,
	}

	ErrInvalidKey = &CadenaError{
		Code:     "INVALID_KEY",
		Message:  "key material is neither a hex private key nor a valid mnemonic",
		Kind:     KindInvalidInput,
		ExitCode: ExitInput,
	}
)

// New creates a new CadenaError with the given code and message.
func New(code, message string) *CadenaError {
	return &CadenaError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// WithCause returns a copy of a sentinel error carrying cause as its
// underlying error. Non-CadenaError sentinels are wrapped with fmt.
func WithCause(sentinel, cause error) error {
	if sentinel == nil {
		return cause
	}

	var se *CadenaError
	if errors.As(sentinel, &se) {
		return &CadenaError{
			Code:       se.Code,
			Message:    se.Message,
			Kind:       se.Kind,
			Details:    se.Details,
			Suggestion: se.Suggestion,
			Cause:      cause,
			ExitCode:   se.ExitCode,
		}
	}

	return fmt.Errorf("%w: %w", sentinel, cause)
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var se *CadenaError
	if errors.As(err, &se) {
		return &CadenaError{
			Code:       se.Code,
			Message:    fmt.Sprintf("%s: %s", msg, se.Message),
			Kind:       se.Kind,
			Details:    se.Details,
			Suggestion: se.Suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &CadenaError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var se *CadenaError
	if errors.As(err, &se) {
		return &CadenaError{
			Code:       se.Code,
			Message:    se.Message,
			Kind:       se.Kind,
			Details:    details,
			Suggestion: se.Suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &CadenaError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var se *CadenaError
	if errors.As(err, &se) {
		return &CadenaError{
			Code:       se.Code,
			Message:    se.Message,
			Kind:       se.Kind,
			Details:    se.Details,
			Suggestion: suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &CadenaError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// KindOf classifies err into the failure taxonomy.
// Coded errors carry their own kind; deadline expiry is a Timeout; any other
// non-nil error is treated as an RPC failure.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var se *CadenaError
	if errors.As(err, &se) && se.Kind != KindNone {
		return se.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	return KindRPC
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var se *CadenaError
	if errors.As(err, &se) {
		return se.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var se *CadenaError
	if errors.As(err, &se) {
		return se.Code
	}
	return "GENERAL_ERROR"
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
