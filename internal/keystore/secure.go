// Package keystore holds cadena's local signing key material: an
// age-encrypted key file containing either a hex private key or a BIP39
// mnemonic, decrypted into locked memory only while a key is parsed.
package keystore

import (
	"runtime"
	"sync"
)

// SecureBytes wraps sensitive bytes in locked memory that is zeroed on Destroy.
type SecureBytes struct {
	data   []byte
	locked bool
	mu     sync.Mutex
}

// NewSecureBytes copies data into a freshly allocated, locked buffer.
// Locking is best effort; IsLocked reports whether it succeeded.
func NewSecureBytes(data []byte) *SecureBytes {
	buf := make([]byte, len(data))
	copy(buf, data)

	sb := &SecureBytes{data: buf}
	sb.locked = mlock(buf)

	runtime.SetFinalizer(sb, func(s *SecureBytes) {
		s.Destroy()
	})

	return sb
}

// Bytes returns the underlying slice, or nil once destroyed.
func (s *SecureBytes) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// IsLocked reports whether the buffer is mlocked.
func (s *SecureBytes) IsLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Destroy zeros and unlocks the buffer. Safe to call multiple times.
func (s *SecureBytes) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return
	}

	Zero(s.data)
	if s.locked {
		munlock(s.data)
		s.locked = false
	}
	s.data = nil

	runtime.SetFinalizer(s, nil)
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
