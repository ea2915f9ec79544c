// Package secure keeps resolved secret values encrypted in memory between
// resolution and process launch.
package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// SecureBuffer wraps a memguard.Enclave so a secret value sits encrypted
// at rest and, where the platform allows it, mlocked out of swap. The
// plaintext only exists while a caller holds an opened buffer.
type SecureBuffer struct {
	enclave   *memguard.Enclave
	mu        sync.RWMutex
	destroyed bool
}

// NewSecureBuffer copies data into a protected enclave. The caller keeps
// ownership of the input slice and should zero it. Empty values carry no
// enclave; memguard rejects zero-length buffers.
func NewSecureBuffer(data []byte) *SecureBuffer {
	if len(data) == 0 {
		return &SecureBuffer{}
	}
	return &SecureBuffer{enclave: memguard.NewEnclave(data)}
}

// NewSecureBufferFromString protects a string value.
func NewSecureBufferFromString(value string) *SecureBuffer {
	return NewSecureBuffer([]byte(value))
}

// Open decrypts the enclave into a locked buffer. The caller must call
// Destroy on the returned buffer to wipe the plaintext. For an empty or
// already-destroyed buffer Open returns (nil, nil), which Bytes treats as
// an empty value.
func (s *SecureBuffer) Open() (*memguard.LockedBuffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed || s.enclave == nil {
		return nil, nil
	}
	return s.enclave.Open()
}

// Bytes opens the buffer and copies the plaintext out, wiping the locked
// buffer again before returning. Convenient when the value is about to
// become part of a string anyway, as with an environ entry.
func (s *SecureBuffer) Bytes() ([]byte, error) {
	locked, err := s.Open()
	if err != nil {
		return nil, err
	}
	if locked == nil {
		return nil, nil
	}
	defer locked.Destroy()
	out := make([]byte, len(locked.Bytes()))
	copy(out, locked.Bytes())
	return out, nil
}

// Destroy marks the buffer as unusable. Idempotent. The enclave's
// ciphertext is left for the collector; call memguard.Purge() at process
// exit for full cleanup.
func (s *SecureBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}
	s.enclave = nil
	s.destroyed = true
}
