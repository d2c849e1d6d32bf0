package application

import (
	"sync"

	"github.com/ericfisherdev/opconsole/internal/domain/port/driven"
)

// DecrypterProvider enables runtime hot-swap of the decryption capability.
// It holds a mutex-protected reference to the current driven.Decrypter so a
// reconfigured key service takes effect without restarting the console.
type DecrypterProvider struct {
	mu        sync.RWMutex
	decrypter driven.Decrypter
	name      string
}

// NewDecrypterProvider creates a provider with the given initial capability.
// decrypter may be nil when no capability is configured; decrypt requests
// then fail with driven.ErrCapabilityUnavailable.
func NewDecrypterProvider(decrypter driven.Decrypter, name string) *DecrypterProvider {
	return &DecrypterProvider{decrypter: decrypter, name: name}
}

// Get returns the current capability, possibly nil.
func (p *DecrypterProvider) Get() driven.Decrypter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.decrypter
}

// Name returns the label the current capability was registered under:
// "aes-gcm" or "keyservice" in the console binary.
func (p *DecrypterProvider) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

// Replace swaps the current capability. Requests already in flight finish
// against the capability they started with.
func (p *DecrypterProvider) Replace(decrypter driven.Decrypter, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.decrypter = decrypter
	p.name = name
}

// HasDecrypter returns true if a non-nil capability is currently held.
func (p *DecrypterProvider) HasDecrypter() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.decrypter != nil
}
