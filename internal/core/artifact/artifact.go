package artifact

import (
	"crypto/sha256"
	"sync"

	"github.com/artpar/deployer/internal/core/abi"
)

// =============================================================================
// Artifact
// =============================================================================

// Artifact is one deployable compiled unit.
type Artifact struct {
	Name       string
	ABI        abi.Interface
	Bytecode   []byte
	SourcePath string

	mu       sync.RWMutex
	address  abi.Address
	uploaded bool
}

// New creates an artifact with no address.
func New(name, sourcePath string, iface abi.Interface, bytecode []byte) *Artifact {
	return &Artifact{
		Name:       name,
		ABI:        iface,
		Bytecode:   bytecode,
		SourcePath: sourcePath,
	}
}

// Address returns the uploaded address and whether one has been set.
func (a *Artifact) Address() (abi.Address, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.address, a.uploaded
}

// RequireAddress returns the address or ErrNotYetUploaded.
func (a *Artifact) RequireAddress() (abi.Address, error) {
	addr, ok := a.Address()
	if !ok {
		return abi.ZeroAddress, NewArtifactError("address", a.Name, ErrNotYetUploaded)
	}
	return addr, nil
}

// SetAddress assigns the address exactly once. Repeating the same value is
// accepted; a different value is rejected with ErrAddressAlreadySet.
func (a *Artifact) SetAddress(addr abi.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.uploaded {
		if a.address == addr {
			return nil
		}
		return NewArtifactError("set address", a.Name, ErrAddressAlreadySet)
	}
	a.address = addr
	a.uploaded = true
	return nil
}

// ContentHash returns the digest of the artifact's bytecode.
func (a *Artifact) ContentHash() abi.Hash {
	return ContentHash(a.Bytecode)
}

// ContentHash is the SHA-256 digest of deployed bytecode. The registry stores
// this value for every registration, so it must stay SHA-256.
func ContentHash(bytecode []byte) abi.Hash {
	return abi.Hash(sha256.Sum256(bytecode))
}
