package protocol

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// HostIDSize is the length of a host identity, an ed25519 public key.
const HostIDSize = 32

// HostIDFile is the file name a server keeps its identity in.
const HostIDFile = "hostid.key"

// HostID is a peer's public identity. The zero value is the wildcard.
type HostID [HostIDSize]byte

// Wildcard matches any peer identity.
var Wildcard HostID

// HostIDFromBytes copies raw into a HostID, enforcing the exact size.
func HostIDFromBytes(raw []byte) (HostID, error) {
	var id HostID
	switch {
	case len(raw) < HostIDSize:
		return id, fmt.Errorf("%w: hostid is too short: should be %d bytes, got %d", ErrArgument, HostIDSize, len(raw))
	case len(raw) > HostIDSize:
		return id, fmt.Errorf("%w: hostid is too long: should be %d bytes, got %d", ErrArgument, HostIDSize, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// HostIDFromValue accepts a HostID or raw bytes. Text is rejected so that
// a hex or base64 rendering is never mistaken for the identity itself.
func HostIDFromValue(v any) (HostID, error) {
	switch raw := v.(type) {
	case nil:
		return Wildcard, nil
	case HostID:
		return raw, nil
	case []byte:
		return HostIDFromBytes(raw)
	default:
		return HostID{}, fmt.Errorf("%w: invalid encoding: expected raw bytes, got %T", ErrArgument, v)
	}
}

// IsWildcard reports whether id carries no expectation.
func (id HostID) IsWildcard() bool {
	return id == Wildcard
}

// Matches reports whether id is acceptable where want is expected.
func (id HostID) Matches(want HostID) bool {
	return want.IsWildcard() || id == want
}

func (id HostID) Bytes() []byte {
	out := make([]byte, HostIDSize)
	copy(out, id[:])
	return out
}

func (id HostID) String() string {
	if id.IsWildcard() {
		return "*"
	}
	return hex.EncodeToString(id[:])
}

// LoadOrCreateHostID reads the identity stored at path. When the file does
// not exist a new identity is generated and written exclusively with owner
// only permissions; a concurrent writer makes this fail instead of
// clobbering the other identity.
func LoadOrCreateHostID(path string, generate func() (HostID, error)) (HostID, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		return HostIDFromBytes(raw)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return HostID{}, fmt.Errorf("read hostid %s: %w", path, err)
	}
	if generate == nil {
		return HostID{}, fmt.Errorf("%w: no hostid generator", ErrArgument)
	}
	id, err := generate()
	if err != nil {
		return HostID{}, fmt.Errorf("generate hostid: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return HostID{}, fmt.Errorf("create hostid %s: %w", path, err)
	}
	if _, err := f.Write(id[:]); err != nil {
		_ = f.Close()
		return HostID{}, fmt.Errorf("write hostid %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return HostID{}, fmt.Errorf("close hostid %s: %w", path, err)
	}
	return id, nil
}
