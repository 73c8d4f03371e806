package trust

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/danmuck/verse/internal/protocol"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var (
	ErrMismatch = errors.New("trust: host id mismatch")
	ErrRevoked  = errors.New("trust: host id revoked")
)

// probeKey is offered to lookups so the known_hosts callback reports what
// it expected instead of accepting.
var probeKey = func() ssh.PublicKey {
	pub := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize)).Public()
	key, err := ssh.NewPublicKey(pub)
	if err != nil {
		panic(err)
	}
	return key
}()

// placeholderAddr satisfies the callback's remote address argument; the
// hostname argument always takes precedence.
var placeholderAddr = &net.TCPAddr{IP: net.IPv4zero}

// Store is a known_hosts file of server host ids.
type Store struct {
	path string
	mu   sync.Mutex
}

// Open uses path, creating an empty file when it does not exist.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open known hosts %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close known hosts %s: %w", path, err)
	}
	return &Store{path: path}, nil
}

func (s *Store) Path() string {
	return s.path
}

// Expected returns the remembered id for address, or the wildcard and
// false when address is unknown.
func (s *Store) Expected(address string) (protocol.HostID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, err := knownhosts.New(s.path)
	if err != nil {
		return protocol.Wildcard, false, fmt.Errorf("load known hosts: %w", err)
	}
	err = cb(address, placeholderAddr, probeKey)
	if err == nil {
		id, convErr := HostIDFromKey(probeKey)
		return id, convErr == nil, convErr
	}
	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		if len(keyErr.Want) == 0 {
			return protocol.Wildcard, false, nil
		}
		id, convErr := HostIDFromKey(keyErr.Want[0].Key)
		if convErr != nil {
			return protocol.Wildcard, false, convErr
		}
		return id, true, nil
	}
	var revoked *knownhosts.RevokedError
	if errors.As(err, &revoked) {
		return protocol.Wildcard, false, fmt.Errorf("%w: %s", ErrRevoked, address)
	}
	return protocol.Wildcard, false, fmt.Errorf("check known hosts: %w", err)
}

// Check verifies id against the remembered id for address. Unknown
// addresses pass.
func (s *Store) Check(address string, id protocol.HostID) error {
	want, known, err := s.Expected(address)
	if err != nil {
		return err
	}
	if known && want != id {
		return fmt.Errorf("%w: %s", ErrMismatch, address)
	}
	return nil
}

// Remember appends id for address.
func (s *Store) Remember(address string, id protocol.HostID) error {
	key, err := PublicKey(id)
	if err != nil {
		return err
	}
	line := knownhosts.Line([]string{address}, key)
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("open known hosts %s: %w", s.path, err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("write known hosts %s: %w", s.path, err)
	}
	return f.Close()
}

// PublicKey renders a host id as an ssh ed25519 public key.
func PublicKey(id protocol.HostID) (ssh.PublicKey, error) {
	if id.IsWildcard() {
		return nil, fmt.Errorf("%w: wildcard has no key", protocol.ErrArgument)
	}
	key, err := ssh.NewPublicKey(ed25519.PublicKey(id.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrArgument, err)
	}
	return key, nil
}

// HostIDFromKey extracts the host id from an ssh ed25519 public key.
func HostIDFromKey(key ssh.PublicKey) (protocol.HostID, error) {
	ck, ok := key.(ssh.CryptoPublicKey)
	if !ok {
		return protocol.Wildcard, fmt.Errorf("%w: key type %s", protocol.ErrArgument, key.Type())
	}
	pub, ok := ck.CryptoPublicKey().(ed25519.PublicKey)
	if !ok {
		return protocol.Wildcard, fmt.Errorf("%w: key type %s is not ed25519", protocol.ErrArgument, key.Type())
	}
	return protocol.HostIDFromBytes(pub)
}

// Fingerprint is the SHA256 fingerprint ssh tooling prints for id.
func Fingerprint(id protocol.HostID) string {
	key, err := PublicKey(id)
	if err != nil {
		return "*"
	}
	return ssh.FingerprintSHA256(key)
}

// AuthorizedLine renders id as an authorized_keys style line.
func AuthorizedLine(id protocol.HostID) string {
	key, err := PublicKey(id)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(key)))
}
