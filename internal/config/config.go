package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/verse/internal/protocol"
	"github.com/pelletier/go-toml/v2"
)

// ClientsConfig is the roster of simulated clients run next to a server.
type ClientsConfig struct {
	Server  string         `toml:"server"`
	Clients []ClientConfig `toml:"clients"`
}

type ClientConfig struct {
	Name     string `toml:"name"`
	Address  string `toml:"address"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	// Server overrides the roster-wide server address.
	Server string `toml:"server"`
	// ExpectedHostID is a hex host id. Empty accepts any server.
	ExpectedHostID string   `toml:"expected_host_id"`
	Subscribe      []string `toml:"subscribe"`
}

func LoadClients(path string) (ClientsConfig, error) {
	var cfg ClientsConfig
	if err := loadToml(path, &cfg); err != nil {
		return ClientsConfig{}, err
	}
	cfg = cfg.WithDefaults()
	if err := ValidateClients(cfg); err != nil {
		return ClientsConfig{}, err
	}
	return cfg, nil
}

func (c ClientsConfig) WithDefaults() ClientsConfig {
	if strings.TrimSpace(c.Server) == "" {
		c.Server = fmt.Sprintf("localhost:%d", protocol.DefaultPort)
	}
	for i := range c.Clients {
		cl := &c.Clients[i]
		if strings.TrimSpace(cl.Server) == "" {
			cl.Server = c.Server
		}
		if strings.TrimSpace(cl.User) == "" {
			cl.User = cl.Name
		}
	}
	return c
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateClients(cfg ClientsConfig) error {
	seen := make(map[string]int, len(cfg.Clients))
	for i, cl := range cfg.Clients {
		if err := ValidateClient(cl); err != nil {
			return fmt.Errorf("client[%d] invalid: %w", i, err)
		}
		if j, ok := seen[cl.Address]; ok {
			return fmt.Errorf("client[%d] invalid: address %q already used by client[%d]", i, cl.Address, j)
		}
		seen[cl.Address] = i
	}
	return nil
}

func ValidateClient(cl ClientConfig) error {
	if strings.TrimSpace(cl.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(cl.Address) == "" {
		return fmt.Errorf("address is required")
	}
	if strings.TrimSpace(cl.Server) == "" {
		return fmt.Errorf("server is required")
	}
	if cl.Address == cl.Server {
		return fmt.Errorf("address must differ from server")
	}
	if _, err := cl.Expected(); err != nil {
		return err
	}
	if _, err := cl.Classes(); err != nil {
		return err
	}
	return nil
}

// Expected decodes ExpectedHostID.
func (cl ClientConfig) Expected() (protocol.HostID, error) {
	raw := strings.TrimSpace(cl.ExpectedHostID)
	if raw == "" || raw == "*" {
		return protocol.Wildcard, nil
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return protocol.Wildcard, fmt.Errorf("%w: expected_host_id: %v", protocol.ErrArgument, err)
	}
	return protocol.HostIDFromBytes(decoded)
}

// Classes resolves Subscribe. An empty list subscribes to every class.
func (cl ClientConfig) Classes() (protocol.ClassSet, error) {
	if len(cl.Subscribe) == 0 {
		return protocol.AllClasses, nil
	}
	types := make([]protocol.NodeType, 0, len(cl.Subscribe))
	for _, name := range cl.Subscribe {
		typ, err := protocol.ParseNodeType(name)
		if err != nil {
			return 0, fmt.Errorf("subscribe: %w", err)
		}
		types = append(types, typ)
	}
	return protocol.Classes(types...), nil
}
