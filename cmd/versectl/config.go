package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/verse/internal/admin"
	"github.com/danmuck/verse/internal/auth"
	"github.com/danmuck/verse/internal/protocol"
	"github.com/danmuck/verse/internal/protocol/session"
)

// ServeConfig is everything `versectl serve` needs.
type ServeConfig struct {
	Address        string
	HostIDFile     string
	AdminAddr      string
	CorsOrigins    []string
	Session        session.Config
	ConnectTimeout time.Duration
	ClientsFile    string
	WorldFile      string
	KnownHosts     string
	// Users maps user names to bcrypt password hashes. Empty accepts
	// everyone.
	Users map[string]string
}

func DefaultServeConfig() ServeConfig {
	return ServeConfig{
		Address:        fmt.Sprintf("localhost:%d", protocol.DefaultPort),
		HostIDFile:     protocol.HostIDFile,
		AdminAddr:      admin.DefaultConfig().Addr,
		Session:        session.DefaultConfig(),
		ConnectTimeout: session.DefaultConfig().ConnectTimeout,
	}
}

// versectl.toml key mapping to serve settings.
type fileConfig struct {
	Address        string            `toml:"address"`
	HostIDFile     string            `toml:"hostid_file"`
	AdminAddr      string            `toml:"admin_addr"`
	CorsOrigins    []string          `toml:"cors_origins"`
	PollTimeout    string            `toml:"poll_timeout"`
	ConnectTimeout string            `toml:"connect_timeout"`
	ClientsFile    string            `toml:"clients_file"`
	WorldFile      string            `toml:"world_file"`
	KnownHosts     string            `toml:"known_hosts"`
	Users          map[string]string `toml:"users"`
}

// versectl loader for TOML config with default overlay. Relative file
// paths resolve against the config file's directory.
func loadServeConfig(path string) (ServeConfig, error) {
	cfg := DefaultServeConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ServeConfig{}, fmt.Errorf("load versectl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return ServeConfig{}, fmt.Errorf("load versectl config: unknown key %q", undecoded[0].String())
	}

	base := filepath.Dir(path)
	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("hostid_file") {
		cfg.HostIDFile = resolvePath(base, raw.HostIDFile)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("poll_timeout") {
		d, err := parseDuration("poll_timeout", raw.PollTimeout)
		if err != nil {
			return ServeConfig{}, err
		}
		cfg.Session.PollTimeout = d
	}
	if meta.IsDefined("connect_timeout") {
		d, err := parseDuration("connect_timeout", raw.ConnectTimeout)
		if err != nil {
			return ServeConfig{}, err
		}
		cfg.ConnectTimeout = d
		cfg.Session.ConnectTimeout = d
	}
	if meta.IsDefined("clients_file") {
		cfg.ClientsFile = resolvePath(base, raw.ClientsFile)
	}
	if meta.IsDefined("world_file") {
		cfg.WorldFile = resolvePath(base, raw.WorldFile)
	}
	if meta.IsDefined("known_hosts") {
		cfg.KnownHosts = resolvePath(base, raw.KnownHosts)
	}
	if meta.IsDefined("users") {
		if err := auth.Users(raw.Users).Validate(); err != nil {
			return ServeConfig{}, fmt.Errorf("load versectl config: users: %w", err)
		}
		cfg.Users = raw.Users
	}

	if strings.TrimSpace(cfg.Address) == "" {
		return ServeConfig{}, fmt.Errorf("load versectl config: address is required")
	}
	cfg.Session = cfg.Session.WithDefaults()
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("load versectl config: %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("load versectl config: %s must be positive", key)
	}
	return d, nil
}

func resolvePath(base, raw string) string {
	p := strings.TrimSpace(raw)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
