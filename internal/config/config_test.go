package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/verse/internal/protocol"
	"github.com/danmuck/verse/internal/server"
	"github.com/danmuck/verse/internal/testutil/testlog"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadClientsAppliesDefaults(t *testing.T) {
	testlog.Start(t)
	hostID := strings.Repeat("ab", protocol.HostIDSize)
	path := writeFile(t, "clients.toml", `
[[clients]]
name = "alice"
address = "alice:5000"
subscribe = ["geometry", "text"]
expected_host_id = "`+hostID+`"

[[clients]]
name = "bob"
user = "robert"
address = "bob:5000"
server = "other:4950"
`)
	cfg, err := LoadClients(path)
	if err != nil {
		t.Fatalf("load clients: %v", err)
	}
	if cfg.Server != "localhost:4950" {
		t.Fatalf("unexpected default server %q", cfg.Server)
	}
	alice, bob := cfg.Clients[0], cfg.Clients[1]
	if alice.User != "alice" || alice.Server != "localhost:4950" {
		t.Fatalf("unexpected alice defaults: %+v", alice)
	}
	if bob.User != "robert" || bob.Server != "other:4950" {
		t.Fatalf("unexpected bob: %+v", bob)
	}

	classes, err := alice.Classes()
	if err != nil {
		t.Fatalf("classes: %v", err)
	}
	if classes != protocol.Classes(protocol.NodeGeometry, protocol.NodeText) {
		t.Fatalf("unexpected classes %s", classes)
	}
	if all, _ := bob.Classes(); all != protocol.AllClasses {
		t.Fatalf("empty subscribe should mean every class, got %s", all)
	}

	want, err := alice.Expected()
	if err != nil {
		t.Fatalf("expected: %v", err)
	}
	if want.String() != hostID {
		t.Fatalf("unexpected host id %s", want)
	}
	if id, _ := bob.Expected(); !id.IsWildcard() {
		t.Fatalf("missing host id should be wildcard")
	}
}

func TestValidateClientsRejectsBadEntries(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		cfg  ClientsConfig
		want string
	}{
		{"missing name", ClientsConfig{Clients: []ClientConfig{{Address: "a:1"}}}, "name is required"},
		{"missing address", ClientsConfig{Clients: []ClientConfig{{Name: "a"}}}, "address is required"},
		{"server address", ClientsConfig{Server: "s:1", Clients: []ClientConfig{{Name: "a", Address: "s:1"}}}, "must differ"},
		{"bad class", ClientsConfig{Clients: []ClientConfig{{Name: "a", Address: "a:1", Subscribe: []string{"mesh"}}}}, "unknown node type"},
		{"short host id", ClientsConfig{Clients: []ClientConfig{{Name: "a", Address: "a:1", ExpectedHostID: "abcd"}}}, "too short"},
		{"duplicate", ClientsConfig{Clients: []ClientConfig{{Name: "a", Address: "a:1"}, {Name: "b", Address: "a:1"}}}, "already used"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateClients(tc.cfg.WithDefaults())
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadWorldBuildsSeeds(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "world.yaml", `
nodes:
  - type: object
    name: origin
  - type: Geometry
    tag_groups: [surface, uv]
`)
	w, err := LoadWorld(path)
	if err != nil {
		t.Fatalf("load world: %v", err)
	}
	seeds, err := w.Seeds()
	if err != nil {
		t.Fatalf("seeds: %v", err)
	}
	want := []server.Seed{
		{Type: protocol.NodeObject, Name: "origin"},
		{Type: protocol.NodeGeometry, Name: "geometry_1", TagGroups: []string{"surface", "uv"}},
	}
	if len(seeds) != len(want) {
		t.Fatalf("expected %d seeds, got %d", len(want), len(seeds))
	}
	for i := range want {
		if seeds[i].Type != want[i].Type || seeds[i].Name != want[i].Name || len(seeds[i].TagGroups) != len(want[i].TagGroups) {
			t.Fatalf("seed[%d]: got %+v want %+v", i, seeds[i], want[i])
		}
	}
}

func TestParseWorldRejectsSystemAndUnknownTypes(t *testing.T) {
	testlog.Start(t)
	if _, err := ParseWorld([]byte("nodes:\n  - type: system\n")); !errors.Is(err, protocol.ErrArgument) {
		t.Fatalf("expected ErrArgument for system node, got %v", err)
	}
	if _, err := ParseWorld([]byte("nodes:\n  - type: mesh\n")); !errors.Is(err, protocol.ErrArgument) {
		t.Fatalf("expected ErrArgument for unknown type, got %v", err)
	}
	if _, err := ParseWorld([]byte("nodes: [")); err == nil {
		t.Fatalf("expected yaml error")
	}
}

func TestTemplatesLoad(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	clientsPath := filepath.Join(dir, "clients.toml")
	if err := WriteTemplate(clientsPath, "clients", false); err != nil {
		t.Fatalf("write clients template: %v", err)
	}
	if _, err := LoadClients(clientsPath); err != nil {
		t.Fatalf("clients template should load: %v", err)
	}

	worldPath := filepath.Join(dir, "world.yaml")
	if err := WriteTemplate(worldPath, "world", false); err != nil {
		t.Fatalf("write world template: %v", err)
	}
	w, err := LoadWorld(worldPath)
	if err != nil {
		t.Fatalf("world template should load: %v", err)
	}
	if len(w.Nodes) != 4 {
		t.Fatalf("expected 4 world nodes, got %d", len(w.Nodes))
	}

	if err := WriteTemplate(worldPath, "world", false); err == nil {
		t.Fatalf("expected existing file to be kept")
	}
	if err := WriteTemplate(worldPath, "world", true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if _, err := Template("mesh"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
