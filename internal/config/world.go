package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/verse/internal/protocol"
	"github.com/danmuck/verse/internal/server"
	"gopkg.in/yaml.v3"
)

// World lists the nodes a server creates before accepting peers.
type World struct {
	Nodes []WorldNode `yaml:"nodes"`
}

type WorldNode struct {
	Type      string   `yaml:"type"`
	Name      string   `yaml:"name"`
	TagGroups []string `yaml:"tag_groups"`
}

func LoadWorld(path string) (World, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return World{}, fmt.Errorf("world load failed (%s): %w", path, err)
	}
	w, err := ParseWorld(data)
	if err != nil {
		return World{}, fmt.Errorf("world parse failed (%s): %w", path, err)
	}
	return w, nil
}

func ParseWorld(data []byte) (World, error) {
	var w World
	if err := yaml.Unmarshal(data, &w); err != nil {
		return World{}, err
	}
	if _, err := w.Seeds(); err != nil {
		return World{}, err
	}
	return w, nil
}

// Seeds converts the world into server preload seeds.
func (w World) Seeds() ([]server.Seed, error) {
	seeds := make([]server.Seed, 0, len(w.Nodes))
	for i, wn := range w.Nodes {
		typ, err := protocol.ParseNodeType(wn.Type)
		if err != nil {
			return nil, fmt.Errorf("nodes[%d]: %w", i, err)
		}
		if typ == protocol.NodeSystem {
			return nil, fmt.Errorf("nodes[%d]: %w: system nodes cannot be preloaded", i, protocol.ErrArgument)
		}
		name := strings.TrimSpace(wn.Name)
		if name == "" {
			name = fmt.Sprintf("%s_%d", typ, i)
		}
		seeds = append(seeds, server.Seed{Type: typ, Name: name, TagGroups: wn.TagGroups})
	}
	return seeds, nil
}
