package config

import (
	"fmt"
	"os"
	"strings"
)

// Kinds lists the template kinds Template accepts.
var Kinds = []string{"versectl", "clients", "world"}

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "versectl":
		return versectlTemplate, nil
	case "clients":
		return clientsTemplate, nil
	case "world":
		return worldTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const versectlTemplate = `address = "localhost:4950"
hostid_file = "hostid.key"
admin_addr = "127.0.0.1:4960"
cors_origins = ["http://localhost:3000"]
poll_timeout = "50ms"
connect_timeout = "5s"
clients_file = "clients.toml"
world_file = "world.yaml"
known_hosts = "known_hosts"

# bcrypt hashes from "versectl passwd <password>". Empty accepts anyone.
[users]
`

const clientsTemplate = `server = "localhost:4950"

[[clients]]
name = "alice"
address = "alice:5000"
subscribe = ["object", "geometry"]

[[clients]]
name = "bob"
address = "bob:5000"
`

const worldTemplate = `nodes:
  - type: object
    name: origin
  - type: geometry
    name: floor
    tag_groups: [surface]
  - type: material
    name: concrete
  - type: text
    name: readme
`
