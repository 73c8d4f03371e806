package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/verse/internal/auth"
	"github.com/danmuck/verse/internal/config"
	"github.com/danmuck/verse/internal/engine/loopback"
	"github.com/danmuck/verse/internal/logging"
	"github.com/danmuck/verse/internal/protocol"
	"github.com/danmuck/verse/internal/trust"
	"github.com/docopt/docopt-go"
)

const Version = "0.1.0"

const usage = `versectl: run and inspect a verse session server.

Usage:
    versectl serve [--config=<path>]
    versectl hostid [--file=<path>]
    versectl init <kind> <path> [--force]
    versectl passwd <password>
    versectl -h | --help
    versectl --version

Kinds:
    versectl    serve configuration (TOML)
    clients     simulated client roster (TOML)
    world       world preload nodes (YAML)

Options:
    -h --help          Show this screen.
    --version          Show version.
    --config=<path>    Serve configuration file. Defaults apply when omitted.
    --file=<path>      Host identity file [default: hostid.key].
    --force            Overwrite an existing file.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "versectl: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "versectl: %v\n", err)
		os.Exit(1)
	}
}

func run(opts docopt.Opts) error {
	if serve, _ := opts.Bool("serve"); serve {
		return runServe(opts)
	}
	if hostid, _ := opts.Bool("hostid"); hostid {
		path, _ := opts.String("--file")
		return runHostID(path)
	}
	if initCmd, _ := opts.Bool("init"); initCmd {
		kind, _ := opts.String("<kind>")
		path, _ := opts.String("<path>")
		force, _ := opts.Bool("--force")
		if err := config.WriteTemplate(path, kind, force); err != nil {
			return err
		}
		fmt.Printf("wrote %s template to %s\n", kind, path)
		return nil
	}
	if passwd, _ := opts.Bool("passwd"); passwd {
		password, _ := opts.String("<password>")
		hash, err := auth.Hash(password)
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	}
	return fmt.Errorf("no command given")
}

func runServe(opts docopt.Opts) error {
	cfg := DefaultServeConfig()
	if path, err := opts.String("--config"); err == nil && path != "" {
		loaded, err := loadServeConfig(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	logger := logging.ConfigureRuntime()

	sim, err := newSimulation(cfg, logger)
	if err != nil {
		return err
	}
	if err := sim.start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return sim.run(ctx)
}

func runHostID(path string) error {
	hub := loopback.NewHub()
	ep, err := hub.Endpoint("hostid")
	if err != nil {
		return err
	}
	id, err := protocol.LoadOrCreateHostID(path, ep.GenerateHostIdentity)
	if err != nil {
		return err
	}
	fmt.Printf("file:        %s\n", path)
	fmt.Printf("host id:     %s\n", id)
	fmt.Printf("fingerprint: %s\n", trust.Fingerprint(id))
	fmt.Printf("key:         %s\n", trust.AuthorizedLine(id))
	return nil
}
