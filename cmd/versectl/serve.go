package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/verse/internal/admin"
	"github.com/danmuck/verse/internal/auth"
	"github.com/danmuck/verse/internal/config"
	"github.com/danmuck/verse/internal/engine/loopback"
	"github.com/danmuck/verse/internal/node"
	"github.com/danmuck/verse/internal/observability"
	"github.com/danmuck/verse/internal/protocol"
	"github.com/danmuck/verse/internal/protocol/session"
	"github.com/danmuck/verse/internal/runtime"
	"github.com/danmuck/verse/internal/server"
	"github.com/danmuck/verse/internal/trust"
	"github.com/rs/zerolog"
)

const interruptMessage = "Caught interrupt."

// simulation is one server plus its configured clients on a loopback hub.
type simulation struct {
	cfg     ServeConfig
	log     zerolog.Logger
	hub     *loopback.Hub
	srt     *runtime.Runtime
	srv     *server.Server
	api     *admin.API
	clients []*simClient
}

// simClient is a node-logger client: it subscribes on accept and logs
// every node it is told about.
type simClient struct {
	name    string
	rt      *runtime.Runtime
	redial  *session.Redialer
	classes protocol.ClassSet
	log     zerolog.Logger
}

func newSimulation(cfg ServeConfig, logger zerolog.Logger) (*simulation, error) {
	hub := loopback.NewHubWithConfig(loopback.HubConfig{ConnectTimeout: cfg.ConnectTimeout})
	ep, err := hub.Endpoint(cfg.Address)
	if err != nil {
		return nil, err
	}
	srt := runtime.New(ep, runtime.Options{Logger: logger})

	srvCfg := server.DefaultConfig()
	srvCfg.HostIDPath = cfg.HostIDFile
	if len(cfg.Users) > 0 {
		srvCfg.Auth = auth.Users(cfg.Users)
	}
	srv, err := server.New(srt, srvCfg)
	if err != nil {
		return nil, err
	}

	if cfg.WorldFile != "" {
		world, err := config.LoadWorld(cfg.WorldFile)
		if err != nil {
			return nil, err
		}
		seeds, err := world.Seeds()
		if err != nil {
			return nil, err
		}
		if err := srv.Preload(seeds); err != nil {
			return nil, err
		}
	}

	sim := &simulation{
		cfg: cfg,
		log: observability.Component(logger, "versectl"),
		hub: hub,
		srt: srt,
		srv: srv,
	}
	if strings.TrimSpace(cfg.AdminAddr) != "" {
		sim.api = admin.New(srv, admin.Config{Addr: cfg.AdminAddr, CorsOrigins: cfg.CorsOrigins}, logger)
	}

	if cfg.ClientsFile != "" {
		roster, err := config.LoadClients(cfg.ClientsFile)
		if err != nil {
			return nil, err
		}
		var store *trust.Store
		if cfg.KnownHosts != "" {
			if store, err = trust.Open(cfg.KnownHosts); err != nil {
				return nil, err
			}
		}
		for _, cl := range roster.Clients {
			c, err := sim.newClient(cl, store, logger)
			if err != nil {
				return nil, fmt.Errorf("client %s: %w", cl.Name, err)
			}
			sim.clients = append(sim.clients, c)
		}
	}
	return sim, nil
}

func (s *simulation) newClient(cl config.ClientConfig, store *trust.Store, logger zerolog.Logger) (*simClient, error) {
	ep, err := s.hub.Endpoint(cl.Address)
	if err != nil {
		return nil, err
	}
	classes, err := cl.Classes()
	if err != nil {
		return nil, err
	}
	expected, err := cl.Expected()
	if err != nil {
		return nil, err
	}
	c := &simClient{
		name:    cl.Name,
		rt:      runtime.New(ep, runtime.Options{Logger: logger}),
		classes: classes,
		log:     logger.With().Str("client", cl.Name).Logger(),
	}
	observers := []any{c}
	if store != nil {
		if expected.IsWildcard() {
			if known, ok, err := store.Expected(cl.Server); err != nil {
				return nil, err
			} else if ok {
				expected = known
			}
		}
		observers = append(observers, trust.NewRecorder(store, logger))
	}
	c.redial = session.NewRedialer(c.rt, session.RedialConfig{
		Address:   cl.Server,
		User:      cl.User,
		Password:  cl.Password,
		Expected:  expected,
		Session:   s.cfg.Session,
		Observers: observers,
	})
	return c, nil
}

func (s *simulation) start() error {
	if err := s.srv.Run(); err != nil {
		return err
	}
	s.log.Info().
		Str("address", s.cfg.Address).
		Str("fingerprint", trust.Fingerprint(s.srv.HostID())).
		Int("nodes", s.srv.Nodes().Len()).
		Int("clients", len(s.clients)).
		Msg("versectl serving")
	return nil
}

// step runs one non-blocking round of every loop.
func (s *simulation) step(now time.Time) {
	if _, err := s.srt.Update(0); err != nil {
		s.log.Warn().Err(err).Msg("versectl server update")
	}
	for _, c := range s.clients {
		c.step(now, 0)
	}
}

// run drives every loop until ctx is done, then shuts the server down.
func (s *simulation) run(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.srt.Run(loopCtx, s.cfg.Session.PollTimeout); err != nil {
			errCh <- fmt.Errorf("server loop: %w", err)
		}
	}()
	for _, c := range s.clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.loop(loopCtx, s.cfg.Session.PollTimeout)
		}()
	}
	if s.api != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.api.Serve(loopCtx); err != nil {
				errCh <- fmt.Errorf("admin: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	s.shutdown(interruptMessage)
	cancel()
	wg.Wait()
	return runErr
}

func (s *simulation) shutdown(reason string) {
	for _, c := range s.clients {
		if err := c.redial.Stop(reason); err != nil {
			c.log.Warn().Err(err).Msg("versectl client stop")
		}
	}
	if err := s.srv.Shutdown(reason); err != nil {
		s.log.Warn().Err(err).Msg("versectl server shutdown")
	}
	if s.api != nil {
		s.api.Close()
	}
}

func (c *simClient) step(now time.Time, timeout time.Duration) {
	if _, err := c.redial.Tick(now); err != nil {
		c.log.Warn().Err(err).Msg("versectl client connect")
	}
	if _, err := c.rt.Update(timeout); err != nil {
		c.log.Warn().Err(err).Msg("versectl client update")
	}
}

func (c *simClient) loop(ctx context.Context, timeout time.Duration) {
	for ctx.Err() == nil {
		c.step(time.Now(), timeout)
	}
}

func (c *simClient) OnConnectAccept(avatar *node.Node, address string, hostID protocol.HostID) {
	c.log.Info().
		Str("server", address).
		Uint32("avatar", uint32(avatar.ID())).
		Str("fingerprint", trust.Fingerprint(hostID)).
		Msg("client accepted")
	sess := c.redial.Session()
	if sess == nil {
		return
	}
	if err := sess.SubscribeIndex(c.classes); err != nil {
		c.log.Warn().Err(err).Msg("client subscribe")
	}
}

func (c *simClient) OnConnectTerminate(address, message string) {
	c.log.Info().Str("server", address).Str("message", message).Msg("client terminated")
}

func (c *simClient) OnNodeCreate(n *node.Node) {
	c.log.Info().
		Uint32("node", uint32(n.ID())).
		Str("type", n.Type().String()).
		Str("name", n.Name()).
		Msg("client node created")
}

func (c *simClient) OnNodeDestroy(n *node.Node) {
	c.log.Info().Uint32("node", uint32(n.ID())).Msg("client node destroyed")
}
