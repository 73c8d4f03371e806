package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/verse/internal/observability"
	"github.com/danmuck/verse/internal/protocol"
	"github.com/danmuck/verse/internal/server"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const Version = "0.1.0"

type Config struct {
	Addr        string
	CorsOrigins []string
	FeedBuffer  int
}

func DefaultConfig() Config {
	return Config{
		Addr:       "127.0.0.1:4960",
		FeedBuffer: 64,
	}
}

func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = def.Addr
	}
	if c.FeedBuffer <= 0 {
		c.FeedBuffer = def.FeedBuffer
	}
	return c
}

// API serves admin routes for one server.
type API struct {
	cfg     Config
	srv     *server.Server
	router  *gin.Engine
	feed    *Feed
	log     zerolog.Logger
	started time.Time
	upgrade websocket.Upgrader
}

// New builds the router and attaches the event feed to srv.
func New(srv *server.Server, cfg Config, logger zerolog.Logger) *API {
	cfg = cfg.WithDefaults()
	observability.RegisterMetrics()
	log := observability.Component(logger, "admin")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(log))
	r.Use(observability.RequestMetricsMiddleware("admin"))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	origins := make(map[string]bool, len(cfg.CorsOrigins))
	for _, o := range normalizeOrigins(cfg.CorsOrigins) {
		origins[o] = true
	}

	a := &API{
		cfg:     cfg,
		srv:     srv,
		router:  r,
		feed:    NewFeed(cfg.FeedBuffer, log),
		log:     log,
		started: time.Now(),
		upgrade: websocket.Upgrader{
			CheckOrigin: func(req *http.Request) bool {
				origin := req.Header.Get("Origin")
				return origin == "" || origins[origin]
			},
		},
	}
	srv.AddObserver(a.feed)
	a.registerRoutes()
	return a
}

func (a *API) Router() *gin.Engine {
	return a.router
}

func (a *API) Feed() *Feed {
	return a.feed
}

// Close detaches the feed from the server and ends every /events stream.
func (a *API) Close() {
	a.srv.RemoveObserver(a.feed)
	a.feed.Close()
}

// Serve listens on the configured address until ctx is done.
func (a *API) Serve(ctx context.Context) error {
	hs := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.cfg.Addr).Msg("admin listening")
		errCh <- hs.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		// Shutdown does not wait for hijacked websocket conns.
		a.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	}
}

func (a *API) registerRoutes() {
	r := a.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(a.started).String(),
			"host_id": a.srv.HostID().String(),
			"version": Version,
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !a.srv.Running() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":       a.srv.Running(),
			"state":       string(a.srv.State()),
			"connections": len(a.srv.Connections()),
			"nodes":       a.srv.Nodes().Len(),
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/connections", func(c *gin.Context) {
		conns := a.srv.Connections()
		views := make([]ConnectionView, 0, len(conns))
		for _, conn := range conns {
			views = append(views, viewConnection(conn))
		}
		c.JSON(http.StatusOK, gin.H{"connections": views})
	})

	r.GET("/connections/:address", func(c *gin.Context) {
		conn, ok := a.srv.Connection(c.Param("address"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
			return
		}
		c.JSON(http.StatusOK, viewConnection(conn))
	})

	r.GET("/nodes", func(c *gin.Context) {
		classes, err := parseClasses(c.Query("class"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		nodes := a.srv.Nodes().ByClass(classes)
		views := make([]NodeView, 0, len(nodes))
		for _, n := range nodes {
			views = append(views, viewNode(n))
		}
		c.JSON(http.StatusOK, gin.H{"nodes": views})
	})

	r.GET("/events", a.serveEvents)
}

func (a *API) serveEvents(c *gin.Context) {
	conn, err := a.upgrade.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.log.Warn().Err(err).Msg("admin.events upgrade failed")
		return
	}
	events, cancel := a.feed.Subscribe()
	peer := c.ClientIP()
	a.log.Debug().Str("client_ip", peer).Msg("admin.events subscribed")

	// Reads only detect the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer conn.Close()
	for ev := range events {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(ev); err != nil {
			cancel()
			a.log.Debug().Str("client_ip", peer).Err(err).Msg("admin.events write failed")
			return
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "admin closing"),
		time.Now().Add(time.Second))
	a.log.Debug().Str("client_ip", peer).Msg("admin.events closed")
}

// parseClasses reads a comma separated list of node type names. Empty
// means every class.
func parseClasses(raw string) (protocol.ClassSet, error) {
	if strings.TrimSpace(raw) == "" {
		return protocol.AllClasses, nil
	}
	var types []protocol.NodeType
	for _, part := range strings.Split(raw, ",") {
		typ, err := protocol.ParseNodeType(strings.TrimSpace(part))
		if err != nil {
			return 0, err
		}
		types = append(types, typ)
	}
	return protocol.Classes(types...), nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
