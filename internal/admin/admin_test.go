package admin

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/verse/internal/engine/loopback"
	"github.com/danmuck/verse/internal/protocol"
	"github.com/danmuck/verse/internal/runtime"
	"github.com/danmuck/verse/internal/server"
	"github.com/danmuck/verse/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAPI(t *testing.T, run bool) (*API, *server.Server) {
	t.Helper()
	logger := testlog.New(t)
	hub := loopback.NewHub()
	ep, err := hub.Endpoint("server:4950")
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	rt := runtime.New(ep, runtime.Options{Logger: logger})
	srv, err := server.New(rt, server.Config{HostID: protocol.HostID{0xaa}})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := srv.Preload([]server.Seed{
		{Type: protocol.NodeObject, Name: "origin"},
		{Type: protocol.NodeGeometry, Name: "floor", TagGroups: []string{"surface"}},
	}); err != nil {
		t.Fatalf("preload: %v", err)
	}
	if run {
		if err := srv.Run(); err != nil {
			t.Fatalf("run: %v", err)
		}
		t.Cleanup(func() {
			if srv.Running() {
				_ = srv.Shutdown("test over")
			}
		})
	}
	api := New(srv, Config{}, logger)
	t.Cleanup(api.Close)
	return api, srv
}

func get(t *testing.T, api *API, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	api.Router().ServeHTTP(rec, req)
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v (%s)", path, err, rec.Body.String())
	}
	return rec.Code, body
}

func TestHealthAndReadiness(t *testing.T) {
	api, srv := newAPI(t, false)

	code, body := get(t, api, "/health")
	if code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health: %d %v", code, body)
	}
	if body["host_id"] != srv.HostID().String() {
		t.Fatalf("unexpected host id %v", body["host_id"])
	}

	code, body = get(t, api, "/ready")
	if code != http.StatusServiceUnavailable || body["ready"] != false {
		t.Fatalf("idle server should not be ready: %d %v", code, body)
	}

	if err := srv.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	defer func() { _ = srv.Shutdown("test over") }()
	code, body = get(t, api, "/ready")
	if code != http.StatusOK || body["ready"] != true {
		t.Fatalf("running server should be ready: %d %v", code, body)
	}
	if body["nodes"] != float64(2) {
		t.Fatalf("expected 2 nodes, got %v", body["nodes"])
	}
}

func TestNodesFilterByClass(t *testing.T) {
	api, _ := newAPI(t, true)

	code, body := get(t, api, "/nodes")
	if code != http.StatusOK {
		t.Fatalf("nodes: %d", code)
	}
	if nodes := body["nodes"].([]any); len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %v", nodes)
	}

	_, body = get(t, api, "/nodes?class=geometry")
	nodes := body["nodes"].([]any)
	if len(nodes) != 1 {
		t.Fatalf("expected 1 geometry node, got %v", nodes)
	}
	floor := nodes[0].(map[string]any)
	if floor["name"] != "floor" || floor["type"] != "geometry" {
		t.Fatalf("unexpected node view %v", floor)
	}
	if groups := floor["tag_groups"].([]any); len(groups) != 1 || groups[0] != "surface" {
		t.Fatalf("unexpected tag groups %v", groups)
	}

	code, body = get(t, api, "/nodes?class=mesh")
	if code != http.StatusBadRequest || !strings.Contains(body["error"].(string), "unknown node type") {
		t.Fatalf("expected bad request, got %d %v", code, body)
	}
}

func TestConnectionsEmptyAndMissing(t *testing.T) {
	api, _ := newAPI(t, true)

	code, body := get(t, api, "/connections")
	if code != http.StatusOK || len(body["connections"].([]any)) != 0 {
		t.Fatalf("unexpected connections: %d %v", code, body)
	}
	code, _ = get(t, api, "/connections/nobody:1")
	if code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	api, _ := newAPI(t, true)
	get(t, api, "/health")

	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	raw, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(raw), "verse_server_nodes_live") {
		t.Fatalf("expected verse metrics in scrape")
	}
}

func TestFeedDropsWhenSubscriberIsFull(t *testing.T) {
	feed := NewFeed(1, testlog.New(t))
	events, cancel := feed.Subscribe()
	defer cancel()

	feed.OnConnectionOpen(&server.Connection{Address: "a:1", User: "a"})
	feed.OnConnectionClose(&server.Connection{Address: "a:1", User: "a"}, "bye")

	ev := <-events
	if ev.Kind != EventConnectionOpen || ev.Address != "a:1" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if feed.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", feed.Dropped())
	}

	cancel()
	cancel()
	if feed.Subscribers() != 0 {
		t.Fatalf("cancel should unsubscribe")
	}
	if _, ok := <-events; ok {
		t.Fatalf("channel should be closed")
	}
}

func TestEventsWebsocketStreamsNodeLifecycle(t *testing.T) {
	api, srv := newAPI(t, true)
	hs := httptest.NewServer(api.Router())
	defer hs.Close()

	wsURL := "ws" + strings.TrimPrefix(hs.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for api.Feed().Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("feed subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	n, err := srv.CreateNode(protocol.NodeText, "notes")
	if err != nil {
		t.Fatalf("create node: %v", err)
	}
	if err := srv.DestroyNode(n); err != nil {
		t.Fatalf("destroy node: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var created, destroyed Event
	if err := conn.ReadJSON(&created); err != nil {
		t.Fatalf("read create: %v", err)
	}
	if err := conn.ReadJSON(&destroyed); err != nil {
		t.Fatalf("read destroy: %v", err)
	}
	if created.Kind != EventNodeCreate || created.Node == nil || created.Node.Name != "notes" {
		t.Fatalf("unexpected create event %+v", created)
	}
	if destroyed.Kind != EventNodeDestroy || destroyed.Node.ID != created.Node.ID {
		t.Fatalf("unexpected destroy event %+v", destroyed)
	}
}

func TestFeedCloseEndsSubscriptions(t *testing.T) {
	feed := NewFeed(4, testlog.New(t))
	events, cancel := feed.Subscribe()
	feed.Close()
	if _, ok := <-events; ok {
		t.Fatalf("close should end the subscription")
	}
	cancel()
	if feed.Subscribers() != 0 {
		t.Fatalf("expected no subscribers after close, got %d", feed.Subscribers())
	}

	late, lateCancel := feed.Subscribe()
	defer lateCancel()
	if _, ok := <-late; ok {
		t.Fatalf("subscribe after close should return a closed channel")
	}
	feed.OnConnectionOpen(&server.Connection{Address: "a:1", User: "a"})
	if feed.Dropped() != 0 {
		t.Fatalf("closed feed should not count drops")
	}
}

func TestCloseEndsEventStreams(t *testing.T) {
	api, _ := newAPI(t, true)
	hs := httptest.NewServer(api.Router())
	defer hs.Close()

	wsURL := "ws" + strings.TrimPrefix(hs.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for api.Feed().Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("feed subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	api.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close frame, got %v", err)
	}
}
