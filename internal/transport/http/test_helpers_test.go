package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/lanchat-server/internal/auth"
	"github.com/vovakirdan/lanchat-server/internal/blob"
	"github.com/vovakirdan/lanchat-server/internal/config"
	"github.com/vovakirdan/lanchat-server/internal/core"
	"github.com/vovakirdan/lanchat-server/internal/log"
	"github.com/vovakirdan/lanchat-server/internal/proto"
	"github.com/vovakirdan/lanchat-server/internal/store/sqlite"
)

type testServer struct {
	ts       *httptest.Server
	store    *sqlite.SQLiteStore
	auth     *auth.Service
	presence *core.Presence
	router   *core.Router
}

// startTestServer runs the full HTTP stack over an in-memory store.
func startTestServer(t *testing.T, configure func(*config.Config)) *testServer {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	blobs, err := blob.NewDisk(t.TempDir(), "uploads")
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	if configure != nil {
		configure(&cfg)
	}

	logger := log.Nop()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})
	presence := core.NewPresence()
	router := core.NewRouter(st, blobs, presence, logger, core.WithBroadcastEcho(cfg.BroadcastEcho))
	hub := core.NewHub(router, presence, st, logger)

	server := NewServer(Deps{
		Hub:      hub,
		Router:   router,
		Unread:   core.NewUnreadAggregator(st),
		Presence: presence,
		Auth:     authService,
		Users:    st,
	}, &cfg, logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &testServer{ts: ts, store: st, auth: authService, presence: presence, router: router}
}

func (s *testServer) provision(t *testing.T, username, password string) {
	t.Helper()
	if _, err := s.auth.Provision(context.Background(), username, password); err != nil {
		t.Fatalf("provision %s: %v", username, err)
	}
}

func (s *testServer) wsURL(token string) string {
	u := strings.Replace(s.ts.URL, "http", "ws", 1) + "/ws"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

// getJSON performs a GET and decodes the body into out.
func (s *testServer) getJSON(t *testing.T, path, token string, out any) int {
	t.Helper()
	return s.doJSON(t, http.MethodGet, path, token, "", out)
}

func (s *testServer) doJSON(t *testing.T, method, path, token, body string, out any) int {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s response: %v", path, err)
		}
	}
	return resp.StatusCode
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	ctx  context.Context
}

func dialWS(t *testing.T, url string) *wsClient {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return &wsClient{t: t, conn: conn, ctx: ctx}
}

func (c *wsClient) send(typ string, data any) {
	c.t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		c.t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := wsjson.Write(c.ctx, c.conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		c.t.Fatalf("send %s: %v", typ, err)
	}
}

type rawOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// next reads frames until one matches the wanted event name, or
// "error" for an error frame.
func (c *wsClient) next(want string) rawOutbound {
	c.t.Helper()

	for {
		var out rawOutbound
		if err := wsjson.Read(c.ctx, c.conn, &out); err != nil {
			c.t.Fatalf("waiting for %s: %v", want, err)
		}
		if want == proto.OutboundTypeError && out.Type == proto.OutboundTypeError {
			return out
		}
		if out.Type == proto.OutboundTypeEvent && out.Event == want {
			return out
		}
	}
}

// authenticate claims username and waits for the own online status.
func (c *wsClient) authenticate(username string) {
	c.t.Helper()

	c.send(proto.InboundTypeAuthenticate, proto.AuthenticateData{Username: username})
	for {
		out := c.next(proto.EventUserStatus)
		var status proto.EventUserStatusData
		if err := json.Unmarshal(out.Data, &status); err != nil {
			c.t.Fatalf("decode status: %v", err)
		}
		if status.Username == username && status.Status == proto.StatusOnline {
			return
		}
	}
}
