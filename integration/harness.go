// Package integration drives the full server over real HTTP and
// WebSocket connections.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apirest "github.com/kasuganosora/kadim/server/api/rest"
	apiws "github.com/kasuganosora/kadim/server/api/ws"
	"github.com/kasuganosora/kadim/server/audit"
	"github.com/kasuganosora/kadim/server/cache"
	"github.com/kasuganosora/kadim/server/config"
	"github.com/kasuganosora/kadim/server/events"
	"github.com/kasuganosora/kadim/server/game/dailyquest"
	"github.com/kasuganosora/kadim/server/game/event"
	"github.com/kasuganosora/kadim/server/game/guild"
	"github.com/kasuganosora/kadim/server/game/mail"
	"github.com/kasuganosora/kadim/server/game/party"
	"github.com/kasuganosora/kadim/server/game/premium"
	"github.com/kasuganosora/kadim/server/game/trade"
	mw "github.com/kasuganosora/kadim/server/middleware"
	"github.com/kasuganosora/kadim/server/scheduler"
	"github.com/kasuganosora/kadim/server/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const adminKey = "integration-admin"

// TestServer wraps a real HTTP server with every subsystem wired together.
type TestServer struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	Audit  *audit.Memory
	Hub    *apiws.Hub
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
	WSURL  string // ws://127.0.0.1:<port>/ws
	Sec    config.SecurityConfig
}

// NewTestServer creates a fully wired server. It mirrors the wiring in
// main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	cfg := config.Defaults()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}
	rec := &audit.Memory{}
	bus := events.NewBus(pubsub, nil, logger)

	eventSvc := event.NewService(db, logger)
	questSvc := dailyquest.NewService(db, cfg.Game, logger)
	questSvc.UseBoosts(eventSvc)
	partySvc := party.NewService(db, bus, questSvc, cfg.Game, logger)
	guildSvc := guild.NewService(db, bus, rec, cfg.Game, logger)
	tradeSvc := trade.NewService(db, c, bus, rec, cfg.Game, logger)
	mailSvc := mail.NewService(db, bus, questSvc, rec, cfg.Game, logger)
	premiumSvc := premium.NewService(db, mailSvc, rec, cfg.Game, logger)

	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)
	sched.AddTicker("mail_purge", time.Hour, func(ctx context.Context) error {
		_, err := mailSvc.PurgeExpired(ctx)
		return err
	})

	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))
	r.GET("/health", apirest.Health)

	apirest.Register(r, apirest.Handlers{
		Auth:       apirest.NewAuthHandler(db, c, sec, logger),
		Character:  apirest.NewCharacterHandler(db, cfg.Game, logger),
		Party:      apirest.NewPartyHandler(db, partySvc, logger),
		Guild:      apirest.NewGuildHandler(db, guildSvc, logger),
		Trade:      apirest.NewTradeHandler(db, tradeSvc, logger),
		Mail:       apirest.NewMailHandler(db, mailSvc, logger),
		DailyQuest: apirest.NewDailyQuestHandler(db, questSvc, logger),
		Premium:    apirest.NewPremiumHandler(premiumSvc, logger),
		Event:      apirest.NewEventHandler(db, eventSvc, bus, rec, logger),
		Admin:      apirest.NewAdminHandler(db, c, mailSvc, bus, sched, rec, logger),
	}, mw.Auth(sec, c), apirest.AdminGuards(adminKey, nil)...)

	hub := apiws.NewHub(logger)
	wsH := apiws.NewHandler(pubsub, c, sec, apiws.NewRouter(logger), hub, logger)
	r.GET("/ws", wsH.ServeWS)

	server := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.CloseAll()
		server.Close()
	})

	return &TestServer{
		DB:     db,
		Cache:  c,
		PubSub: pubsub,
		Audit:  rec,
		Hub:    hub,
		Server: server,
		URL:    server.URL,
		WSURL:  "ws" + server.URL[len("http"):] + "/ws",
		Sec:    sec,
	}
}

// Do sends a JSON request and decodes the JSON response. headers are
// name/value pairs.
func (ts *TestServer) Do(t *testing.T, method, path string, body any, token string, headers ...string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), "body: %s", string(data))
	}
	return resp.StatusCode, out
}

// Player is a registered account with one character.
type Player struct {
	Name      string
	Token     string
	AccountID int64
	CharID    int64
}

// Header selects the player's character on character-scoped routes.
func (p Player) Header() []string {
	return []string{apirest.CharacterHeader, fmt.Sprint(p.CharID)}
}

// NewPlayer registers an account and creates a character with the same name.
func (ts *TestServer) NewPlayer(t *testing.T, prefix string) Player {
	t.Helper()
	name := UniqueID(prefix)
	code, body := ts.Do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"username": name,
		"email":    name + "@example.com",
		"password": name + "pass",
	}, "")
	require.Equal(t, http.StatusCreated, code, body)
	p := Player{
		Name:      name,
		Token:     body["token"].(string),
		AccountID: int64(body["user"].(map[string]any)["id"].(float64)),
	}
	code, body = ts.Do(t, http.MethodPost, "/api/character", map[string]string{"name": name, "class": "warrior"}, p.Token)
	require.Equal(t, http.StatusCreated, code, body)
	p.CharID = int64(body["id"].(float64))
	return p
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection with a background read loop.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	seq    uint64
	readCh chan readResult
}

type readResult struct {
	pkt apiws.Packet
	err error
}

// ConnectWS dials /ws and waits for the connected packet.
func (ts *TestServer) ConnectWS(t *testing.T, token string) *WSClient {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.WSURL+"?token="+token, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	t.Cleanup(wc.Close)
	go wc.readLoop()
	wc.RecvType("connected", 5*time.Second)
	return wc
}

func (wc *WSClient) readLoop() {
	for {
		var pkt apiws.Packet
		err := wc.Conn.ReadJSON(&pkt)
		wc.readCh <- readResult{pkt, err}
		if err != nil {
			return
		}
	}
}

// Send writes one packet with the next sequence number.
func (wc *WSClient) Send(msgType string, payload any) {
	wc.t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(wc.t, err)
	pkt := apiws.Packet{Seq: atomic.AddUint64(&wc.seq, 1), Type: msgType, Payload: raw}
	require.NoError(wc.t, wc.Conn.WriteJSON(pkt))
}

// RecvType reads packets until one of msgType arrives and returns its
// decoded event.
func (wc *WSClient) RecvType(msgType string, timeout time.Duration) events.Event {
	wc.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case res := <-wc.readCh:
			require.NoError(wc.t, res.err, "WS recv failed while waiting for %q", msgType)
			if res.pkt.Type != msgType {
				continue
			}
			var ev events.Event
			if res.pkt.Type != "connected" && res.pkt.Type != "pong" {
				require.NoError(wc.t, json.Unmarshal(res.pkt.Payload, &ev))
			}
			ev.Type = events.Type(res.pkt.Type)
			return ev
		case <-deadline:
			wc.t.Fatalf("timed out waiting for message type %q", msgType)
			return events.Event{}
		}
	}
}

// Close closes the WebSocket connection.
func (wc *WSClient) Close() {
	_ = wc.Conn.Close()
}

// DataMap decodes an event's data as a JSON object.
func DataMap(t *testing.T, ev events.Event) map[string]any {
	t.Helper()
	m := map[string]any{}
	require.NoError(t, json.Unmarshal(ev.Data, &m))
	return m
}

var testCounter uint64

// UniqueID returns a short unique string suitable for usernames and
// character names.
func UniqueID(prefix string) string {
	n := atomic.AddUint64(&testCounter, 1)
	return fmt.Sprintf("%s%d", prefix, n)
}
