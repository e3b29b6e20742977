package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apirest "github.com/kasuganosora/brotmon/api/rest"
	"github.com/kasuganosora/brotmon/api/sse"
	apows "github.com/kasuganosora/brotmon/api/ws"
	"github.com/kasuganosora/brotmon/audit"
	"github.com/kasuganosora/brotmon/cache"
	"github.com/kasuganosora/brotmon/config"
	"github.com/kasuganosora/brotmon/game/battle"
	"github.com/kasuganosora/brotmon/game/match"
	mw "github.com/kasuganosora/brotmon/middleware"
	"github.com/kasuganosora/brotmon/resource"
	"github.com/kasuganosora/brotmon/scheduler"
	"github.com/kasuganosora/brotmon/store"
	"github.com/kasuganosora/brotmon/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// TestServer wraps a real HTTP server with every subsystem wired together.
type TestServer struct {
	DB      *gorm.DB
	Cache   cache.Cache
	PubSub  cache.PubSub
	SM      *apows.SessionManager
	Service *match.Service
	Audit   *audit.Service
	Sched   *scheduler.Scheduler
	Server  *httptest.Server
	URL     string // http://127.0.0.1:<port>
	WSURL   string // ws://127.0.0.1:<port>/ws
	Sec     config.SecurityConfig
}

// midRNG makes rolls deterministic so damage is predictable.
type midRNG struct{}

func (midRNG) Float64() float64 { return 0.5 }
func (midRNG) Intn(n int) int   { return n - 1 }

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}

	catalog := resource.NewLoader("")
	require.NoError(t, catalog.Load())

	// ---- Services ----
	svc := match.NewService(store.New(db), catalog, nil, pubsub, match.Config{
		NewRNG: func() battle.RNG { return midRNG{} },
	}, logger)
	auditSvc := audit.New(db, logger)
	sched := scheduler.New(logger)
	sched.AddTicker("commit_retry", time.Hour, func(ctx context.Context) error {
		_, err := svc.RetryPendingCommits(ctx)
		return err
	})

	// ---- WS Router ----
	sm := apows.NewSessionManager(logger)
	wsRouter := apows.NewRouter(logger)
	apows.NewBattleHandlers(svc, pubsub, auditSvc, logger).RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server ----
	rl := mw.NewRateLimiter(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst)
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(rl.Middleware())

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "ws_sessions": sm.Count()})
	})

	api := r.Group("/api")
	apirest.Register(api, apirest.Deps{
		DB:        db,
		Cache:     c,
		Security:  sec,
		AdminIPs:  []string{"127.0.0.1", "::1"},
		Catalog:   catalog,
		Service:   svc,
		Scheduler: sched,
		Audit:     auditSvc,
		Logger:    logger,
	})
	api.GET("/battles/:id/events", mw.Auth(sec, c), sse.NewHandler(pubsub, svc, logger).ServeEvents)
	r.GET("/ws", mw.Auth(sec, c), apows.NewHandler(sec, sm, wsRouter, logger).ServeWS)

	srv := httptest.NewServer(r)
	ts := &TestServer{
		DB:      db,
		Cache:   c,
		PubSub:  pubsub,
		SM:      sm,
		Service: svc,
		Audit:   auditSvc,
		Sched:   sched,
		Server:  srv,
		URL:     srv.URL,
		WSURL:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		Sec:     sec,
	}
	t.Cleanup(func() {
		srv.Close()
		sched.Stop()
		rl.Stop()
		auditSvc.Stop(context.Background())
	})
	return ts
}

// --- HTTP helpers ---

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body any, token string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Domain helpers ---

// Login logs in (auto-registers on first call) and returns the token and account ID.
func (ts *TestServer) Login(t *testing.T, username, password string) (token string, accountID int64) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		Token     string `json:"token"`
		AccountID int64  `json:"account_id"`
	}
	ReadJSON(t, resp, &result)
	return result.Token, result.AccountID
}

// CreateTrainer creates a trainer with the given species and returns it.
func (ts *TestServer) CreateTrainer(t *testing.T, token, name string, species ...string) *match.Trainer {
	t.Helper()
	resp := ts.PostJSON(t, "/api/trainers", map[string]any{
		"username": name,
		"emoji":    "🧠",
		"brotmons": species,
	}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result struct {
		Trainer *match.Trainer `json:"trainer"`
	}
	ReadJSON(t, resp, &result)
	return result.Trainer
}

// Act submits an action over REST and returns the decoded result.
func (ts *TestServer) Act(t *testing.T, token, battleID, trainerID, kind, target string) *match.SubmitResult {
	t.Helper()
	resp := ts.PostJSON(t, "/api/battles/"+battleID+"/actions", map[string]string{
		"trainer_id": trainerID,
		"kind":       kind,
		"target_id":  target,
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res match.SubmitResult
	ReadJSON(t, resp, &res)
	return &res
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection for integration testing.
// A background readLoop feeds readCh so timeouts never touch the conn.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	seq    uint64
	readCh chan readResult
}

type readResult struct {
	data []byte
	err  error
}

// ConnectWS dials the test server's WS endpoint with the given JWT token.
func (ts *TestServer) ConnectWS(t *testing.T, token string) *WSClient {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.WSURL+"?token="+token, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	go wc.readLoop()
	t.Cleanup(wc.Close)
	return wc
}

func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Send writes a packet with the next sequence number.
func (wc *WSClient) Send(msgType string, payload any) {
	wc.t.Helper()
	seq := atomic.AddUint64(&wc.seq, 1)
	p, err := json.Marshal(payload)
	require.NoError(wc.t, err)
	data, err := json.Marshal(apows.Packet{Seq: seq, Type: msgType, Payload: p})
	require.NoError(wc.t, err)
	require.NoError(wc.t, wc.Conn.WriteMessage(websocket.TextMessage, data))
}

// RecvType reads packets until one with the given type is found.
func (wc *WSClient) RecvType(msgType string, timeout time.Duration) apows.Packet {
	wc.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case res := <-wc.readCh:
			require.NoError(wc.t, res.err, "WS recv failed while waiting for %q", msgType)
			var pkt apows.Packet
			require.NoError(wc.t, json.Unmarshal(res.data, &pkt))
			if pkt.Type == msgType {
				return pkt
			}
		case <-deadline:
			wc.t.Fatalf("timed out waiting for message type %q", msgType)
			return apows.Packet{}
		}
	}
}

// RecvEvent reads "battle_event" packets until one of the given event type.
func (wc *WSClient) RecvEvent(eventType string, timeout time.Duration) match.Event {
	wc.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		pkt := wc.RecvType("battle_event", time.Until(deadline))
		var ev match.Event
		require.NoError(wc.t, json.Unmarshal(pkt.Payload, &ev))
		if ev.Type == eventType {
			return ev
		}
	}
}

// Close closes the WebSocket connection.
func (wc *WSClient) Close() {
	_ = wc.Conn.Close()
}

// --- SSE client ---

// SSEEvent is one parsed server-sent event.
type SSEEvent struct {
	Name string
	Data string
}

// StreamEvents opens the battle's event stream and returns a channel of
// parsed events. The first event is always "connected"; it is consumed
// here so the subscription is live when StreamEvents returns.
func (ts *TestServer) StreamEvents(t *testing.T, token, battleID string) <-chan SSEEvent {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/battles/"+battleID+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	t.Cleanup(func() { resp.Body.Close() })

	out := make(chan SSEEvent, 32)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(resp.Body)
		var ev SSEEvent
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.Name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.Data = strings.TrimPrefix(line, "data: ")
			case line == "" && ev.Name != "":
				out <- ev
				ev = SSEEvent{}
			}
		}
	}()

	select {
	case first := <-out:
		require.Equal(t, "connected", first.Name)
	case <-time.After(3 * time.Second):
		t.Fatal("no connected event")
	}
	return out
}

// UniqueID returns a short unique string suitable for usernames.
var testCounter uint64

func UniqueID(prefix string) string {
	n := atomic.AddUint64(&testCounter, 1)
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%100000, n)
}
