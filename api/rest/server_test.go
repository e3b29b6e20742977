package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/brotmon/api/rest"
	"github.com/kasuganosora/brotmon/audit"
	"github.com/kasuganosora/brotmon/config"
	"github.com/kasuganosora/brotmon/game/battle"
	"github.com/kasuganosora/brotmon/game/match"
	"github.com/kasuganosora/brotmon/resource"
	"github.com/kasuganosora/brotmon/scheduler"
	"github.com/kasuganosora/brotmon/store"
	"github.com/kasuganosora/brotmon/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Requests from httptest come from 192.0.2.1.
const testClientIP = "192.0.2.1"

type fixedRNG struct{}

func (fixedRNG) Float64() float64 { return 0.5 }
func (fixedRNG) Intn(n int) int   { return n - 1 }

type recordingAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *recordingAuditor) Log(e audit.Entry) {
	a.mu.Lock()
	a.entries = append(a.entries, e)
	a.mu.Unlock()
}

func (a *recordingAuditor) all() []audit.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audit.Entry(nil), a.entries...)
}

type server struct {
	r     *gin.Engine
	db    *gorm.DB
	svc   *match.Service
	sched *scheduler.Scheduler
	audit *recordingAuditor
}

func newServer(t *testing.T, adminIPs ...string) *server {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	cat := resource.NewLoader("")
	require.NoError(t, cat.Load())

	svc := match.NewService(store.New(db), cat, nil, ps, match.Config{
		NewRNG: func() battle.RNG { return fixedRNG{} },
	}, zap.NewNop())
	sched := scheduler.New(zap.NewNop())
	t.Cleanup(sched.Stop)
	aud := &recordingAuditor{}

	r := gin.New()
	rest.Register(r.Group("/api"), rest.Deps{
		DB:        db,
		Cache:     c,
		Security:  config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: time.Hour},
		AdminIPs:  adminIPs,
		Catalog:   cat,
		Service:   svc,
		Scheduler: sched,
		Audit:     aud,
		Logger:    zap.NewNop(),
	})
	return &server{r: r, db: db, svc: svc, sched: sched, audit: aud}
}

func (s *server) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func (s *server) login(t *testing.T, username string) string {
	t.Helper()
	w := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": username, "password": "pass1234"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, w, &resp)
	return resp.Token
}

func (s *server) trainer(t *testing.T, token, name string, species ...string) *match.Trainer {
	t.Helper()
	w := s.do(http.MethodPost, "/api/trainers", token, map[string]any{"username": name, "emoji": "🧠", "brotmons": species})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Trainer *match.Trainer `json:"trainer"`
	}
	decode(t, w, &resp)
	return resp.Trainer
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error string `json:"error"`
	}
	decode(t, w, &resp)
	return resp.Error
}
