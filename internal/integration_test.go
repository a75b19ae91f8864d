package internal

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vending-panel-backend/config"
	"vending-panel-backend/internal/access"
	"vending-panel-backend/internal/api"
	"vending-panel-backend/internal/db"
	"vending-panel-backend/internal/identity"
	"vending-panel-backend/internal/mw"
	"vending-panel-backend/internal/notification"
	"vending-panel-backend/internal/parse"
	"vending-panel-backend/internal/session"
	"vending-panel-backend/internal/status"
	"vending-panel-backend/internal/store"
	"vending-panel-backend/internal/tree"
	"vending-panel-backend/internal/watcher"
)

const adminEmail = "admin@example.com"

var istanbul = time.FixedZone("UTC+3", 3*3600)

type accounts struct {
	mu        sync.Mutex
	passwords map[string]string
	ids       map[string]string
}

func (a *accounts) SignIn(_ context.Context, email, password string) (identity.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if pw, ok := a.passwords[email]; !ok || pw != password {
		return identity.Account{}, &identity.ProviderError{Status: 400, Message: "INVALID_LOGIN_CREDENTIALS"}
	}
	return identity.Account{LocalID: a.ids[email], Email: email}, nil
}

func (a *accounts) SignUp(_ context.Context, email, password string) (identity.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.passwords[email]; ok {
		return identity.Account{}, &identity.ProviderError{Status: 400, Message: "EMAIL_EXISTS"}
	}
	uid := fmt.Sprintf("user%d", len(a.ids)+1)
	a.passwords[email] = password
	a.ids[email] = uid
	return identity.Account{LocalID: uid, Email: email}, nil
}

type stack struct {
	tree   tree.Tree
	store  store.Store
	router *gin.Engine
}

func newStack(t *testing.T, name string, push *webpush.Options) *stack {
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Firebase.DBURL = fmt.Sprintf("sqlite:file:%s?mode=memory&cache=shared", name)
	gormDB, err := db.Init(cfg, zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	data := tree.NewSQL(gormDB)
	st := store.NewTreeStore(data, istanbul, zap.NewNop())
	gate := access.NewGate(&accounts{
		passwords: map[string]string{adminEmail: "root"},
		ids:       map[string]string{adminEmail: "admin"},
	}, st, access.Options{AdminEmail: adminEmail, DefaultMachine: "ETM_001", PlaceholderMachine: "DEMO"}, zap.NewNop())
	sessions, err := session.NewManager("integration", time.Hour)
	require.NoError(t, err)

	h := api.NewHandler(api.Deps{
		Store:     st,
		Gate:      gate,
		Sessions:  sessions,
		Evaluator: status.NewEvaluator(5*time.Minute, istanbul),
		WebPush:   push,
		Location:  istanbul,
	})
	return &stack{tree: data, store: st, router: api.NewRouter(h, api.RouterOptions{AuthRateLimit: 100, AuthRateBurst: 100})}
}

func (s *stack) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: mw.CookieName, Value: token})
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *stack) login(t *testing.T, email, password string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

// TestDealerOnboarding walks a dealer from registration through approval to
// operating a machine.
func TestDealerOnboarding(t *testing.T) {
	s := newStack(t, "onboarding", nil)
	require.NoError(t, s.tree.Set(t.Context(), "machines/ETM_001/info", map[string]any{"location": "Moda"}))
	require.NoError(t, s.tree.Set(t.Context(), "machines/ETM_002/slots", map[string]any{
		"1": map[string]any{"price": 50, "enabled": true, "product_name": "Gül"},
	}))

	w := s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"full_name": "Deniz Bayi", "email": "deniz@example.com", "password": "secret",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "deniz@example.com", "password": "secret"})
	assert.Equal(t, http.StatusForbidden, w.Code, "unapproved dealers cannot sign in")

	admin := s.login(t, adminEmail, "root")
	w = s.do(t, http.MethodGet, "/api/admin/users", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listing struct {
		Users []struct {
			ID            string   `json:"id"`
			Approved      bool     `json:"approved"`
			Machines      []string `json:"machines"`
			StaleMachines []string `json:"stale_machines"`
		} `json:"users"`
		Registry []string `json:"registry"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Equal(t, []string{"ETM_001", "ETM_002"}, listing.Registry)
	require.Len(t, listing.Users, 1)
	assert.False(t, listing.Users[0].Approved)
	assert.Equal(t, []string{"DEMO"}, listing.Users[0].StaleMachines)

	uid := listing.Users[0].ID
	w = s.do(t, http.MethodPut, "/api/admin/users/"+uid, admin, gin.H{"approved": true, "machines": []string{"ETM_002"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	dealer := s.login(t, "deniz@example.com", "secret")

	w = s.do(t, http.MethodGet, "/api/machines/ETM_001/slots", dealer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/machines/ETM_002/slots", dealer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"product_name":"Gül"`)

	w = s.do(t, http.MethodPost, "/api/machines/ETM_002/slots/1/open", dealer, nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	raw, err := s.tree.Get(t.Context(), "machines/ETM_002/commands/open_gate")
	require.NoError(t, err)
	assert.JSONEq(t, `"1"`, string(raw))
}

type pushEndpoint struct {
	mu       sync.Mutex
	received map[string]int
}

func (p *pushEndpoint) hits(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.received[path]
}

func browserKeys(t *testing.T) (p256dh, auth string) {
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	secret := make([]byte, 16)
	_, err = rand.Read(secret)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()), base64.RawURLEncoding.EncodeToString(secret)
}

// TestOutageAlertLifecycle takes a machine offline and back online and
// checks that subscribers hear about the recovery and dead endpoints are
// pruned.
func TestOutageAlertLifecycle(t *testing.T) {
	endpoint := &pushEndpoint{received: make(map[string]int)}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint.mu.Lock()
		endpoint.received[r.URL.Path]++
		endpoint.mu.Unlock()
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	private, public, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	push := &webpush.Options{VAPIDPublicKey: public, VAPIDPrivateKey: private, Subscriber: "mailto:ops@example.com", TTL: 60}

	s := newStack(t, "outage", push)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	heartbeat := func(age time.Duration) {
		require.NoError(t, s.tree.Update(ctx, "machines/ETM_001/info", map[string]any{
			"last_seen":     parse.FormatLocal(time.Now().Add(-age), istanbul),
			"online_status": true,
			"location":      "Kadıköy",
		}))
	}
	heartbeat(10 * time.Minute)

	admin := s.login(t, adminEmail, "root")
	for _, path := range []string{"/live", "/gone"} {
		p256dh, auth := browserKeys(t)
		w := s.do(t, http.MethodPut, "/api/subscriptions", admin, gin.H{
			"endpoint": server.URL + path, "p256dh": p256dh, "auth": auth,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := s.do(t, http.MethodGet, "/api/machines", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"offline"`)

	pool := notification.NewWorkerPool(2, s.store, push, zap.NewNop())
	pool.Start(ctx)
	svc := watcher.NewService(s.store, status.NewEvaluator(5*time.Minute, istanbul), pool, time.Hour, zap.NewNop())

	assert.Empty(t, svc.SweepOnce(ctx), "first sweep only records state")

	heartbeat(0)
	alerts := svc.SweepOnce(ctx)
	require.Len(t, alerts, 1)
	assert.Equal(t, status.Online, alerts[0].Status)
	assert.Equal(t, "ETM_001 (Kadıköy) tekrar çevrimiçi.", alerts[0].Message())

	require.Eventually(t, func() bool {
		subs, err := s.store.ListSubscriptions(ctx)
		return err == nil && len(subs) == 1 && endpoint.hits("/live") == 1
	}, 5*time.Second, 20*time.Millisecond)

	subs, err := s.store.ListSubscriptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/live", subs[0].Endpoint)
	assert.Equal(t, 1, endpoint.hits("/gone"))

	w = s.do(t, http.MethodGet, "/api/machines", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"online"`)

	assert.Empty(t, svc.SweepOnce(ctx), "steady state raises nothing")
}
