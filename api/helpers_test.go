package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"auctionhall/adapters/gormstore"
	"auctionhall/adapters/sse"
	"auctionhall/auction"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type testServer struct {
	impl    *ServerImpl
	router  *gin.Engine
	store   *gormstore.Store
	clock   *testClock
	private ed25519.PrivateKey
}

func newTestStore(t *testing.T) *gormstore.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	store, err := gormstore.New(db)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func newTestServer(t *testing.T, config ServerConfig, modify ...func(*components)) *testServer {
	t.Helper()
	public, private, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	clock := &testClock{now: testNow}
	store := newTestStore(t)
	manager := sse.NewConnectionManager[auction.Event]()
	c := components{
		store:      store,
		locker:     auction.NewLocalLocker(time.Second),
		notifier:   sse.NewNotifier(manager),
		sseManager: manager,
		publicKey:  public,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:      clock.Now,
	}
	for _, fn := range modify {
		fn(&c)
	}
	impl, err := newServerImpl(config, c)
	require.NoError(t, err)
	impl.Start()
	t.Cleanup(impl.Close)

	return &testServer{
		impl:    impl,
		router:  impl.Router(),
		store:   store,
		clock:   clock,
		private: private,
	}
}

func (s *testServer) token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, JWT{
		Username: "tester",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(s.private)
	require.NoError(t, err)
	return signed
}

// do 送出請求，user 為 uuid.Nil 時不帶 access token
func (s *testServer) do(t *testing.T, method, path string, user uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(v)
	case string:
		reader = bytes.NewBufferString(v)
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+s.token(t, user))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) createAuction(t *testing.T, seller uuid.UUID, startingPrice string) uuid.UUID {
	t.Helper()
	w := s.do(t, http.MethodPost, "/auctions", seller, map[string]any{
		"title":         "Vintage camera",
		"description":   "Works fine",
		"startingPrice": startingPrice,
		"endTime":       testNow.Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[struct {
		ID uuid.UUID `json:"id"`
	}](t, w).ID
}
