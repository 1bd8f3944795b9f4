package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"math-canvas/api/internal/store"
)

func TestHealthHandler_MemoryStore(t *testing.T) {
	rec := httptest.NewRecorder()
	healthHandler(store.NewMemoryStore())(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestHealthHandler_DeadRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	s := store.NewRedisStoreWithClient(client, time.Minute)
	defer s.Close()

	rec := httptest.NewRecorder()
	healthHandler(s)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "store: not ok")
}

func TestShortHashStable(t *testing.T) {
	assert.Equal(t, shortHash("token"), shortHash("token"))
	assert.Len(t, shortHash("token"), 16)
	assert.NotEqual(t, shortHash("a"), shortHash("b"))
}

func TestSafeDSNSummaryHidesPassword(t *testing.T) {
	got := safeDSNSummary("postgres://user:secret@db:5432/mathcanvas?sslmode=disable")
	assert.Equal(t, "host=db port=5432 db=mathcanvas user=user", got)
	assert.NotContains(t, got, "secret")
}
