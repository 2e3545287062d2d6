package http

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/parleychat/parley-server/internal/auth"
	"github.com/parleychat/parley-server/internal/store"
	"github.com/parleychat/parley-server/internal/store/sqlite"
)

// createTestStore creates an in-memory SQLite store with schema applied.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	s, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestAuthService creates an auth service over the given store.
func createTestAuthService(st store.Store) *auth.Service {
	cfg := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "parley-test",
		Audience: "parley-test",
		TTL:      time.Hour,
	}
	return auth.NewService(st, cfg)
}

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}
