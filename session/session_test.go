package session

import (
	"testing"

	"github.com/mohammad-safakhou/lessonplanner/session/inmemory"
	"github.com/redis/go-redis/v9"
)

func TestNewStoreSelectsBackend(t *testing.T) {
	s, err := NewStore("", Backends{})
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	if _, ok := s.(*inmemory.Store); !ok {
		t.Fatalf("expected in-memory store, got %T", s)
	}

	if _, err := NewStore(RedisStore, Backends{}); err == nil {
		t.Fatalf("expected error without redis client")
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	if _, err := NewStore(RedisStore, Backends{Redis: client}); err != nil {
		t.Fatalf("redis store: %v", err)
	}

	if _, err := NewStore(PostgresStore, Backends{}); err == nil {
		t.Fatalf("expected error without database")
	}
	if _, err := NewStore("sqlite", Backends{}); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}
