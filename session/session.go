package session

import (
	"fmt"
	"time"

	"github.com/mohammad-safakhou/lessonplanner/internal/store"
	"github.com/mohammad-safakhou/lessonplanner/repository/redis_repository"
	"github.com/mohammad-safakhou/lessonplanner/session/inmemory"
	"github.com/mohammad-safakhou/lessonplanner/session/session_models"
	"github.com/redis/go-redis/v9"
)

type StoreType string

const (
	InMemoryStore StoreType = "memory"
	RedisStore    StoreType = "redis"
	PostgresStore StoreType = "postgres"
)

// Backends carries the connections a store type may need. Only the one
// matching the requested type has to be set.
type Backends struct {
	Redis      *redis.Client
	SessionTTL time.Duration
	Postgres   *store.Store
}

// NewStore returns the session store for storeType. An empty type selects
// the in-memory store.
func NewStore(storeType StoreType, b Backends) (session_models.Store, error) {
	switch storeType {
	case "", InMemoryStore:
		return inmemory.NewInMemorySessionStore(), nil
	case RedisStore:
		if b.Redis == nil {
			return nil, fmt.Errorf("redis session store requires a redis client")
		}
		return redis_repository.NewRedisSessionRepository(b.Redis, b.SessionTTL), nil
	case PostgresStore:
		if b.Postgres == nil {
			return nil, fmt.Errorf("postgres session store requires a database")
		}
		return b.Postgres, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}
}
