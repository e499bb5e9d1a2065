package test

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
)

// NewRedisDB connects to the redis server at REDIS_URL, or at
// REDIS_HOST with the default test credentials. Each call picks one of
// the 16 logical DBs at random so concurrently running packages rarely
// share keys. Callers skip their test when it fails.
func NewRedisDB() (*redis.Client, error) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		host := os.Getenv("REDIS_HOST")
		if host == "" {
			host = "localhost"
		}
		// nolint:gosec // crypto/rand not applicable for test package
		redisURL = fmt.Sprintf("redis://:swordfish@%s:6379/%d", host, rand.Intn(16))
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	opts.DialTimeout = time.Second

	db := redis.NewClient(opts)
	if err = db.Ping(context.Background()).Err(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
