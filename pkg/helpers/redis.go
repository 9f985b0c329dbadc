package helpers

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds the client behind the login/register rate limiter.
// Timeouts are kept short; callers treat any Redis error as "allow".
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		MaxRetries:   1,
	})
}
