package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	biddersKey         = "identity:bidders"
	constituencyKeyFmt = "identity:constituency:%s:members"
)

// RedisDirectory reads the directory that the user service projects into Redis:
// a hash of user id -> contractor id and one set of user ids per constituency.
type RedisDirectory struct {
	client *redis.Client
}

// NewRedisDirectory connects and pings, like the other Redis clients in this codebase.
func NewRedisDirectory(addr, password string, db int) (*RedisDirectory, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisDirectory{client: rdb}, nil
}

func (d *RedisDirectory) BidderFor(ctx context.Context, userID string) (string, bool, error) {
	id, err := d.client.HGet(ctx, biddersKey, userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup bidder: %w", err)
	}
	return id, id != "", nil
}

func (d *RedisDirectory) AssignedToConstituency(ctx context.Context, userID, constituencyID string) (bool, error) {
	ok, err := d.client.SIsMember(ctx, fmt.Sprintf(constituencyKeyFmt, constituencyID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("lookup constituency assignment: %w", err)
	}
	return ok, nil
}

func (d *RedisDirectory) Close() error {
	return d.client.Close()
}
