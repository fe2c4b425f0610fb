package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 2 * time.Second

// RedisStore keeps the token and avatar hint in Redis, for shared or
// headless deployments where several client processes reuse one session.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed token store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "appsaludable:session:",
	}
}

func (r *RedisStore) key(name string) string {
	return r.prefix + name
}

func (r *RedisStore) get(name string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	val, err := r.client.Get(ctx, r.key(name)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		return "", false
	}
	return val, val != ""
}

func (r *RedisStore) set(name, val string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	return r.client.Set(ctx, r.key(name), val, 0).Err()
}

func (r *RedisStore) Token() (string, bool) {
	return r.get("access_token")
}

func (r *RedisStore) SetToken(token string) error {
	return r.set("access_token", token)
}

func (r *RedisStore) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	return r.client.Del(ctx, r.key("access_token"), r.key("avatar_hint")).Err()
}

func (r *RedisStore) AvatarHint() (string, bool) {
	return r.get("avatar_hint")
}

func (r *RedisStore) SetAvatarHint(url string) error {
	return r.set("avatar_hint", url)
}
