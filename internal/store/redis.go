package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/filipviz/juicebox-tweeter/internal/model"
)

// advanceScript sets KEYS[1] to ARGV[1] only when it is greater than the
// stored value. Returns 1 when written.
var advanceScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == false or tonumber(ARGV[1]) > tonumber(cur) then
  redis.call('SET', KEYS[1], ARGV[1])
  return 1
end
return 0
`)

// RedisCursor stores the position under {name}:cursor. The compare-and-set
// runs server side so concurrent writers cannot move the value backwards.
type RedisCursor struct {
	client *redis.Client
	key    string
}

// NewRedisCursor parses url, connects and pings the server.
func NewRedisCursor(url, name string) (*RedisCursor, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisCursorFromClient(client, name), nil
}

func NewRedisCursorFromClient(client *redis.Client, name string) *RedisCursor {
	return &RedisCursor{client: client, key: name + ":cursor"}
}

func (r *RedisCursor) Name() string { return "redis" }

func (r *RedisCursor) Load(ctx context.Context) (model.Position, bool, error) {
	s, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse cursor %q: %w", s, err)
	}
	return model.Position(n), true, nil
}

func (r *RedisCursor) Advance(ctx context.Context, pos model.Position) error {
	v := strconv.FormatUint(uint64(pos), 10)
	if err := advanceScript.Run(ctx, r.client, []string{r.key}, v).Err(); err != nil {
		return &PersistenceError{Backend: r.Name(), Pos: pos, Err: err}
	}
	return nil
}

func (r *RedisCursor) Close() error { return r.client.Close() }
