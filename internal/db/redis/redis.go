package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mediocregopher/radix/v4"

	"ely.by/changeskin/internal/utils"
)

// Redis is the names cache shared between all instances of the service,
// so the upstream budget isn't spent on the same name by each instance separately
type Redis struct {
	client radix.Client
	ttl    time.Duration
}

func New(ctx context.Context, addr string, poolSize int, ttl time.Duration) (*Redis, error) {
	client, err := (radix.PoolConfig{Size: poolSize}).New(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	return &Redis{
		client: client,
		ttl:    ttl,
	}, nil
}

// GetUuidForName returns found = false when there is no record for the name.
// A found record with uuid.Nil means that the name is known to have no account
func (r *Redis) GetUuidForName(ctx context.Context, name string) (uuid.UUID, bool, error) {
	var result string
	err := r.client.Do(ctx, radix.Cmd(&result, "GET", buildNameKey(name)))
	if err != nil {
		return uuid.Nil, false, err
	}

	if result == "" {
		return uuid.Nil, false, nil
	}

	// The value has the "Name:uuid" form. The name part is kept for debugging purposes
	idx := strings.LastIndexByte(result, ':')
	if idx == -1 {
		return uuid.Nil, false, fmt.Errorf("invalid value %q stored for the name %s", result, name)
	}

	rawId := result[idx+1:]
	if rawId == "" {
		return uuid.Nil, true, nil
	}

	id, err := utils.ParseUuid(rawId)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("invalid uuid stored for the name %s: %w", name, err)
	}

	return id, true, nil
}

// StoreUuid saves the result of the name resolution. Pass uuid.Nil to remember a nonexistent account
func (r *Redis) StoreUuid(ctx context.Context, name string, id uuid.UUID) error {
	var rawId string
	if id != uuid.Nil {
		rawId = utils.MojangId(id)
	}

	value := fmt.Sprintf("%s:%s", name, rawId)

	return r.client.Do(ctx, radix.FlatCmd(nil, "SET", buildNameKey(name), value, "EX", int(r.ttl.Seconds())))
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Do(ctx, radix.Cmd(nil, "PING"))
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func buildNameKey(name string) string {
	return fmt.Sprintf("changeskin:uuid:%s", strings.ToLower(name))
}
