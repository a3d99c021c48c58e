/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package filestate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix is a prefix of Redis keys holding per-client file states.
const DefaultRedisKeyPrefix = "jlfu:filestate"

// RedisProvider reads persisted file states from Redis.
// Every client has one hash (<prefix>:<clientID>) where a field is a file identifier
// and a value is the JSON-encoded FileState.
type RedisProvider struct {
	rdb       redis.UniversalClient
	keyPrefix string
}

var _ Provider = (*RedisProvider)(nil)

// RedisProviderOption configures RedisProvider.
type RedisProviderOption func(*RedisProvider)

// WithRedisKeyPrefix overrides DefaultRedisKeyPrefix.
func WithRedisKeyPrefix(prefix string) RedisProviderOption {
	return func(p *RedisProvider) {
		if prefix = strings.Trim(prefix, ":"); prefix != "" {
			p.keyPrefix = prefix
		}
	}
}

// NewRedisProvider creates a new RedisProvider on top of the given client.
func NewRedisProvider(rdb redis.UniversalClient, opts ...RedisProviderOption) *RedisProvider {
	p := &RedisProvider{rdb: rdb, keyPrefix: DefaultRedisKeyPrefix}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *RedisProvider) key(clientID uuid.UUID) string {
	return p.keyPrefix + ":" + clientID.String()
}

// FileStates implements Provider.
func (p *RedisProvider) FileStates(ctx context.Context, clientID uuid.UUID) (map[uuid.UUID]FileState, error) {
	fields, err := p.rdb.HGetAll(ctx, p.key(clientID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get file states of client %s: %w", clientID, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	res := make(map[uuid.UUID]FileState, len(fields))
	for field, value := range fields {
		fileID, parseErr := uuid.Parse(field)
		if parseErr != nil {
			return nil, fmt.Errorf("parse file id %q of client %s: %w", field, clientID, parseErr)
		}
		var state FileState
		if unmarshalErr := json.Unmarshal([]byte(value), &state); unmarshalErr != nil {
			return nil, fmt.Errorf("unmarshal state of file %s: %w", fileID, unmarshalErr)
		}
		res[fileID] = state
	}
	return res, nil
}

// Save persists the state of the client's file.
func (p *RedisProvider) Save(ctx context.Context, clientID, fileID uuid.UUID, state FileState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state of file %s: %w", fileID, err)
	}
	if err = p.rdb.HSet(ctx, p.key(clientID), fileID.String(), data).Err(); err != nil {
		return fmt.Errorf("save state of file %s: %w", fileID, err)
	}
	return nil
}

// Delete drops all persisted states of the client.
func (p *RedisProvider) Delete(ctx context.Context, clientID uuid.UUID) error {
	return p.rdb.Del(ctx, p.key(clientID)).Err()
}

// Ping checks that Redis is reachable.
func (p *RedisProvider) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}
